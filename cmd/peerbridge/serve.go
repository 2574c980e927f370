package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/frank2889/peerbridge/internal/config"
	"github.com/frank2889/peerbridge/internal/geometry"
	"github.com/frank2889/peerbridge/internal/inputdriver"
	"github.com/frank2889/peerbridge/internal/session"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the peerbridge session: discovery, peer link, transfer engine and clipboard bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	statePath := cfg.StateFile
	if statePath == "" {
		statePath = config.DefaultStateFile()
	}
	st := config.LoadState(statePath)

	hostName := cfg.HostName
	if hostName == "" {
		hostName, _ = os.Hostname()
	}

	driver, err := newPlatformDriver(logger, cfg)
	if err != nil {
		return fmt.Errorf("input driver: %w", err)
	}
	defer driver.Close()

	localScreens, err := driver.EnumerateScreens()
	if err != nil {
		return fmt.Errorf("enumerate screens: %w", err)
	}

	arrangement := geometry.NewArrangement(0, 0, 0)
	arrangement.SetLocalScreens(localScreens)
	edge := geometry.Edge(st.TransferEdge)
	if cfg.TransferEdge != "" {
		edge = geometry.Edge(cfg.TransferEdge)
	}
	if !edge.Valid() {
		edge = geometry.EdgeRight
	}
	arrangement.SetTransferEdge(edge)

	var statusServer *session.StatusServer
	if cfg.StatusAddr != "" {
		statusServer = session.NewStatusServer(logger)
	}

	identity := session.Identity{ID: st.ProcessID, Name: hostName, Platform: cfg.Platform}
	listenAddr := fmt.Sprintf(":%d", cfg.ListenPort)

	opts := []session.Option{
		session.WithClipboardPollInterval(cfg.ClipboardPollInterval),
		session.WithPointerTuning(cfg.PointerGain, cfg.TrapRadius),
		session.WithClipboardEnabled(cfg.ClipboardEnabled),
		session.WithLinkTimeouts(cfg.IdleTimeout, cfg.PingTimeout),
	}
	if cfg.DiscoveryEnabled {
		opts = append(opts, session.WithDiscovery(cfg.DiscoveryPort, cfg.AnnounceInterval))
	}
	if statusServer != nil {
		opts = append(opts, session.WithOnStatusChange(statusServer.Publish))
	}

	controller := session.New(identity, listenAddr, arrangement, driver, logger, opts...)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	if statusServer != nil {
		mux := http.NewServeMux()
		mux.Handle("/status", statusServer.Handler())
		httpServer := &http.Server{Addr: cfg.StatusAddr, Handler: mux}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn().Err(err).Msg("status server stopped")
			}
		}()
		go func() {
			<-ctx.Done()
			_ = httpServer.Close()
		}()
	}

	logger.Info().Str("listen", listenAddr).Str("edge", string(edge)).Msg("peerbridge serving")

	runErr := controller.Run(ctx)

	st.TransferEdge = string(arrangement.TransferEdge())
	if st.ProcessID == "" {
		st.ProcessID = uuid.NewString()
	}
	if err := st.Save(statePath); err != nil {
		logger.Warn().Err(err).Msg("failed to persist state on shutdown")
	}

	return runErr
}

// newPlatformDriver selects the host's Input Driver, using
// PEERBRIDGE_SCREEN_WIDTH/HEIGHT to size the Wayland virtual screen
// (§4.4's host-provided geometry, since Wayland has no portable
// multi-monitor enumeration API for a virtual-input client).
func newPlatformDriver(logger zerolog.Logger, cfg config.Config) (inputdriver.Driver, error) {
	screen := inputdriver.ScreenFromEnv()
	return inputdriver.NewDefaultDriver(logger, screen, cfg.GnomeSessionPath)
}
