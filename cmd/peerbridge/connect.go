package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/frank2889/peerbridge/internal/config"
	"github.com/frank2889/peerbridge/internal/geometry"
	"github.com/frank2889/peerbridge/internal/session"
)

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <host:port>",
		Short: "Dial a peer directly, bypassing discovery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd, args[0])
		},
	}
}

func runConnect(cmd *cobra.Command, addr string) error {
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
	arrangement.SetTransferEdge(geometry.EdgeRight)

	identity := session.Identity{ID: st.ProcessID, Name: hostName, Platform: cfg.Platform}
	listenAddr := fmt.Sprintf(":%d", cfg.ListenPort)
	controller := session.New(identity, listenAddr, arrangement, driver, logger,
		session.WithClipboardPollInterval(cfg.ClipboardPollInterval),
		session.WithPointerTuning(cfg.PointerGain, cfg.TrapRadius),
		session.WithClipboardEnabled(cfg.ClipboardEnabled),
		session.WithLinkTimeouts(cfg.IdleTimeout, cfg.PingTimeout),
	)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	go func() { _ = controller.Run(ctx) }()

	if err := controller.Connect(ctx, addr); err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	logger.Info().Str("peer", addr).Msg("connected")

	st.LastPeerAddr = addr
	if st.ProcessID == "" {
		st.ProcessID = uuid.NewString()
	}
	if err := st.Save(statePath); err != nil {
		logger.Warn().Err(err).Msg("failed to persist last peer address")
	}

	<-ctx.Done()
	return nil
}
