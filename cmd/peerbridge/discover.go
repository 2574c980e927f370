package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/frank2889/peerbridge/internal/config"
	"github.com/frank2889/peerbridge/internal/discovery"
)

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Run discovery (announce and listen) alone and print peers as they age in/out",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(cmd)
		},
	}
}

func runDiscover(cmd *cobra.Command) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	hostName := cfg.HostName
	if hostName == "" {
		hostName, _ = os.Hostname()
	}

	self := discovery.Announcement{
		ID:       uuid.NewString(),
		Name:     hostName,
		Port:     cfg.ListenPort,
		Platform: cfg.Platform,
	}

	disc := discovery.New(cfg.DiscoveryPort, cfg.AnnounceInterval, self, logger,
		discovery.WithOnChange(func(peers []discovery.Peer) {
			for _, p := range peers {
				fmt.Printf("%-36s %-20s %s:%d  age=%s\n", p.ID, p.Name, p.IP, p.Port, p.Age().Round(0))
			}
		}),
	)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	return disc.Run(ctx)
}
