// The peerbridge CLI: a cobra.Command tree built by NewRootCmd and run
// via Execute, following the teacher's cmd/helix root command layout.
package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "peerbridge",
		Short: "peerbridge",
		Long:  "Edge-triggered keyboard/mouse/clipboard sharing between two hosts.",
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newConnectCmd())
	root.AddCommand(newDiscoverCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func Execute() {
	root := NewRootCmd()
	root.SetContext(context.Background())
	root.SetOut(os.Stdout)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}
