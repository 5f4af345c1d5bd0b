package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/os1/backend/internal/app"
	"github.com/zhouzirui/os1/backend/internal/config"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "agentctl",
		Short: "Operate the OS1 voice agent console from a terminal",
		Long: `agentctl manages the voice agent console without the browser UI.

Quick Start:
  agentctl config save --phone "+1 555 0100" --knowledge "Open 9-5"
  agentctl config show
  agentctl talk --device /dev/snd/pcmC0D0c
  agentctl transcript --server http://localhost:8080 --format yaml`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				log.SetOutput(cmd.ErrOrStderr())
			} else {
				log.SetOutput(io.Discard)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Show service logs")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newConfigCmd(), newCallCmd(), newTalkCmd(), newTranscriptCmd())
	return root
}

// openApp loads configuration from the environment and wires the services.
func openApp(ctx context.Context, opts ...app.Option) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, opts...)
}
