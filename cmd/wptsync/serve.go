package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wptsync/wptsync/internal/daemon"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync daemon",
	Long: `Run the long-lived sync daemon.

The daemon watches the spool directory for inbound forge events dropped as
JSON files, creating syncs for new change requests and re-running stale
syncs when CI reports a pending status. It runs until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := log.New(os.Stderr, "[wptsync] ", log.LstdFlags)
		if cfg.LogFile != "" {
			logger = log.New(&lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    50, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
			}, "[wptsync] ", log.LstdFlags)
		}

		c, err := buildComponents(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer c.db.Close()

		d, err := daemon.New(c.db, cfg.SpoolDir, cfg.Source.Name, c.intake, c.reactor, &daemon.Config{
			DebounceInterval: daemon.DefaultConfig().DebounceInterval,
			ProcessTimeout:   cfg.CommandTimeout,
			Logger:           logger,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
