package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wptsync/wptsync/internal/events"
	"github.com/wptsync/wptsync/internal/store"
)

var runTitle string

var runCmd = &cobra.Command{
	Use:   "run <pr-number>",
	Short: "Run one sync pass for a change request",
	Long: `Run a single downstream pass for a change request.

Creates the sync and its tracker issue if the change request is new (the
--title flag supplies the issue summary), then drives it through a full
fetch, translate, metadata and classification pass. Useful for operator
re-runs and for processing a change request without the daemon.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		prID, err := strconv.Atoi(args[0])
		if err != nil || prID <= 0 {
			fmt.Fprintf(os.Stderr, "Error: invalid change-request number %q\n", args[0])
			os.Exit(1)
		}

		ctx := cmd.Context()
		logger := log.New(os.Stderr, "[wptsync] ", log.LstdFlags)

		c, err := buildComponents(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer c.db.Close()

		s, err := ensureSync(ctx, c, prID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		runCtx := ctx
		if cfg.CommandTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, cfg.CommandTimeout)
			defer cancel()
		}

		if err := c.orch.Update(runCtx, s); err != nil {
			fmt.Fprintf(os.Stderr, "Error: sync for PR %d failed: %v\n", prID, err)
			os.Exit(1)
		}

		fmt.Printf("Sync %d for PR %d reported\n", s.ID, prID)
	},
}

// ensureSync returns the existing sync for a change request, creating it
// through intake when the change request is new.
func ensureSync(ctx context.Context, c *components, prID int) (*store.Sync, error) {
	s, err := lookupSync(ctx, c.db, cfg.Source.Name, prID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, store.ErrSyncNotFound) {
		return nil, err
	}

	title := runTitle
	if title == "" {
		title = fmt.Sprintf("PR %d", prID)
	}
	return c.intake.NewChangeRequest(ctx, events.ChangeRequestEvent{
		Number: prID,
		Title:  title,
	})
}

func init() {
	runCmd.Flags().StringVar(&runTitle, "title", "", "change-request title for a newly created sync")
	rootCmd.AddCommand(runCmd)
}
