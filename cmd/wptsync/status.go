package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wptsync/wptsync/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show all tracked syncs",
	Long:  `List every tracked sync with its change request, issue and state.`,
	Run: func(cmd *cobra.Command, args []string) {
		db, err := store.Open(cfg.DatabasePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.InitSchema(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		syncs, err := db.ListSyncs(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if len(syncs) == 0 {
			fmt.Println("No syncs tracked")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SYNC\tPR\tISSUE\tSTATE\tUPDATED")
		for _, s := range syncs {
			fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\n",
				s.ID, s.PRID, s.Bug, s.State, s.UpdatedAt.Format("2006-01-02 15:04"))
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
