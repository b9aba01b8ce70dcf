// wptsync ports upstream web-platform-tests change requests into a
// downstream tree and tracks each one as a resumable sync.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wptsync/wptsync/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "wptsync",
	Short: "Downstream sync for web-platform-tests change requests",
	Long: `wptsync ports upstream web-platform-tests change requests into a
downstream tree.

Each change request becomes a sync: an isolated workspace pair, a tracker
issue, and a resumable state machine that fetches the upstream commits,
replays them under the mirrored subdirectory, regenerates test metadata and
routes the tracker issue to the owning component.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
