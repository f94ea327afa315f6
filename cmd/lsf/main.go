// Command lsf is cardinal's command-line front end: build a checkpointed
// index over a directory tree, query it, or watch it live. Named after
// original_source/lsf, reimplemented on github.com/spf13/cobra following
// the teacher's command-registration style (backend/torrent/cmd/backend.go:
// a package-level *cobra.Command, flags attached in init(), a Run closure
// doing the real work).
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cardinalsearch/cardinal/logging"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "lsf",
	Short: "Index and search a filesystem subtree",
	Long: `lsf builds an in-memory search index over a directory tree, checkpoints
it to disk, and answers queries written in cardinal's search grammar.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logging.SetLevel(logrus.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
