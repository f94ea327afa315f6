package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cardinalsearch/cardinal"
	"github.com/cardinalsearch/cardinal/config"
)

var (
	walkCachePath      string
	walkIgnore         []string
	walkFollowSymlinks bool
	walkCompression    int
)

var walkCmd = &cobra.Command{
	Use:   "walk <path>",
	Short: "Build a fresh index of path and checkpoint it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := args[0]
		opts := config.Default()
		opts.Ignore = walkIgnore
		opts.FollowSymlinks = walkFollowSymlinks
		opts.CompressionLevel = walkCompression

		start := time.Now()
		sc, err := cardinal.WalkFS(context.Background(), root, opts)
		if err != nil {
			return fmt.Errorf("walk %s: %w", root, err)
		}
		elapsed := time.Since(start)

		if err := sc.WriteToFile(walkCachePath); err != nil {
			return fmt.Errorf("checkpoint to %s: %w", walkCachePath, err)
		}

		stats := sc.Stats()
		fmt.Printf("walked %s in %s: %s files, %s dirs\n",
			root, elapsed.Round(time.Millisecond),
			humanize.Comma(stats.NumFiles), humanize.Comma(stats.NumDirs))
		fmt.Printf("checkpoint written to %s\n", walkCachePath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(walkCmd)
	flags := walkCmd.Flags()
	flags.StringVar(&walkCachePath, "cache", "lsf.cache", "checkpoint file to write")
	flags.StringSliceVar(&walkIgnore, "ignore", nil, "paths to exclude from the walk")
	flags.BoolVar(&walkFollowSymlinks, "follow-symlinks", false, "record symlinks as plain files instead of symlinks (they are never traversed)")
	flags.IntVar(&walkCompression, "compression-level", config.Default().CompressionLevel, "zstd compression level for the checkpoint")
}
