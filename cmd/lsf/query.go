package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cardinalsearch/cardinal"
	"github.com/cardinalsearch/cardinal/cache"
	"github.com/cardinalsearch/cardinal/cancel"
	"github.com/cardinalsearch/cardinal/config"
)

var (
	queryCachePath string
	queryRootPath  string
	queryCI        bool
	queryFilesOnly bool
)

var queryCmd = &cobra.Command{
	Use:   "query <query>",
	Short: "Evaluate a query against a checkpointed index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := args[0]
		opts := config.Default()
		opts.CaseInsensitive = queryCI

		sc, err := cardinal.LoadFromFile(context.Background(), queryCachePath, queryRootPath, opts)
		if err != nil {
			return fmt.Errorf("load %s (run 'lsf walk %s' first if it doesn't exist): %w", queryCachePath, queryRootPath, err)
		}

		if queryFilesOnly {
			files, err := sc.QueryFiles(q, cancel.Noop())
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			printResults(files)
			return nil
		}

		result, err := sc.SearchWithOptions(q, cardinal.SearchOptions{CaseInsensitive: queryCI}, cancel.Noop())
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		printResults(result.Nodes)
		return nil
	},
}

func printResults(nodes []cardinal.SearchResultNode) {
	if len(nodes) == 0 {
		fmt.Println("no matches")
		return
	}
	for _, n := range nodes {
		if n.Type == cache.NodeDir {
			fmt.Printf("%s/\n", n.Path)
			continue
		}
		fmt.Printf("%s\t%s\n", n.Path, humanize.Bytes(n.Size))
	}
}

func init() {
	rootCmd.AddCommand(queryCmd)
	flags := queryCmd.Flags()
	flags.StringVar(&queryCachePath, "cache", "lsf.cache", "checkpoint file to load")
	flags.StringVar(&queryRootPath, "path", ".", "walk root to use if the checkpoint's version doesn't match")
	flags.BoolVar(&queryCI, "ci", false, "case-insensitive matching")
	flags.BoolVar(&queryFilesOnly, "files-only", false, "restrict results to file-typed nodes")
}
