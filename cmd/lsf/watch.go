package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cardinalsearch/cardinal"
	"github.com/cardinalsearch/cardinal/config"
	"github.com/cardinalsearch/cardinal/fsevent"
	"github.com/cardinalsearch/cardinal/logging"
)

var watchCachePath string

// watchCmd is the live event-watch loop supplemented from
// original_source/cardinal-sdk/src/main.rs's tokio::select! between a
// filesystem-event receiver and a filter-string receiver: here the two
// channels are a goroutine reading stdin lines and fsevent.Source's own
// event channel, selected over in one loop.
var watchCmd = &cobra.Command{
	Use:   "watch <path>",
	Short: "Walk path, then live-update the index as the filesystem changes",
	Long: `watch builds an index of path, then applies filesystem events as they
arrive. Type a query and press enter at any time to search the live index;
results print as each line of input is read, interleaved with incoming
filesystem events.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := args[0]
		opts := config.Default()

		sc, err := cardinal.WalkFS(context.Background(), root, opts)
		if err != nil {
			return fmt.Errorf("walk %s: %w", root, err)
		}

		source, err := fsevent.NewSource(root)
		if err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		if err := source.Start(); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		defer source.Stop()

		queries := make(chan string)
		go readQueries(queries)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("watching %s — type a query and press enter (ctrl-C to quit)\n", root)
		for {
			select {
			case <-ctx.Done():
				if err := sc.WriteToFile(watchCachePath); err != nil {
					logging.Errorf(root, "checkpoint on exit failed: %s", err)
				}
				return nil
			case e, ok := <-source.Events():
				if !ok {
					return nil
				}
				if err := sc.MergeEvent(context.Background(), e); err != nil {
					logging.Errorf(root, "merge event for %s failed: %s", e.Path, err)
				}
			case watchErr := <-source.Errors():
				logging.Errorf(root, "watcher error: %s", watchErr)
			case q, ok := <-queries:
				if !ok {
					return nil
				}
				result, err := sc.Search(q)
				if err != nil {
					fmt.Println("error:", err)
					continue
				}
				printResults(result.Nodes)
			}
		}
	},
}

func readQueries(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchCachePath, "cache", "lsf.cache", "checkpoint file to write on exit")
}
