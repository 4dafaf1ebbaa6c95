package main

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/bookgraph/pkg/graph"
	"github.com/OFFIS-RIT/bookgraph/pkg/leaselock"

	"github.com/spf13/cobra"
)

var buildFlags struct {
	allowPartial bool
	extract      bool
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Rebuild the graph from the stored extractions",
	Long: `Build replaces the whole graph with the stored chapter extractions.
It refuses to run while a chapter of the book has no extraction, unless
--allow-partial is given. With --extract, missing chapters are extracted
first.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&buildFlags.allowPartial, "allow-partial", false, "build even when chapters are missing (GRAPH_ALLOW_PARTIAL)")
	buildCmd.Flags().BoolVar(&buildFlags.extract, "extract", false, "extract missing chapters before building")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config()
	if buildFlags.allowPartial {
		cfg.AllowPartialBuild = true
	}

	a, err := openApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	client, err := a.GraphClient()
	if err != nil {
		return err
	}
	source := a.Source()

	var res graph.BuildResult
	err = a.Locker().WithLease(ctx, leaselock.RebuildKey, leaselock.Options{TTL: 2 * time.Minute, TokenPrefix: "cli-"}, func(ctx context.Context) error {
		if buildFlags.extract {
			r, report, err := client.ProcessBook(ctx, source, a.Extractor(false, false))
			printReport(cmd, report)
			res = r
			return err
		}

		files, err := source.List(ctx)
		if err != nil {
			return fmt.Errorf("list chapters: %w", err)
		}
		chapters := make([]string, len(files))
		for i, f := range files {
			chapters[i] = f.Chapter
		}
		res, err = client.BuildGraph(ctx, chapters)
		return err
	})
	if err != nil {
		if len(res.MissingChapters) > 0 {
			cmd.Printf("missing extractions: %v\n", res.MissingChapters)
		}
		return err
	}

	if err := a.SaveGraph(); err != nil {
		return fmt.Errorf("save graph: %w", err)
	}

	cmd.Printf("chapters: %d, nodes: %d (%d duplicates merged), edges: %d (%d dropped), %s\n",
		res.Chapters,
		res.Load.NodesCreated,
		res.Merge.Duplicates,
		res.Load.EdgesCreated,
		res.EdgesDropped+res.Load.EdgesSkipped,
		res.Duration.Round(time.Millisecond),
	)
	if len(res.MissingChapters) > 0 {
		cmd.Printf("built without: %v\n", res.MissingChapters)
	}
	return nil
}
