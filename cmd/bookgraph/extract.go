package main

import (
	"fmt"
	"time"

	"github.com/OFFIS-RIT/bookgraph/pkg/graph"

	"github.com/spf13/cobra"
)

var extractFlags struct {
	force     bool
	summarize bool
	parallel  int
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract entities and relations from every chapter",
	Long: `Extract sends every chapter without a stored extraction to the
model and stores the result. Chapters that fail are reported and can be
retried by running extract again.`,
	Args: cobra.NoArgs,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().BoolVar(&extractFlags.force, "force", false, "re-extract chapters that already have an extraction")
	extractCmd.Flags().BoolVar(&extractFlags.summarize, "summarize", false, "add a summary to every chapter")
	extractCmd.Flags().IntVar(&extractFlags.parallel, "parallel", 0, "chapters processed at once (EXTRACT_PARALLEL)")
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config()
	if extractFlags.parallel > 0 {
		cfg.ExtractParallel = extractFlags.parallel
	}

	a, err := openApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	files, err := a.Source().List(ctx)
	if err != nil {
		return fmt.Errorf("list chapters: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no chapters found")
	}

	x := a.Extractor(extractFlags.force, extractFlags.summarize)
	report, err := x.Extract(ctx, files)
	printReport(cmd, report)
	if err != nil {
		return err
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d chapters failed: %w", len(report.Failed), report.Err())
	}
	return nil
}

func printReport(cmd *cobra.Command, r graph.ExtractionReport) {
	cmd.Printf("chapters: %d, extracted: %d, skipped: %d, failed: %d (%s)\n",
		r.Total, r.Extracted, r.Skipped, len(r.Failed), r.Duration.Round(time.Second))
	for _, f := range r.Failed {
		cmd.Printf("  failed %s after %d attempts: %v\n", f.Chapter, f.Attempts, f.Err)
	}
}
