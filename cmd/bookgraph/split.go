package main

import (
	"fmt"

	"github.com/OFFIS-RIT/bookgraph/pkg/corpus"

	"github.com/spf13/cobra"
)

var splitCmd = &cobra.Command{
	Use:   "split BOOK OUTDIR",
	Short: "Split a book text file into chapter files",
	Long: `Split reads a UTF-8 or Windows-1251 book, detects part and chapter
headings and writes one file per chapter to OUTDIR/part_N/NN_title.txt.
Everything after the notes section is ignored.`,
	Args: cobra.ExactArgs(2),
	RunE: runSplit,
}

func runSplit(cmd *cobra.Command, args []string) error {
	chapters, err := corpus.SplitFile(args[0])
	if err != nil {
		return err
	}
	if len(chapters) == 0 {
		return fmt.Errorf("no chapters found in %s", args[0])
	}
	if err := corpus.WriteChapters(args[1], chapters); err != nil {
		return err
	}

	for _, c := range chapters {
		cmd.Printf("%s\t%s\n", c.Path, c.Heading())
	}
	cmd.Printf("%d chapters written to %s\n", len(chapters), args[1])
	return nil
}
