package main

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/OFFIS-RIT/bookgraph/internal/app"
	"github.com/OFFIS-RIT/bookgraph/pkg/alias"
	"github.com/OFFIS-RIT/bookgraph/pkg/common"
	"github.com/OFFIS-RIT/bookgraph/pkg/corpus"

	"github.com/spf13/cobra"
)

var aliasesCmd = &cobra.Command{
	Use:   "aliases",
	Short: "Maintain the alias file",
}

var suggestFlags struct {
	out string
}

var aliasesSuggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Ask the model to group character names into aliases",
	Long: `Suggest collects every person name from the stored extractions,
asks the model which names refer to the same character and writes the
groups, after the ones already in the alias file, for review.`,
	Args: cobra.NoArgs,
	RunE: runAliasesSuggest,
}

var aliasesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the alias file and list ambiguous aliases",
	Args:  cobra.NoArgs,
	RunE:  runAliasesCheck,
}

func init() {
	aliasesSuggestCmd.Flags().StringVarP(&suggestFlags.out, "out", "o", "", "output file (defaults to the alias file)")
	aliasesCmd.AddCommand(aliasesSuggestCmd, aliasesCheckCmd)
}

func runAliasesSuggest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config()
	out := suggestFlags.out
	if out == "" {
		out = cfg.AliasFile
	}
	if out == "" {
		return errors.New("no output file: set --out or ALIAS_FILE")
	}

	a, err := openApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	extractions, err := corpus.LoadAll(ctx, a.Extractions)
	if err != nil {
		return err
	}
	names := personNames(extractions)
	if len(names) == 0 {
		return errors.New("no person names in the stored extractions, run extract first")
	}

	suggested, err := alias.Suggest(ctx, a.AI, names)
	if err != nil {
		return err
	}

	var base *alias.Table
	if cfg.AliasFile != "" {
		base, err = alias.Load(cfg.AliasFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	merged := alias.Merge(base, suggested)
	if err := alias.Write(out, merged); err != nil {
		return err
	}

	cmd.Printf("%d names, %d suggested groups, %d groups written to %s\n",
		len(names), len(suggested.Groups), len(merged.Groups), out)
	return nil
}

// personNames lists the person names of every extraction in chapter order.
func personNames(extractions []common.ChapterExtraction) []string {
	var names []string
	for _, e := range extractions {
		for _, ent := range e.Entities {
			if common.IsPersonType(ent.Type) {
				names = append(names, ent.Name)
			}
		}
	}
	return names
}

func runAliasesCheck(cmd *cobra.Command, args []string) error {
	path := config().AliasFile
	if path == "" {
		return errors.New("no alias file: set --aliases or ALIAS_FILE")
	}
	r, err := app.LoadResolver(path)
	if err != nil {
		return err
	}
	table, err := alias.Load(path)
	if err != nil {
		return err
	}

	ambiguous := r.Ambiguous()
	keys := make([]string, 0, len(ambiguous))
	for k := range ambiguous {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		cmd.Printf("ambiguous alias %q: %v (first group wins)\n", k, ambiguous[k])
	}

	cmd.Printf("%d groups, %d ambiguous aliases\n", len(table.Groups), len(keys))
	if len(keys) > 0 {
		return fmt.Errorf("%d ambiguous aliases", len(keys))
	}
	return nil
}
