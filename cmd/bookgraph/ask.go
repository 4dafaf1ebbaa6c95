package main

import (
	"encoding/json"
	"strings"

	"github.com/OFFIS-RIT/bookgraph/pkg/query"

	"github.com/spf13/cobra"
)

var askFlags struct {
	json  bool
	trace bool
}

var askCmd = &cobra.Command{
	Use:   "ask QUESTION",
	Short: "Answer a question about the book",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askFlags.json, "json", false, "print the full result as JSON")
	askCmd.Flags().BoolVar(&askFlags.trace, "trace", false, "print the steps of the query")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(cmd, config())
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	trace := query.NewQueryTrace()
	pipeline, err := a.Pipeline(query.WithTracer(trace))
	if err != nil {
		return err
	}

	res := pipeline.Run(ctx, strings.Join(args, " "), nil)

	if askFlags.trace {
		snap := trace.Snapshot()
		data, _ := json.MarshalIndent(snap, "", "  ")
		cmd.PrintErrln(string(data))
	}

	if askFlags.json {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(res.Answer)
	if len(res.EntitiesFound) > 0 {
		cmd.Printf("\nentities: %s\n", strings.Join(res.EntitiesFound, ", "))
	}
	return nil
}
