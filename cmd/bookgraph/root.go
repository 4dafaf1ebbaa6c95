package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/bookgraph/internal/app"
	"github.com/OFFIS-RIT/bookgraph/internal/util"
	"github.com/OFFIS-RIT/bookgraph/pkg/logger"
	"github.com/OFFIS-RIT/bookgraph/pkg/logger/console"

	"github.com/spf13/cobra"
)

// globalFlags override the matching environment variables when set.
type globalFlags struct {
	debug       bool
	bookDir     string
	extractions string
	aliases     string
	graphFile   string
}

var flags globalFlags

var rootCmd = &cobra.Command{
	Use:   "bookgraph",
	Short: "Build and query a knowledge graph of a book",
	Long: `bookgraph splits a book into chapters, extracts characters, places,
items and organizations with their relations, merges them into a graph and
answers questions grounded in that graph.`,
	PersistentPreRunE: setup,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&flags.debug, "debug", false, "enable debug logging (DEBUG)")
	pf.StringVar(&flags.bookDir, "book-dir", "", "directory with chapter files (BOOK_DIR)")
	pf.StringVar(&flags.extractions, "extractions", "", "directory with chapter extractions (EXTRACTION_DIR)")
	pf.StringVar(&flags.aliases, "aliases", "", "alias file (ALIAS_FILE)")
	pf.StringVar(&flags.graphFile, "graph-file", "", "graph snapshot used without Neo4j (GRAPH_FILE)")

	rootCmd.AddCommand(splitCmd, extractCmd, buildCmd, askCmd, aliasesCmd)
}

// Execute runs the root command with signal handling
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, args []string) error {
	util.LoadEnv()

	debug := flags.debug || util.GetEnvBool("DEBUG", false)
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	}))
	return nil
}

// config reads the environment and applies the global flags on top.
func config() app.Config {
	cfg := app.ConfigFromEnv()
	if flags.bookDir != "" {
		cfg.BookDir = flags.bookDir
	}
	if flags.extractions != "" {
		cfg.ExtractionDir = flags.extractions
		cfg.ExtractionS3Prefix = ""
	}
	if flags.aliases != "" {
		cfg.AliasFile = flags.aliases
	}
	if flags.graphFile != "" {
		cfg.GraphFile = flags.graphFile
	}
	return cfg
}

func openApp(cmd *cobra.Command, cfg app.Config) (*app.App, error) {
	return app.New(cmd.Context(), cfg)
}
