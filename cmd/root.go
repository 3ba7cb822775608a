package cmd

import (
	"context"
	"depscan/internal/config"
	"depscan/internal/embeddings"
	"depscan/internal/extract"
	"depscan/internal/indexer"
	"depscan/internal/logging"
	"depscan/internal/mcp"
	"depscan/internal/models"
	"depscan/internal/qdrant"
	"depscan/internal/report"
	"depscan/internal/sbom"
	"depscan/internal/scan"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Build information, set from main.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var (
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "depscan",
	Short:         "Rust dependency extraction for software bills of materials",
	Long:          "A CLI tool that extracts use, extern crate and mod declarations from Rust sources, aggregates them into components, and indexes them for semantic search",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("output") {
			loaded.Output, _ = cmd.Flags().GetString("output")
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level, _ = cmd.Flags().GetString("log-level")
		}
		l, err := logging.New(loaded.Log.Level, loaded.Log.Format)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract [path...]",
	Short: "Extract dependency declarations from Rust files or directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := report.ParseFormat(cfg.Output)
		if err != nil {
			return err
		}
		failOnError, _ := cmd.Flags().GetBool("fail-on-error")

		results, err := runExtraction(cmd.Context(), args)
		if err != nil {
			return err
		}

		rep := report.New(results)
		if err := report.Render(cmd.OutOrStdout(), rep, format); err != nil {
			return err
		}
		if failOnError && rep.Summary.Failures > 0 {
			return fmt.Errorf("%d of %d files failed to parse", rep.Summary.Failures, rep.Summary.Files)
		}
		return nil
	},
}

var componentsCmd = &cobra.Command{
	Use:   "components [path...]",
	Short: "List the distinct crates and modules the project depends on",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := report.ParseFormat(cfg.Output)
		if err != nil {
			return err
		}
		originFlags, _ := cmd.Flags().GetStringSlice("origin")
		origins, err := parseOrigins(originFlags)
		if err != nil {
			return err
		}

		results, err := runExtraction(cmd.Context(), args)
		if err != nil {
			return err
		}

		files := make([]*models.FileDependencies, 0, len(results))
		for _, res := range results {
			if res.Err != nil {
				fmt.Fprintf(os.Stderr, "✗ %v\n", res.Err)
				continue
			}
			files = append(files, res.Result)
		}

		components := sbom.Filter(sbom.Aggregate(files), origins...)
		return report.RenderComponents(cmd.OutOrStdout(), components, format)
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index dependency records to the vector database",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")

		qc, ec, err := newClients()
		if err != nil {
			return err
		}
		defer qc.Close()

		runner, err := newRunner()
		if err != nil {
			return err
		}
		idx, err := indexer.NewIndexer(qc, ec, indexer.Options{
			Scanner:   newScanner(),
			Runner:    runner,
			Workers:   cfg.Scan.Workers,
			BatchSize: cfg.Index.BatchSize,
			Logger:    logger,
			Out:       cmd.OutOrStdout(),
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Indexing project at: %s\n", dir)
		stats, err := idx.IndexProject(cmd.Context(), dir)
		if err != nil {
			return err
		}
		logger.Info("index finished",
			zap.Int("files", stats.Files),
			zap.Int("changed", stats.Changed),
			zap.Int("deleted", stats.Deleted),
			zap.Int("failed", stats.Failed),
			zap.Int("points", stats.Points),
		)
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a natural language search over indexed dependencies (same as MCP search_dependencies)",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, _ := cmd.Flags().GetString("q")
		topK, _ := cmd.Flags().GetInt("top_k")
		dir, _ := cmd.Flags().GetString("dir")
		originFlags, _ := cmd.Flags().GetStringSlice("origin")
		kinds, _ := cmd.Flags().GetStringSlice("kind")
		if _, err := parseOrigins(originFlags); err != nil {
			return err
		}

		qc, ec, err := newClients()
		if err != nil {
			return err
		}
		defer qc.Close()

		hits, err := indexer.NewSearcher(qc, ec).Search(cmd.Context(), dir, q, topK, models.SearchFilter{
			Origins: originFlags,
			Kinds:   kinds,
		})
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(hits, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var clearIndexCmd = &cobra.Command{
	Use:   "clear-index",
	Short: "Delete the Qdrant collection and local state for a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")

		qc, err := qdrant.NewClient(cfg.Qdrant, logger)
		if err != nil {
			return err
		}
		defer qc.Close()

		collection, err := indexer.ClearProject(cmd.Context(), qc, dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Collection %s deleted\n", collection)
		return nil
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")

		runner, err := newRunner()
		if err != nil {
			return err
		}
		opts := mcp.Options{
			Root:    dir,
			Scanner: newScanner(),
			Runner:  runner,
			Logger:  logger,
			Version: Version,
		}

		// Search is optional; extraction works without any backing services.
		qc, ec, err := newClients()
		if err != nil {
			logger.Warn("search_dependencies disabled", zap.Error(err))
		} else {
			defer qc.Close()
			opts.Searcher = indexer.NewSearcher(qc, ec)
		}

		server, err := mcp.NewServer(opts)
		if err != nil {
			return err
		}
		return server.Run(cmd.Context(), os.Stdin, os.Stdout)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "depscan %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default .depscan.yaml in the working directory or $HOME)")
	rootCmd.PersistentFlags().StringP("output", "o", config.DefaultOutputFormat, "Output format: json, yaml or table")
	rootCmd.PersistentFlags().String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn or error")

	extractCmd.Flags().Bool("fail-on-error", false, "Exit non-zero when any file fails to parse")
	componentsCmd.Flags().StringSlice("origin", nil, "Only show components of these origins (internal, language, external)")
	indexCmd.Flags().String("dir", ".", "Project root directory")
	queryCmd.Flags().String("q", "", "Natural language query")
	queryCmd.Flags().Int("top_k", indexer.DefaultSearchLimit, "Maximum number of results to return")
	queryCmd.Flags().String("dir", ".", "Project root directory (must match the directory passed to 'depscan index')")
	queryCmd.Flags().StringSlice("origin", nil, "Only return dependencies of these origins")
	queryCmd.Flags().StringSlice("kind", nil, "Only return dependencies of these kinds (use, extern_crate, mod)")
	mcpCmd.Flags().String("dir", ".", "Project root directory (server scopes tools to this directory)")
	clearIndexCmd.Flags().String("dir", ".", "Project root directory to clear from Qdrant")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(componentsCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(clearIndexCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

func newScanner() *scan.Scanner {
	return scan.New(scan.Options{
		Exclude:     cfg.Scan.Exclude,
		MaxFileSize: cfg.Scan.MaxFileSize,
		Logger:      logger,
	})
}

func newRunner() (*extract.Runner, error) {
	return extract.NewRunner(extract.Options{
		Workers:   cfg.Scan.Workers,
		CacheSize: cfg.Scan.CacheSize,
		Logger:    logger,
	})
}

func newClients() (*qdrant.Client, *embeddings.Client, error) {
	ec, err := embeddings.NewClient(cfg.Embeddings, logger)
	if err != nil {
		return nil, nil, err
	}
	qc, err := qdrant.NewClient(cfg.Qdrant, logger)
	if err != nil {
		return nil, nil, err
	}
	return qc, ec, nil
}

// runExtraction scans every path (default ".") and extracts the files found,
// keeping discovery order across paths.
func runExtraction(ctx context.Context, paths []string) ([]extract.FileResult, error) {
	if len(paths) == 0 {
		paths = []string{"."}
	}

	scanner := newScanner()
	var files []string
	seen := make(map[string]bool)
	for _, p := range paths {
		found, err := scanner.Files(p)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", p, err)
		}
		for _, f := range found {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "⚠ No Rust source files found")
	}

	runner, err := newRunner()
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx, files)
}

func parseOrigins(values []string) ([]models.Origin, error) {
	origins := make([]models.Origin, 0, len(values))
	for _, v := range values {
		switch o := models.Origin(v); o {
		case models.OriginInternal, models.OriginLanguage, models.OriginExternal:
			origins = append(origins, o)
		default:
			return nil, fmt.Errorf("unknown origin %q (want internal, language or external)", v)
		}
	}
	return origins, nil
}

// Execute runs the root command, canceling its context on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("interrupted")
	}
	return err
}
