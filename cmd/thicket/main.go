package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/thicket"
	"github.com/jward/thicket/internal/config"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// cli holds the persistent flags and the output streams of one invocation.
type cli struct {
	format      string
	configPath  string
	dbPath      string
	searchPaths []string
	verbose     bool

	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "thicket",
		Short:         "Static value inference for Python",
		Long:          "Thicket parses Python source and infers the values expressions may take, without running the code.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("format") && !config.IsValidFormat(c.format) {
				return fmt.Errorf("invalid format %q: must be one of %v", c.format, config.ValidFormats)
			}
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&c.format, "format", "auto", "output format: json|text|auto")
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: .thicket/config.yaml found upward from the working directory)")
	root.PersistentFlags().StringVar(&c.dbPath, "db", "", "SQLite tree cache path (overrides cache.path)")
	root.PersistentFlags().StringArrayVar(&c.searchPaths, "search-path", nil, "import search path, repeatable (overrides search_paths)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(c.inferCmd(), c.lookupCmd(), c.mroCmd(), c.dumpCmd())
	return root
}

// loadConfig reads the config file and applies the format flag.
func (c *cli) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if c.configPath != "" {
		cfg, err = config.LoadFromPath(c.configPath)
	} else {
		var cwd string
		cwd, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting cwd: %w", err)
		}
		cfg, err = config.Load(cwd)
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if cmd.Flags().Changed("format") {
		cfg.Output.Format = c.format
	}
	return cfg, nil
}

// openEngine builds an Engine from the config and flags.
func (c *cli) openEngine(cmd *cobra.Command) (*thicket.Engine, *config.Config, error) {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	// Flag paths are relative to the working directory, not the config.
	opts := []thicket.Option{thicket.WithConfig(cfg), thicket.WithLogger(c.logger())}
	if len(c.searchPaths) > 0 {
		paths := make([]string, len(c.searchPaths))
		for i, p := range c.searchPaths {
			if paths[i], err = filepath.Abs(p); err != nil {
				return nil, nil, fmt.Errorf("resolving search path %s: %w", p, err)
			}
		}
		opts = append(opts, thicket.WithSearchPaths(paths...))
	}
	if c.dbPath != "" {
		opts = append(opts, thicket.WithDB(c.dbPath))
	}
	e, err := thicket.New(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, cfg, nil
}

func (c *cli) logger() *slog.Logger {
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{Level: level}))
}

func (c *cli) cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
