// Package cmd defines and implements the CLI commands for the recipegrab
// executable.
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forkbench/recipegrab/internal/app"
	"github.com/forkbench/recipegrab/internal/config"
)

// Conventional sysexits codes. Partial failures (some URLs worked, some
// did not) never change the exit code.
const (
	exitOK      = 0
	exitDataErr = 65
	exitIOErr   = 74
)

type rootFlags struct {
	cfgFile     string
	urlFile     string
	output      string
	markdown    bool
	verbosity   string
	connections int
	timeout     int
	cacheMode   string
	debug       bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "recipegrab [flags] [url ...]",
		Short: "Collect recipes from the web into one file",
		Long: `recipegrab fetches cooking recipes from the given URLs, extracts their
structured data, and writes them into a single text or Markdown file.
Pages that fail to parse produce ready-to-file bug reports instead of
aborting the run.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd.Context(), cmd, flags, args)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.cfgFile, "config", "", "config file path")
	cmd.Flags().StringVarP(&flags.urlFile, "file", "f", "", "file with one recipe URL per line")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output file path")
	cmd.Flags().BoolVarP(&flags.markdown, "markdown", "m", false, "render recipes as Markdown")
	cmd.Flags().StringVarP(&flags.verbosity, "verbosity", "v", "", "terminal verbosity (debug|info|warning|error|critical)")
	cmd.Flags().IntVarP(&flags.connections, "connections", "c", 0, "number of concurrent downloads")
	cmd.Flags().IntVarP(&flags.timeout, "timeout", "t", 0, "seconds to wait for a server")
	cmd.Flags().StringVar(&flags.cacheMode, "cache", "", "cache mode (default|only|new)")
	cmd.Flags().BoolVarP(&flags.debug, "debug", "d", false, "maximum verbosity plus full stack traces")

	cmd.AddCommand(newAppdataCmd())
	cmd.AddCommand(newDefaultOutputCmd())

	return cmd
}

func runRoot(ctx context.Context, cmd *cobra.Command, flags *rootFlags, args []string) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return codedError{err: err, code: exitDataErr}
	}

	lines := append([]string(nil), args...)
	if flags.urlFile != "" {
		fromFile, err := readLines(flags.urlFile)
		if err != nil {
			return codedError{err: err, code: exitIOErr}
		}
		lines = append(lines, fromFile...)
	}
	if len(lines) == 0 {
		return codedError{err: errors.New("no URLs given, pass them as arguments or via --file"), code: exitDataErr}
	}

	a, err := app.New(cfg)
	if err != nil {
		return codedError{err: err, code: exitIOErr}
	}
	defer a.Close()

	counts, runErr := a.Run(ctx, lines)
	a.Session().Default().Infof("%s", counts.String())

	if a.FailureCount() > 0 {
		if err := a.WriteReports(); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
	}

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, app.ErrNoURLs):
		return codedError{err: runErr, code: exitDataErr}
	default:
		return codedError{err: runErr, code: exitIOErr}
	}
}

func loadConfig(flags *rootFlags) (config.Config, error) {
	cfg, err := config.Load(flags.cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	if flags.output != "" {
		cfg.Output.Path = flags.output
	}
	if flags.markdown {
		cfg.Output.Markdown = true
	}
	if flags.verbosity != "" {
		cfg.Verbosity = flags.verbosity
	}
	if flags.connections > 0 {
		cfg.Fetch.Connections = flags.connections
	}
	if flags.timeout > 0 {
		cfg.Fetch.TimeoutSeconds = flags.timeout
	}
	if flags.cacheMode != "" {
		cfg.Cache.Mode = flags.cacheMode
	}
	if flags.debug {
		cfg.Debug = true
	}
	return cfg, cfg.Validate()
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url file: %w", err)
	}
	return lines, nil
}

// codedError carries a sysexits code alongside the cause.
type codedError struct {
	err  error
	code int
}

func (e codedError) Error() string { return e.err.Error() }
func (e codedError) Unwrap() error { return e.err }

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	cmd := newRootCmd()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var coded codedError
		if errors.As(err, &coded) {
			return coded.code
		}
		return exitDataErr
	}
	return exitOK
}
