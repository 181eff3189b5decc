package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forkbench/recipegrab/internal/config"
)

// newAppdataCmd groups commands managing the program's data directory
// (log files, the recipe cache, and failure reports).
func newAppdataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appdata",
		Short: "Inspect or erase the program data directory",
	}
	cmd.AddCommand(newAppdataShowCmd())
	cmd.AddCommand(newAppdataEraseCmd())
	return cmd
}

func newAppdataShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List the files in the data directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(rootConfigFile(cmd))
			if err != nil {
				return codedError{err: err, code: exitDataErr}
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.DataDir)
			return filepath.Walk(cfg.DataDir, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					if os.IsNotExist(err) {
						return nil
					}
					return codedError{err: err, code: exitIOErr}
				}
				if info.IsDir() {
					return nil
				}
				rel, _ := filepath.Rel(cfg.DataDir, path)
				fmt.Fprintf(cmd.OutOrStdout(), "  %s (%d bytes)\n", rel, info.Size())
				return nil
			})
		},
	}
}

func newAppdataEraseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "erase",
		Short: "Delete all stored data, including the recipe cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(rootConfigFile(cmd))
			if err != nil {
				return codedError{err: err, code: exitDataErr}
			}
			if err := os.RemoveAll(cfg.DataDir); err != nil {
				return codedError{err: fmt.Errorf("erase data directory: %w", err), code: exitIOErr}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Erased %s\n", cfg.DataDir)
			return nil
		},
	}
}

// newDefaultOutputCmd persists a default output location so later runs do
// not need --output. Without an argument it prints the current default.
func newDefaultOutputCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default-output [path]",
		Short: "Show or set the default output file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootConfigFile(cmd))
			if err != nil {
				return codedError{err: err, code: exitDataErr}
			}
			if len(args) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cfg.Output.Path)
				return nil
			}
			if err := config.SetDefaultOutput(cfg.DataDir, args[0]); err != nil {
				return codedError{err: err, code: exitIOErr}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default output is now %s\n", args[0])
			return nil
		},
	}
}

func rootConfigFile(cmd *cobra.Command) string {
	flag := cmd.Root().PersistentFlags().Lookup("config")
	if flag == nil {
		return ""
	}
	return flag.Value.String()
}
