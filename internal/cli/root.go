// Package cli is the prefectctl command line: the same operations as the HTTP
// API, run directly against the configured storage.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prefect-attendance/internal/app"
	"prefect-attendance/internal/platform/config"
	"prefect-attendance/internal/platform/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "text" | "json"
	Verbose    bool
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "prefectctl",
		Short: "Prefect attendance from the command line",
		Long: `Mark attendance, read statistics, import and export files, take backups
and sync with the remote store without running the HTTP server.`,
		SilenceUsage:  true,
		SilenceErrors: true, // commands print their own errors
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				err := fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
				return err
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultPath, "path to config.yaml")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log to stderr")

	cmd.AddCommand(newMarkCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newCleanupCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newBackupCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newQRCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// open loads the configuration and builds the service graph. The caller
// closes the returned app.
func open(cmd *cobra.Command, opts *RootOptions) (*app.App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	log := zap.NewNop()
	if opts.Verbose {
		// console format goes to stderr, keeping stdout clean for --format json
		if log, err = logger.New(cfg.Log.Level, "console", "prefectctl"); err != nil {
			return nil, err
		}
	}
	return app.New(cmd.Context(), cfg, log)
}

func formatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr()}
}
