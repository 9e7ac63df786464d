// cmd/listingsync/root.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/listingsync/internal/config"
	"github.com/valpere/listingsync/internal/monitoring"
	"github.com/valpere/listingsync/internal/server"
	lsync "github.com/valpere/listingsync/internal/sync"
	"github.com/valpere/listingsync/internal/utils"
)

const defaultConfigPath = "listingsync.yaml"

type cliOptions struct {
	configPath string
	verbose    bool
	logLevel   string
}

func newRootCommand(opts *cliOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "listingsync",
		Short:         "Harvest an infinite-scroll listing into a spreadsheet or database",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Show technical error details and debug logs")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(newRunCommand(opts))
	rootCmd.AddCommand(newValidateCommand(opts))
	rootCmd.AddCommand(newTemplateCommand())
	rootCmd.AddCommand(newServeCommand(opts))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newRunCommand(opts *cliOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one sync and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			var metrics *monitoring.MetricsManager
			if cfg.Metrics.Enabled || cfg.Metrics.PushgatewayURL != "" {
				metrics = monitoring.NewMetricsManager(cfg.Metrics)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, runErr := lsync.FromConfig(cfg, metrics, logger).WithDryRun(dryRun).Run(ctx)
			if errors.Is(runErr, context.Canceled) {
				runErr = utils.Wrap(utils.ErrCodeContextCanceled, "run interrupted", runErr)
			}

			if metrics != nil && cfg.Metrics.PushgatewayURL != "" {
				pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := metrics.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.PushJob); err != nil {
					logger.WithError(err).Warn("metrics push failed")
				}
				cancel()
			}

			if runErr != nil {
				return runErr
			}
			printSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Crawl and reconcile without writing the table")
	return cmd
}

func newValidateCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.ParseFile(opts.configPath)
			if err != nil {
				return utils.Wrap(utils.ErrCodeInvalidConfig, "failed to load configuration", err)
			}

			out := cmd.OutOrStdout()
			result := cfg.ValidateWithDetails()
			for _, warning := range result.Warnings {
				fmt.Fprintf(out, "warning: %s\n", warning)
			}
			if !result.Valid {
				for _, e := range result.Errors {
					fmt.Fprintf(out, "error: %s\n", e.Error())
				}
				return cfg.Validate()
			}

			fmt.Fprintf(out, "%s is valid (storage: %s, admit cap: %d)\n", opts.configPath, cfg.Storage.Type, cfg.Storage.AdmitCap)
			return nil
		},
	}
}

func newTemplateCommand() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:       "template [sheets|excel|sqlite|postgres|mysql]",
		Short:     "Print a commented configuration file",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: config.TemplateTypes(),
		RunE: func(cmd *cobra.Command, args []string) error {
			storageType := ""
			if len(args) == 1 {
				storageType = args[0]
			}
			content, err := config.GenerateTemplate(storageType)
			if err != nil {
				return err
			}

			if outputPath == "" {
				_, err := io.WriteString(cmd.OutOrStdout(), content)
				return err
			}
			if _, err := os.Stat(outputPath); err == nil {
				return fmt.Errorf("%s already exists", outputPath)
			}
			if err := os.WriteFile(outputPath, []byte(content), 0o644); err != nil {
				return fmt.Errorf("write template: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outputPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

func newServeCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run syncs on a schedule and serve health, status and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			metrics := monitoring.NewMetricsManager(cfg.Metrics)
			srv := server.New(cfg.Server, lsync.FromConfig(cfg, metrics, logger), metrics, logger, version)

			if cfg.Server.WatchConfig {
				watcher, err := config.NewConfigWatcher(opts.configPath, logger)
				if err != nil {
					return err
				}
				defer watcher.Close()
				watcher.OnChange(func(updated *config.Config) {
					srv.SetRunner(lsync.FromConfig(updated, metrics, logger))
					if updated.Server != cfg.Server {
						logger.Warn("server settings changed; restart to apply them")
					}
				})
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Start(ctx)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "listingsync %s (commit %s, built %s)\n", version, gitCommit, buildTime)
		},
	}
}

// loadConfig loads and validates the file; every failure carries the
// INVALID_CONFIG code.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		if utils.HasCode(err, utils.ErrCodeInvalidConfig) {
			return nil, err
		}
		return nil, utils.Wrap(utils.ErrCodeInvalidConfig, "failed to load configuration", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, opts *cliOptions, out io.Writer) (utils.Logger, error) {
	levelName := cfg.Logging.Level
	if opts.logLevel != "" {
		levelName = opts.logLevel
	}
	if opts.verbose {
		levelName = "debug"
	}
	level, err := utils.ParseLogLevel(levelName)
	if err != nil {
		return nil, utils.Wrap(utils.ErrCodeInvalidConfig, "invalid log level", err)
	}

	format := cfg.Logging.Format
	if format == "auto" {
		format = ""
	}
	return utils.NewLoggerWithOptions(utils.LoggerOptions{Level: level, Format: format, Output: out}), nil
}

func printSummary(w io.Writer, s *lsync.Summary) {
	mode := "sync"
	if s.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(w, "%s %s finished in %s\n", mode, s.RunID, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  listed:    %d (%d extracted, %d skipped)\n", s.Rendered, s.Extracted, s.Skipped)
	fmt.Fprintf(w, "  stored:    %d before, %d known again\n", s.Prior, s.Known)
	fmt.Fprintf(w, "  admitted:  %d (%d over the cap)\n", s.Admitted, s.Dropped)
	if !s.DryRun {
		fmt.Fprintf(w, "  written:   %d records\n", s.Written)
	}
	if s.Browser != nil {
		fmt.Fprintf(w, "  browser:   %d pages, %d errors, %d wait timeouts\n",
			s.Browser.PagesLoaded, s.Browser.Errors+s.Browser.JavaScriptErrors, s.Browser.TimeoutsOccurred)
	}
}
