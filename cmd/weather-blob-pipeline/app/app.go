// Package app provides the command line interface of the weather blob
// pipeline.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/i474232898/weather-blob-pipeline/internal/config"
	"github.com/i474232898/weather-blob-pipeline/internal/pipeline"
	"github.com/i474232898/weather-blob-pipeline/internal/scheduler"
	"github.com/i474232898/weather-blob-pipeline/internal/store"
)

const cmdName = "weather-blob-pipeline"

// App represents the application.
type App struct {
	cmd   *cobra.Command
	viper *viper.Viper

	verbosity int
	jsonLogs  bool
}

// New creates a new App with the run and serve commands installed.
func New() *App {
	a := &App{viper: viper.New()}

	a.cmd = &cobra.Command{
		Use:           cmdName,
		Short:         "Collect weather observations into Parquet files on blob storage",
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			setSlog(a.verbosity, a.jsonLogs)
		},
	}
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	flags := a.cmd.PersistentFlags()
	flags.CountVarP(&a.verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	flags.BoolVar(&a.jsonLogs, "json-logs", false, "log in JSON format")
	flags.String("include-dir", "", "base directory of the locations file")
	flags.String("locations-file", "", "locations file, relative to the include directory")
	flags.String("container-name", "", "blob container receiving the Parquet files")
	flags.Int("step-retries", 0, "retries per pipeline step")
	flags.Duration("step-retry-delay", 0, "delay between step retries")

	mustBind(a.viper, flags.Lookup("include-dir"), config.KeyIncludeDir)
	mustBind(a.viper, flags.Lookup("locations-file"), config.KeyLocationsFile)
	mustBind(a.viper, flags.Lookup("container-name"), config.KeyContainerName)
	mustBind(a.viper, flags.Lookup("step-retries"), config.KeyStepRetries)
	mustBind(a.viper, flags.Lookup("step-retry-delay"), config.KeyStepRetryDelay)

	a.cmd.AddCommand(a.runCmd(), a.serveCmd())
	return a
}

// Run executes the command and associated process, returning an error if any.
func (a *App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a *App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// RootCmd returns the root command.
func (a *App) RootCmd() *cobra.Command {
	return a.cmd
}

func (a *App) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(a.viper)
			if err != nil {
				return err
			}
			c, err := build(cfg)
			if err != nil {
				return err
			}

			run, err := c.pipeline.Run(ctx, store.TriggerCLI)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s uploaded %d rows to %s/%s\n", run.ID, run.Rows, cfg.Params.ContainerName, run.BlobKey)
			return nil
		},
	}
}

func (a *App) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline on its schedule and serve the status API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.viper)
			if err != nil {
				return err
			}
			c, err := build(cfg)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, c)
		},
	}

	cmd.Flags().String("schedule", "", "cron expression of the pipeline schedule, in UTC")
	cmd.Flags().Bool("catch-up", false, "run once immediately at start")
	cmd.Flags().String("port", "", "port of the status API")
	mustBind(a.viper, cmd.Flags().Lookup("schedule"), config.KeySchedule)
	mustBind(a.viper, cmd.Flags().Lookup("catch-up"), config.KeyCatchUp)
	mustBind(a.viper, cmd.Flags().Lookup("port"), config.KeyPort)

	return cmd
}

func serve(ctx context.Context, cfg *config.AppConfig, c *components) error {
	sched := scheduler.New(cfg.Schedule, cfg.CatchUp, c.pipeline, pipeline.NewRunID)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	srv := newServer(c, sched)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(":" + cfg.Port)
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("fiber server stopped: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("error during shutdown", "error", err)
	}
	return nil
}

func setSlog(level int, jsonLogs bool) {
	opts := &slog.HandlerOptions{Level: logLevel(level)}
	if jsonLogs {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
		return
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
}

func logLevel(level int) slog.Level {
	switch level {
	case 0:
		return slog.LevelWarn
	case 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func mustBind(v *viper.Viper, flag *pflag.Flag, key string) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %s: %v", flag.Name, err))
	}
}
