package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/ytharvest/internal/app"
	"github.com/aatumaykin/ytharvest/internal/config"
	"github.com/aatumaykin/ytharvest/internal/constants"
	"github.com/aatumaykin/ytharvest/internal/logger"
)

var (
	configPath string
	envFile    string
	debugMode  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ytharvest",
	Short: "ytharvest - scheduled YouTube metadata harvester",
	Long: `ytharvest keeps a durable set of scheduled jobs that fetch channel, video,
playlist, search and comment metadata. Each job tries the YouTube Data API first
and falls back to scraping the public pages when the API cannot serve it.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to configuration file (TOML or YAML)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "Path to .env file (ignored when missing)")
	rootCmd.PersistentFlags().BoolVarP(&debugMode, "debug", "d", false, "Enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(removeCmd)
}

// loadConfig reads the .env file and the configuration and validates it.
// A missing default config file falls back to the built-in defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadEnvOptional(envFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg, err = config.LoadDefaults()
	}
	if err != nil {
		return nil, fmt.Errorf(constants.MsgConfigLoadError, err)
	}

	if debugMode {
		cfg.Logging.Level = "debug"
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		w := cmd.ErrOrStderr()
		fmt.Fprint(w, constants.MsgConfigValidationError)
		for _, e := range errs {
			fmt.Fprintf(w, constants.MsgConfigValidatePrefix, e)
		}
		return nil, fmt.Errorf("%d configuration error(s)", len(errs))
	}
	return cfg, nil
}

// newApp loads the configuration and creates the logger and the application.
// The returned cleanup closes the logger.
func newApp(cmd *cobra.Command) (*app.App, *logger.Logger, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetDefault(log)

	return app.New(cfg, log, appOptions...), log, func() { _ = log.Close() }, nil
}

// appOptions are passed to every App the commands create.
var appOptions []app.Option

// withApp runs fn against an initialized application and shuts it down
// afterwards. The scheduler loop is not started.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	a, _, cleanup, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if err := a.Initialize(ctx); err != nil {
		return err
	}

	runErr := fn(ctx, a)
	if err := a.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
