package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/garage-relay/internal/infrastructure/config"
	"github.com/nerrad567/garage-relay/internal/infrastructure/database"
	"github.com/nerrad567/garage-relay/internal/infrastructure/logging"
	_ "github.com/nerrad567/garage-relay/migrations"
)

// newRootCmd builds the command tree. Running the root command with no
// subcommand serves the API.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "garagerelay",
		Short:         "HTTP-triggered garage door relay",
		Long:          "garagerelay pulses a GPIO-driven relay on POST /toggle/{key} and issues access keys on POST /user.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", getConfigPath(),
		"path to a YAML config file (env GARAGE_CONFIG); DATABASE_URL alone is enough to start")

	root.AddCommand(
		newServeCmd(&configPath),
		newMigrateCmd(&configPath),
		newUsersCmd(&configPath),
		newPulseCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), *configPath)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "garagerelay %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// getConfigPath returns GARAGE_CONFIG, or "" to run from defaults and
// environment variables only.
func getConfigPath() string {
	return os.Getenv("GARAGE_CONFIG")
}

// loadConfig loads the configuration and builds the logger it describes.
func loadConfig(path string) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, logging.New(cfg.Logging, version), nil
}

// openDatabase opens the database named by DATABASE_URL and applies
// pending migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	path, err := database.PathFromURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}

	db, err := database.Open(ctx, database.Config{
		Path:        path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}
