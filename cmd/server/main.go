package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iliyamo/bean-counter/internal/config"
	"github.com/iliyamo/bean-counter/internal/database"
	"github.com/iliyamo/bean-counter/internal/logging"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "bean-counter",
		Short:         "Inventory dashboard with cookie sessions and role based access",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		seedCmd(),
		sessionsCmd(),
		mailWorkerCmd(),
		versionCmd(),
	)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and initialises logging.
func bootstrap() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	return cfg, nil
}

// openDB bootstraps and connects to MySQL.
func openDB(ctx context.Context) (config.Config, *sql.DB, error) {
	cfg, err := bootstrap()
	if err != nil {
		return config.Config{}, nil, err
	}
	db, err := database.Open(ctx, cfg.DSN())
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("open database: %w", err)
	}
	return cfg, db, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bean-counter %s (%s)\n", version, commit)
		},
	}
}
