package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kasuganosora/lifequest/server/config"
	dbadapter "github.com/kasuganosora/lifequest/server/db"
	"github.com/kasuganosora/lifequest/server/model"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "lifequest",
	Short: "LifeQuest habit tracker game server",
	// Running the binary without a subcommand serves.
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, SSE and WebSocket server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		return serve(cmd.Context(), cfg, logger)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		db, err := dbadapter.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		if err := model.AutoMigrate(db); err != nil {
			return fmt.Errorf("db migrate: %w", err)
		}
		logger.Info("schema migrated", zap.String("mode", cfg.Database.Mode))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to a YAML config file (LIFEQUEST_* env vars also apply)")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	var logger *zap.Logger
	if cfg.Server.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
