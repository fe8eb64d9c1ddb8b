package main

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/orthodesk/orthodesk/internal/config"
)

var (
	configPath string
	log        = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:          "orthoctl",
	Short:        "orthodesk operations CLI",
	Long:         `A CLI tool for migrating the orthodesk database and issuing access tokens.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadConfig(configPath); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log = config.App.NewLogger()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (default: ./config/dev.config.yaml if present)")
}

// openDB connects to DATABASE_URL and checks the connection
func openDB() (*sql.DB, error) {
	if config.App.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	pg, err := sql.Open("postgres", config.App.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pg.Ping(); err != nil {
		pg.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pg, nil
}
