// internal/cmd/root.go
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/javajoker/sevenfour-backend/internal/config"
	"github.com/javajoker/sevenfour-backend/internal/database"
	"github.com/javajoker/sevenfour-backend/internal/services"
)

const (
	envFileFlag  = "env-file"
	logLevelFlag = "log-level"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "admin",
		Short: "Seven Four Clothing maintenance commands",
		Long: `Maintenance commands for the Seven Four Clothing backend.

Runs migrations, seeds the catalog, and checks or repairs stock and
delivery bookkeeping against the configured database.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := logrus.ParseLevel(viper.GetString("log_level"))
			if err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			logrus.SetLevel(level)
			logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			logrus.SetOutput(cmd.ErrOrStderr())
			return nil
		},
	}

	rootCmd.PersistentFlags().String(envFileFlag, ".env", "Dotenv file loaded before reading configuration")
	rootCmd.PersistentFlags().String(logLevelFlag, "info", "Log level (debug, info, warn, error)")

	// ADMIN_ENV_FILE and ADMIN_LOG_LEVEL override the flag defaults
	viper.SetEnvPrefix("ADMIN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.BindPFlag("env_file", rootCmd.PersistentFlags().Lookup(envFileFlag))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup(logLevelFlag))

	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newSeedCommand())
	rootCmd.AddCommand(newStockCommand())
	rootCmd.AddCommand(newDeliveryCommand())
	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type environment struct {
	cfg      *config.Config
	db       *gorm.DB
	registry *services.Registry
	close    func()
}

func (e *environment) Close() {
	if e.close != nil {
		e.close()
	}
}

// openEnvironment is swapped out in tests to run commands against a
// prepared database.
var openEnvironment = connect

// connect loads configuration and opens the database. Migrations are not run
// here; the migrate command owns that.
func connect() (*environment, error) {
	if envFile := viper.GetString("env_file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		return nil, err
	}

	registry, err := services.NewRegistry(db, cfg, services.NewProductCache(cfg.Redis), nil)
	if err != nil {
		database.Close(db)
		return nil, err
	}
	return &environment{
		cfg:      cfg,
		db:       db,
		registry: registry,
		close:    func() { database.Close(db) },
	}, nil
}

func printJSON(w io.Writer, v interface{}) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(encoded))
	return err
}
