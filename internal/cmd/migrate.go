// internal/cmd/migrate.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javajoker/sevenfour-backend/internal/database"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables and indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openEnvironment()
			if err != nil {
				return err
			}
			defer env.Close()

			if err := database.RunMigrations(env.db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations completed")
			return nil
		},
	}
}
