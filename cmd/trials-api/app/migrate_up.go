package app

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/AntonAks/TaskFromTal/internal/logger"
)

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending database migrations",
	Long: `Apply all pending database migrations to bring the schema up to date.
This command reads the database connection parameters from the config file
and applies all migrations that haven't been run yet. By default both the
studies and analytics databases are migrated; use --database to pick one.`,
	RunE: runMigrateUp,
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	targets, err := migrationTargets(cmd)
	if err != nil {
		return err
	}

	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return fmt.Errorf("failed to get yes flag: %w", err)
	}
	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}
	if numSteps > math.MaxInt {
		return fmt.Errorf("number of steps exceeds maximum allowed value")
	}

	for _, target := range targets {
		if !yes {
			prompt := fmt.Sprintf("About to apply migrations to %s database: %s/%s. Continue?",
				target.name, target.host, target.database)
			if !confirm(prompt) {
				logger.Info("Migration cancelled by user")
				return nil
			}
		}

		logger.Infof("Applying migrations to %s database...", target.name)
		if numSteps == 0 {
			err = target.migrator.Up()
		} else {
			err = target.migrator.Steps(int(numSteps)) // #nosec G115 -- overflow checked above
		}
		if err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Infof("No pending migrations for %s database", target.name)
			} else {
				return fmt.Errorf("failed to migrate %s database: %w", target.name, err)
			}
		}

		displayMigrationVersion(target, 1)
	}

	return nil
}
