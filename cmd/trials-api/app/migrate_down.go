package app

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/AntonAks/TaskFromTal/internal/logger"
)

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Migrate the database down",
	Long: `Migrate the database schema down by reverting migrations.
WARNING: This operation can result in data loss. Use with caution.

Examples:
  # Migrate the analytics database down by 1 step
  trials-api migrate down --config config.yaml --database analytics --num-steps 1 --yes

  # Migrate both databases down all the way (WARNING: destroys all data)
  trials-api migrate down --config config.yaml --yes`,
	RunE: runMigrateDown,
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	targets, err := migrationTargets(cmd)
	if err != nil {
		return err
	}

	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}
	if numSteps > math.MaxInt {
		return fmt.Errorf("number of steps exceeds maximum allowed value")
	}

	if err := confirmMigrateDown(cmd, targets, numSteps); err != nil {
		return err
	}

	for _, target := range targets {
		if err := executeMigrateDown(target, numSteps); err != nil {
			return err
		}
		displayMigrationVersion(target, numSteps)
	}

	return nil
}

func confirmMigrateDown(cmd *cobra.Command, targets []migrationTarget, numSteps uint) error {
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return fmt.Errorf("failed to get yes flag: %w", err)
	}

	if yes {
		return nil
	}

	var prompt string
	if numSteps == 0 {
		prompt = fmt.Sprintf("WARNING: This will migrate down ALL steps on %d database(s) and may result in complete data loss. Continue?",
			len(targets))
	} else {
		prompt = fmt.Sprintf("WARNING: This will migrate down %d step(s) on %d database(s) and may result in data loss. Continue?",
			numSteps, len(targets))
	}

	if !confirm(prompt) {
		logger.Info("Migration cancelled")
		return fmt.Errorf("migration cancelled by user")
	}

	return nil
}

func executeMigrateDown(target migrationTarget, numSteps uint) error {
	var err error
	if numSteps == 0 {
		logger.Warnf("Migrating down all steps on %s database - this will remove all schema!", target.name)
		err = target.migrator.Down()
	} else {
		logger.Infof("Migrating down %d step(s) on %s database...", numSteps, target.name)
		err = target.migrator.Steps(-1 * int(numSteps)) // #nosec G115 -- overflow checked by caller
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Infof("No migrations to revert - %s database is already at the oldest version", target.name)
			return nil
		}
		return fmt.Errorf("migration of %s database failed: %w", target.name, err)
	}

	logger.Infof("Migration of %s database completed successfully", target.name)
	return nil
}
