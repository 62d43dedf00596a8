package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AntonAks/TaskFromTal/database"
	"github.com/AntonAks/TaskFromTal/internal/config"
	"github.com/AntonAks/TaskFromTal/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tool",
	Long:  `Database migration tool for managing schema versions. Use with 'up' or 'down' subcommands.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Usage()
	},
}

func init() {
	migrateCmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")
	migrateCmd.PersistentFlags().UintP("num-steps", "n", 0, "Number of steps to migrate (0 = all)")
	migrateCmd.PersistentFlags().String("config", "", "Path to configuration file (YAML format, required)")
	migrateCmd.PersistentFlags().String("database", "all", "Database to migrate (studies, analytics, or all)")

	if err := migrateCmd.MarkPersistentFlagRequired("config"); err != nil {
		panic(err)
	}

	// Add subcommands
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}

// migrationTarget pairs a migrator with the database it manages.
type migrationTarget struct {
	name     string
	host     string
	database string
	migrator database.Migrator
}

// migrationTargets builds migrators for the databases selected by the
// --database flag, in studies-then-analytics order.
func migrationTargets(cmd *cobra.Command) ([]migrationTarget, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	selected, err := cmd.Flags().GetString("database")
	if err != nil {
		return nil, fmt.Errorf("failed to get database flag: %w", err)
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	type candidate struct {
		name string
		cfg  *config.DatabaseConfig
		new  func(string) (database.Migrator, error)
	}
	candidates := []candidate{
		{"studies", cfg.StudiesDatabase, database.NewStudiesMigrator},
		{"analytics", cfg.AnalyticsDatabase, database.NewAnalyticsMigrator},
	}

	var targets []migrationTarget
	for _, c := range candidates {
		if selected != "all" && selected != c.name {
			continue
		}
		connString, err := c.cfg.GetConnectionString()
		if err != nil {
			return nil, fmt.Errorf("failed to build %s connection string: %w", c.name, err)
		}
		m, err := c.new(connString)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s migrator: %w", c.name, err)
		}
		targets = append(targets, migrationTarget{
			name:     c.name,
			host:     c.cfg.Host,
			database: c.cfg.Database,
			migrator: m,
		})
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("unknown database %q (expected studies, analytics, or all)", selected)
	}
	return targets, nil
}

// confirm prompts on stdin and returns true for a "yes" or "y" answer.
func confirm(prompt string) bool {
	fmt.Printf("%s (yes/no): ", prompt)
	var response string
	if _, err := fmt.Scanln(&response); err != nil {
		return false
	}
	return response == "yes" || response == "y"
}

func displayMigrationVersion(target migrationTarget, numSteps uint) {
	version, dirty, err := target.migrator.Version()
	if err != nil {
		if numSteps == 0 {
			logger.Infof("Schema for %s database has been completely removed", target.name)
		} else {
			logger.Warnf("Failed to get migration version for %s database: %v", target.name, err)
		}
		return
	}

	if dirty {
		logger.Warnf("%s database migration version: %d (dirty - manual intervention may be required)",
			target.name, version)
	} else {
		logger.Infof("%s database migration version: %d", target.name, version)
	}
}
