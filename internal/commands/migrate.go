package commands

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/notesync/internal/database"
	"github.com/tildaslashalef/notesync/internal/utils"
)

// MigrateCommand returns the CLI command for database migrations
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "Manage database migrations",
		Hidden: true,
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: func(c *cli.Context) error {
					utils.PrintInfo("Applying embedded migrations")

					if err := database.RunMigrations(); err != nil {
						utils.PrintError(fmt.Sprintf("Failed to apply migrations: %s", err))
						return fmt.Errorf("failed to apply migrations: %w", err)
					}

					utils.PrintSuccess("Database schema is up-to-date")
					return nil
				},
			},
			{
				Name:  "down",
				Usage: "Revert the last migration",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "steps",
						Usage: "Number of migrations to revert",
						Value: 1,
					},
				},
				Action: func(c *cli.Context) error {
					steps := c.Int("steps")
					if steps < 1 {
						return fmt.Errorf("steps must be at least 1, got %d", steps)
					}

					utils.PrintWarning(fmt.Sprintf("Reverting %d embedded migration(s)", steps))

					if err := database.RevertMigrations(steps); err != nil {
						utils.PrintError(fmt.Sprintf("Failed to revert migrations: %s", err))
						return fmt.Errorf("failed to revert migrations: %w", err)
					}

					utils.PrintSuccess("Migration(s) reverted successfully!")
					return nil
				},
			},
			{
				Name:  "version",
				Usage: "Show the current schema version",
				Action: func(c *cli.Context) error {
					version, dirty, err := database.MigrationVersion()
					if err != nil {
						return fmt.Errorf("failed to read migration version: %w", err)
					}

					utils.PrintKeyValue("Version", fmt.Sprintf("%d", version))
					if dirty {
						utils.PrintWarning("Schema is dirty, a migration failed halfway")
					}
					return nil
				},
			},
		},
	}
}
