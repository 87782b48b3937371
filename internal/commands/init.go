package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/notesync/internal/config"
	"github.com/tildaslashalef/notesync/internal/database"
	"github.com/tildaslashalef/notesync/internal/utils"
)

// InitCommand returns the CLI command for initializing notesync
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize or update the notesync environment",
		Description: "Sets up the configuration directory and the settings database. " +
			"Run it once before the first sync, or again after an upgrade to apply new migrations.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-backup",
				Usage: "Overwrite an existing .env without keeping a dated backup",
			},
		},
		Action: func(c *cli.Context) error {
			utils.PrintHeading("Initializing notesync")

			configDir, err := config.DefaultConfigDir()
			if err != nil {
				utils.PrintError(err.Error())
				return err
			}
			utils.PrintInfo("Configuration directory: " + color.YellowString("%s", configDir))

			if err := os.MkdirAll(configDir, 0755); err != nil {
				utils.PrintError(fmt.Sprintf("Failed to create config directory: %s", err))
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			utils.PrintInfo("Extracting default configuration file")
			configFilePath := filepath.Join(configDir, ".env")
			if err := config.SetupConfigDirectory(configDir, !c.Bool("no-backup")); err != nil {
				utils.PrintWarning(fmt.Sprintf("Failed to set up configuration files: %s", err))
			}

			cfg, err := config.LoadFromEnv(configDir, configFilePath, true)
			if err != nil {
				utils.PrintError(fmt.Sprintf("Failed to load configuration: %s", err))
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			utils.PrintInfo("Initializing database...")
			if err := database.InitDB(cfg); err != nil {
				utils.PrintError(fmt.Sprintf("Failed to initialize database: %s", err))
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer database.CloseDB()

			utils.PrintInfo("Applying database migrations...")
			if err := database.RunMigrations(); err != nil {
				utils.PrintError(fmt.Sprintf("Failed to apply migrations: %s", err))
				return fmt.Errorf("failed to apply migrations: %w", err)
			}

			if version, _, err := database.MigrationVersion(); err == nil {
				utils.PrintSuccess(fmt.Sprintf("Database schema at version %d", version))
			}
			utils.PrintSuccess("notesync initialized successfully!")

			utils.PrintInfo("Configuration file: " + color.YellowString("%s", configFilePath))
			utils.PrintInfo("Database location: " + color.YellowString("%s", cfg.Database.Path))
			utils.PrintInfo("Log file location: " + color.YellowString("%s", cfg.Logging.Output))
			fmt.Println("")
			utils.PrintInfo("Next, store your integration token with " +
				color.CyanString("notesync config set --token <token> --export-db <id> --import-db <id>"))

			return nil
		},
	}
}
