package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/notesync/internal/app"
	"github.com/tildaslashalef/notesync/internal/commands"
)

// Version information - populated at build time
var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "unknown"
	Author     = "unknown"
	Email      = "unknown"
)

// Commands that run without an initialized application
var standalone = map[string]bool{
	"init": true,
	"help": true,
	"h":    true,
}

func main() {
	cliApp := &cli.App{
		Name:  "notesync",
		Usage: "Sync an Obsidian vault with Notion databases",
		Description: "notesync exports changed vault notes to a Notion database and imports\n" +
			"changed Notion pages back into the vault as Markdown notes.\n\n" +
			"When run without subcommands, notesync runs one export and one import pass.",
		Version: fmt.Sprintf("%s (%s)", Version, CommitHash),
		Compiled: func() time.Time {
			t, err := time.Parse(time.RFC3339, BuildTime)
			if err != nil {
				return time.Now()
			}
			return t
		}(),
		Authors: []*cli.Author{
			{
				Name:  Author,
				Email: Email,
			},
		},
		Before: func(c *cli.Context) error {
			if standalone[c.Args().First()] {
				return nil
			}

			application, err := app.New()
			if err != nil {
				return fmt.Errorf("failed to initialize application (did you run `notesync init`?): %w", err)
			}

			// Store the app instance in the context for later use
			c.App.Metadata = map[string]interface{}{
				"app": application,
			}

			return nil
		},
		After: func(c *cli.Context) error {
			if app, ok := c.App.Metadata["app"].(*app.App); ok {
				return app.Shutdown()
			}
			return nil
		},
		Commands: []*cli.Command{
			commands.InitCommand(),
			commands.ExportCommand(),
			commands.ImportCommand(),
			commands.SyncCommand(),
			commands.ArchiveCommand(),
			commands.StatusCommand(),
			commands.ConfigCommand(),
			commands.MigrateCommand(),
		},
		Action: func(c *cli.Context) error {
			// Default action is a single sync
			return commands.SyncCommand().Action(c)
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
