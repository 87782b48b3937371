package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/notesync/internal/app"
	"github.com/tildaslashalef/notesync/internal/notion"
	"github.com/tildaslashalef/notesync/internal/utils"
)

// ArchiveCommand returns the CLI command archiving the page of an exported note
func ArchiveCommand() *cli.Command {
	return &cli.Command{
		Name:      "archive",
		Usage:     "Archive the Notion page of an exported note and unlink the note",
		ArgsUsage: "<note path>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected one note path, got %d", c.NArg())
			}

			application, err := app.FromContext(c)
			if err != nil {
				return err
			}

			service, err := application.NewSyncService()
			if err != nil {
				return err
			}

			notePath := c.Args().First()
			pageID, err := service.ArchiveNote(c.Context, notePath)
			if err != nil {
				utils.PrintError(fmt.Sprintf("Failed to archive %s: %s", notePath, err))
				return err
			}

			utils.PrintSuccess(fmt.Sprintf("Archived %s", color.YellowString("%s", notion.PageURL(pageID))))
			utils.PrintInfo(fmt.Sprintf("%s is no longer linked and will be created again on the next export", notePath))
			return nil
		},
	}
}
