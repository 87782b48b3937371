package commands

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/notesync/internal/app"
	"github.com/tildaslashalef/notesync/internal/sync"
	"github.com/tildaslashalef/notesync/internal/utils"
)

// StatusCommand returns the CLI command showing cursors and recent sync history
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the cursors and recent sync history",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "direction",
				Aliases: []string{"d"},
				Usage:   "Only show export or import entries",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Number of entries to show",
				Value:   20,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Skip this many entries",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Print full error messages",
			},
		},
		Action: func(c *cli.Context) error {
			application, err := app.FromContext(c)
			if err != nil {
				return err
			}
			ctx := c.Context

			direction := sync.Direction(c.String("direction"))
			if direction != "" && direction != sync.DirectionExport && direction != sync.DirectionImport {
				return fmt.Errorf("unknown direction %q, use export or import", direction)
			}

			cursor, err := application.Settings.LoadCursor(ctx)
			if err != nil {
				return err
			}

			opts := utils.DefaultTableOptions()
			opts.Title = "Cursors"
			rows := cursorRows(cursor)
			for _, d := range []sync.Direction{sync.DirectionExport, sync.DirectionImport} {
				last, err := application.SyncLogs.GetLatestSyncLog(ctx, d)
				if err != nil {
					return err
				}
				rows = append(rows, []string{fmt.Sprintf("Last %s pass", d), lastPassSummary(last)})
			}
			utils.PrintTable([]string{"", ""}, rows, opts)

			logs, err := application.SyncLogs.GetSyncLogs(ctx, direction, c.Int("limit"), c.Int("offset"))
			if err != nil {
				return err
			}
			if len(logs) == 0 {
				utils.PrintInfo("No sync history yet")
				return nil
			}

			printSyncLogs(logs, c.Bool("verbose"))
			return nil
		},
	}
}

func lastPassSummary(log *sync.SyncLog) string {
	if log == nil {
		return "never"
	}
	summary := fmt.Sprintf("%s, %s", utils.FormatTime(log.CompletedAt), log.ItemRef)
	if !log.Success {
		summary += " (" + utils.Truncate(log.ErrorMessage, 40) + ")"
	}
	return summary
}

func printSyncLogs(logs []*sync.SyncLog, verbose bool) {
	rows := make([][]string, 0, len(logs))
	for _, l := range logs {
		result := utils.Theme.Success.Sprint("ok")
		if !l.Success {
			result = utils.Theme.Error.Sprint(string(l.ErrorType))
		}

		message := utils.Truncate(l.ErrorMessage, 50)
		if verbose {
			message = utils.Wrap(l.ErrorMessage, 50)
		}

		rows = append(rows, []string{
			utils.FormatTime(l.CompletedAt),
			string(l.Direction),
			utils.Truncate(l.ItemRef, 40),
			string(l.Action),
			result,
			message,
		})
	}

	opts := utils.DefaultTableOptions()
	opts.Title = "Recent sync history"
	utils.PrintTable([]string{"Time", "Direction", "Item", "Action", "Result", "Error"}, rows, opts)
}
