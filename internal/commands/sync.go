package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/notesync/internal/app"
	"github.com/tildaslashalef/notesync/internal/sync"
	"github.com/tildaslashalef/notesync/internal/utils"
)

var passFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:    "force",
		Aliases: []string{"f"},
		Usage:   "Reset the cursor and process every item",
	},
	&cli.BoolFlag{
		Name:    "dry-run",
		Aliases: []string{"n"},
		Usage:   "Show what would be synced without changing anything",
	},
	&cli.BoolFlag{
		Name:  "no-progress",
		Usage: "Do not draw progress bars",
	},
}

// ExportCommand returns the CLI command pushing vault notes to the export database
func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export changed vault notes to Notion",
		Flags: passFlags,
		Action: func(c *cli.Context) error {
			ctx, stop := signalContext(c.Context)
			defer stop()
			return runPass(ctx, c, sync.DirectionExport)
		},
	}
}

// ImportCommand returns the CLI command pulling pages from the import database
func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import changed Notion pages into the vault",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "preview",
				Usage: "Render a page as Markdown without writing it (page ID or URL)",
			},
			&cli.IntFlag{
				Name:  "width",
				Usage: "Wrap width of the preview",
				Value: 100,
			},
		}, passFlags...),
		Action: func(c *cli.Context) error {
			ctx, stop := signalContext(c.Context)
			defer stop()

			if page := c.String("preview"); page != "" {
				return previewPage(ctx, c, page)
			}
			return runPass(ctx, c, sync.DirectionImport)
		},
	}
}

// SyncCommand returns the CLI command running export then import, once or on an interval
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Export then import, optionally repeating on an interval",
		Flags: append([]cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "Repeat every interval until interrupted, 0 runs once (default from NOTESYNC_SYNC_INTERVAL)",
			},
		}, passFlags...),
		Action: func(c *cli.Context) error {
			application, err := app.FromContext(c)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(c.Context)
			defer stop()

			interval := application.Config.Sync.Interval
			if c.IsSet("interval") {
				interval = c.Duration("interval")
			}

			if interval <= 0 {
				return syncOnce(ctx, c)
			}

			utils.PrintInfo(fmt.Sprintf("Syncing every %s, press Ctrl+C to stop", interval))
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				// Failures are already reported, the next tick retries them
				if err := syncOnce(ctx, c); err != nil && ctx.Err() != nil {
					return nil
				}

				select {
				case <-ctx.Done():
					utils.PrintInfo("Stopped")
					return nil
				case <-ticker.C:
				}
			}
		},
	}
}

func syncOnce(ctx context.Context, c *cli.Context) error {
	exportErr := runPass(ctx, c, sync.DirectionExport)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	importErr := runPass(ctx, c, sync.DirectionImport)
	return errors.Join(exportErr, importErr)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// runPass runs or plans one pass and prints its outcome
func runPass(ctx context.Context, c *cli.Context, direction sync.Direction) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	force := c.Bool("force")

	if c.Bool("dry-run") {
		service, err := application.NewSyncService(sync.WithDryRun(true))
		if err != nil {
			return err
		}
		return printPlan(ctx, service, direction, force)
	}

	var opts []sync.Option
	var progress *progressObserver
	if !c.Bool("no-progress") {
		progress = newProgressObserver(os.Stdout)
		opts = append(opts, sync.WithObservers(progress))
	}

	service, err := application.NewSyncService(opts...)
	if err != nil {
		if progress != nil {
			progress.Close()
		}
		return err
	}

	var report sync.SummaryReport
	switch {
	case direction == sync.DirectionExport && force:
		report, err = service.ForceExportPass(ctx)
	case direction == sync.DirectionExport:
		report, err = service.RunExportPass(ctx)
	case force:
		report, err = service.ForceImportPass(ctx)
	default:
		report, err = service.RunImportPass(ctx)
	}

	var failures []sync.ItemEvent
	if progress != nil {
		progress.Close()
		failures = progress.Failures()
	}

	if err != nil {
		var cfgErr *sync.ConfigurationError
		if errors.As(err, &cfgErr) {
			utils.PrintError(cfgErr.Error())
			utils.PrintInfo("Set the missing values with " + color.CyanString("notesync config set"))
			return err
		}
		utils.PrintError(fmt.Sprintf("%s pass failed: %s", direction, err))
		return err
	}

	printReport(report, failures)
	return nil
}

func printReport(report sync.SummaryReport, failures []sync.ItemEvent) {
	fmt.Println()
	utils.PrintHeading(fmt.Sprintf("%s pass", report.Direction))
	utils.PrintKeyValue("Pass", report.PassID)
	utils.PrintKeyValue("Changed", fmt.Sprintf("%d", report.ItemsChanged))
	utils.PrintKeyValueWithColor("Succeeded", fmt.Sprintf("%d", report.Succeeded), utils.Theme.Success)
	if report.Failed > 0 {
		utils.PrintKeyValueWithColor("Failed", fmt.Sprintf("%d", report.Failed), utils.Theme.Error)
	} else {
		utils.PrintKeyValue("Failed", "0")
	}
	utils.PrintKeyValue("Duration", utils.FormatDuration(report.Duration))

	if len(failures) == 0 {
		if report.ItemsChanged == 0 {
			utils.PrintInfo("Nothing changed since the last pass")
		}
		return
	}

	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		rows = append(rows, []string{
			f.Ref,
			string(sync.ClassifyError(f.Err)),
			utils.Truncate(errString(f.Err), 60),
		})
	}

	opts := utils.DefaultTableOptions()
	opts.Title = "Failed items"
	opts.Widths = map[int]int{1: 40}
	utils.PrintTable([]string{"Item", "Type", "Error"}, rows, opts)
}

func printPlan(ctx context.Context, service *sync.Service, direction sync.Direction, force bool) error {
	var plan sync.Plan
	var err error
	if direction == sync.DirectionExport {
		plan, err = service.PlanExport(ctx, force)
	} else {
		plan, err = service.PlanImport(ctx, force)
	}
	if err != nil {
		utils.PrintError(fmt.Sprintf("Planning %s failed: %s", direction, err))
		return err
	}

	if len(plan.Items) == 0 {
		utils.PrintInfo(fmt.Sprintf("Nothing to %s", direction))
		return nil
	}

	items := make([]string, 0, len(plan.Items))
	for _, item := range plan.Items {
		switch {
		case direction == sync.DirectionImport:
			items = append(items, fmt.Sprintf("%s -> %s", item.Ref, color.YellowString("%s", item.Target)))
		case item.Action == sync.ActionCreated:
			items = append(items, fmt.Sprintf("%s %s", item.Ref, color.GreenString("(create)")))
		default:
			items = append(items, fmt.Sprintf("%s %s", item.Ref, color.BlueString("(update)")))
		}
	}

	utils.PrintTreeList(fmt.Sprintf("Would %s %d item(s)", direction, len(plan.Items)), items)
	return nil
}

func previewPage(ctx context.Context, c *cli.Context, page string) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	service, err := application.NewSyncService()
	if err != nil {
		return err
	}

	markdown, err := service.PreviewPage(ctx, page)
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to fetch page: %s", err))
		return err
	}

	rendered, err := utils.RenderMarkdown(markdown, c.Int("width"))
	if err != nil {
		// Fall back to the raw Markdown
		fmt.Println(markdown)
		return nil
	}
	fmt.Print(rendered)
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
