package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/notesync/internal/app"
	"github.com/tildaslashalef/notesync/internal/config"
	"github.com/tildaslashalef/notesync/internal/notion"
	"github.com/tildaslashalef/notesync/internal/utils"
)

// ConfigCommand returns the CLI command for viewing and editing sync settings
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show or change the sync settings",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the current settings",
				Action: showConfig,
			},
			{
				Name:  "set",
				Usage: "Change one or more settings",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "token", Usage: "Notion integration token"},
					&cli.StringFlag{Name: "import-db", Usage: "Database pages are imported from (ID or link)"},
					&cli.StringFlag{Name: "export-db", Usage: "Database notes are exported to (ID or link)"},
					&cli.StringFlag{Name: "proxy", Usage: "HTTP(S) proxy URL, empty to disable"},
					&cli.StringFlag{Name: "import-folder", Usage: "Vault folder imported notes are written to"},
					&cli.StringFlag{Name: "export-folder", Usage: "Vault folder exported notes are read from"},
					&cli.BoolFlag{Name: "convert-tags", Usage: "Send frontmatter tags to the tags property"},
					&cli.StringSliceFlag{Name: "import-tags", Usage: "Tags added to every imported note"},
				},
				Action: setConfig,
			},
		},
		Action: showConfig,
	}
}

func showConfig(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	settings := application.Settings.Settings()
	token := color.RedString("not set")
	if settings.Token != "" {
		token = utils.MaskSecret(settings.Token)
	}

	rows := [][]string{
		{"Token", token},
		{"Export database", orUnset(settings.ExportDatabaseID)},
		{"Import database", orUnset(settings.ImportDatabaseID)},
		{"Export folder", settings.ExportFolder},
		{"Import folder", settings.ImportFolder},
		{"Convert tags", strconv.FormatBool(settings.ConvertTags)},
		{"Import tags", strings.Join(settings.ImportTags, ", ")},
		{"Proxy", settings.Proxy},
		{"Vault", application.Config.Vault.Path},
	}

	opts := utils.DefaultTableOptions()
	opts.Title = "Sync settings"
	utils.PrintTable([]string{"Setting", "Value"}, rows, opts)
	return nil
}

func orUnset(value string) string {
	if value == "" {
		return color.RedString("not set")
	}
	return value
}

func setConfig(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	settings := application.Settings

	type change struct {
		flag  string
		apply func() error
	}

	changes := []change{
		{"token", func() error { return settings.SetToken(ctx, strings.TrimSpace(c.String("token"))) }},
		{"import-db", func() error {
			return setDatabaseID(c.String("import-db"), func(id string) error { return settings.SetImportDatabaseID(ctx, id) })
		}},
		{"export-db", func() error {
			return setDatabaseID(c.String("export-db"), func(id string) error { return settings.SetExportDatabaseID(ctx, id) })
		}},
		{"proxy", func() error { return settings.SetProxy(ctx, strings.TrimSpace(c.String("proxy"))) }},
		{"import-folder", func() error { return settings.SetImportFolder(ctx, c.String("import-folder")) }},
		{"export-folder", func() error { return settings.SetExportFolder(ctx, c.String("export-folder")) }},
		{"convert-tags", func() error { return settings.SetConvertTags(ctx, c.Bool("convert-tags")) }},
		{"import-tags", func() error { return settings.SetImportTags(ctx, c.StringSlice("import-tags")) }},
	}

	updated := 0
	for _, ch := range changes {
		if !c.IsSet(ch.flag) {
			continue
		}
		if err := ch.apply(); err != nil {
			utils.PrintError(fmt.Sprintf("Failed to set %s: %s", ch.flag, err))
			return err
		}
		utils.PrintSuccess(fmt.Sprintf("Updated %s", ch.flag))
		updated++
	}

	if updated == 0 {
		utils.PrintWarning("Nothing to change, see " + color.CyanString("notesync config set --help"))
	}
	return nil
}

// setDatabaseID stores the normalized form of a database ID or link
func setDatabaseID(value string, save func(string) error) error {
	if strings.TrimSpace(value) == "" {
		return save("")
	}
	id, err := notion.NormalizeID(value)
	if err != nil {
		return err
	}
	return save(id)
}

// cursorRows formats the persisted cursors
func cursorRows(cursor config.Cursor) [][]string {
	return [][]string{
		{"Last export", utils.FormatTime(cursor.LastExportedTime)},
		{"Last import", utils.FormatTime(cursor.LastImportedTime)},
	}
}
