package utils

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Gruvbox-inspired palette, exported through Theme
var (
	gruvboxFgDark  = text.Colors{text.FgHiBlack}
	gruvboxFgLight = text.Colors{text.FgWhite}
	gruvboxRed     = text.Colors{text.FgRed}
	gruvboxGreen   = text.Colors{text.FgGreen}
	gruvboxYellow  = text.Colors{text.FgYellow}
	gruvboxBlue    = text.Colors{text.FgBlue}
	gruvboxAqua    = text.Colors{text.FgCyan}

	gruvboxGreenBright  = text.Colors{text.FgHiGreen}
	gruvboxYellowBright = text.Colors{text.FgHiYellow}
	gruvboxBlueBright   = text.Colors{text.FgHiBlue}
	gruvboxPurpleBright = text.Colors{text.FgHiMagenta}
	gruvboxAquaBright   = text.Colors{text.FgHiCyan}

	gruvboxBold = text.Colors{text.Bold}
)

// Theme - exported theme colors for consistent UI
var Theme = struct {
	// Semantic colors for different message types
	Success   text.Colors
	Info      text.Colors
	Warning   text.Colors
	Error     text.Colors
	Heading   text.Colors
	Subtle    text.Colors
	Important text.Colors
	Accent    text.Colors

	// UI Elements
	Title       text.Colors
	TableHeader text.Colors
	TableBorder text.Colors
	TableRow    text.Colors
	TableAltRow text.Colors
	Badge       text.Colors
	Code        text.Colors
}{
	Success:   gruvboxGreen,
	Info:      gruvboxBlue,
	Warning:   gruvboxYellow,
	Error:     gruvboxRed,
	Heading:   append(gruvboxAquaBright, text.Bold),
	Subtle:    gruvboxFgDark,
	Important: append(gruvboxPurpleBright, text.Bold),
	Accent:    gruvboxAqua,

	Title:       append(gruvboxAquaBright, text.Bold),
	TableHeader: append(gruvboxBlueBright, text.Bold),
	TableBorder: gruvboxBlue,
	TableRow:    gruvboxFgLight,
	TableAltRow: text.Colors{text.FgWhite, text.Faint},
	Badge:       append(gruvboxYellowBright, text.Bold),
	Code:        gruvboxGreenBright,
}

// PrintHeading prints a formatted heading
func PrintHeading(title string) {
	fmt.Println(Theme.Heading.Sprint(title))
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Println(Theme.Success.Sprint("✓ ") + message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Println(Theme.Info.Sprint("ℹ ") + message)
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println(Theme.Warning.Sprint("⚠ ") + message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Println(Theme.Error.Sprint("✗ ") + message)
}

// PrintKeyValue prints a key-value pair
func PrintKeyValue(key, value string) {
	fmt.Printf("%s: %s\n", gruvboxBold.Sprint(key), value)
}

// PrintKeyValueWithColor prints a key-value pair with colored value
func PrintKeyValueWithColor(key string, value string, colors text.Colors) {
	fmt.Printf("%s: %s\n", gruvboxBold.Sprint(key), colors.Sprint(value))
}

// TableOptions defines options for table creation
type TableOptions struct {
	Title  string
	Output io.Writer
	// Widths caps column widths by column number, starting at 1
	Widths map[int]int
}

// DefaultTableOptions returns default table options with Gruvbox theme
func DefaultTableOptions() TableOptions {
	return TableOptions{
		Title:  "notesync",
		Output: os.Stdout,
	}
}

// CreateTable creates a new table with default styling
func CreateTable(options ...TableOptions) table.Writer {
	opts := DefaultTableOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	t := table.NewWriter()
	if opts.Output != nil {
		t.SetOutputMirror(opts.Output)
	}

	if opts.Title != "" {
		t.SetTitle(opts.Title)
	}

	customStyle := table.StyleDouble
	customStyle.Color.Header = Theme.TableHeader
	customStyle.Color.Border = Theme.TableBorder
	customStyle.Color.Row = Theme.TableRow
	customStyle.Color.RowAlternate = Theme.TableAltRow
	customStyle.Title.Colors = Theme.Title
	customStyle.Title.Align = text.AlignCenter

	customStyle.Options.DrawBorder = true
	customStyle.Options.SeparateColumns = true
	customStyle.Options.SeparateFooter = true
	customStyle.Options.SeparateHeader = true
	customStyle.Options.SeparateRows = false

	customStyle.Box.PaddingLeft = " "
	customStyle.Box.PaddingRight = " "

	t.SetStyle(customStyle)
	return t
}

// PrintTable prints a table with headers and rows
func PrintTable(headers []string, rows [][]string, options ...TableOptions) {
	opts := DefaultTableOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	t := CreateTable(opts)

	headerRow := table.Row{}
	for _, header := range headers {
		headerRow = append(headerRow, header)
	}
	t.AppendHeader(headerRow)

	for _, row := range rows {
		tableRow := table.Row{}
		for _, cell := range row {
			tableRow = append(tableRow, cell)
		}
		t.AppendRow(tableRow)
	}

	configs := []table.ColumnConfig{}
	for i := range headers {
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       text.AlignLeft,
			AlignHeader: text.AlignCenter,
			WidthMax:    opts.Widths[i+1],
		})
	}
	t.SetColumnConfigs(configs)

	t.Render()
}

// PrintTreeList prints a tree-like list with parent-child relationships
func PrintTreeList(title string, items []string) {
	l := list.NewWriter()
	l.SetStyle(list.StyleConnectedRounded)
	l.AppendItem(title)

	l.Indent()
	for _, item := range items {
		l.AppendItem(item)
	}
	l.UnIndent()

	fmt.Println(l.Render())
}

// CreateProgressWriter creates a progress writer rendering to out
func CreateProgressWriter(out io.Writer) progress.Writer {
	pw := progress.NewWriter()
	pw.SetAutoStop(false)
	pw.SetTrackerLength(25)
	pw.SetMessageLength(40)
	pw.SetNumTrackersExpected(1)
	pw.SetStyle(progress.StyleDefault)
	pw.SetTrackerPosition(progress.PositionRight)
	pw.SetUpdateFrequency(time.Millisecond * 100)
	pw.Style().Colors.Message = Theme.Info
	pw.Style().Colors.Percent = Theme.Important
	pw.Style().Colors.Time = Theme.Subtle
	pw.Style().Colors.Value = Theme.Success
	pw.Style().Options.PercentFormat = " %.1f%%"
	pw.Style().Visibility.Speed = false

	pw.SetOutputWriter(out)

	return pw
}

// RenderMarkdown renders Markdown for the terminal, wrapping at width
func RenderMarkdown(markdown string, width int) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("creating markdown renderer: %w", err)
	}

	out, err := renderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return out, nil
}
