package markdown

import (
	"fmt"
	"strings"

	"github.com/tildaslashalef/notesync/internal/notion"
)

const childIndent = "    "

// BlocksToMarkdown renders a block tree as Markdown. Consecutive list items
// of one kind are separated by a newline, everything else by a blank line.
// Unknown block types render whatever text their payload carries.
func BlocksToMarkdown(blocks []notion.Block) string {
	out := renderBlocks(blocks)
	if out == "" {
		return ""
	}
	return out + "\n"
}

func renderBlocks(blocks []notion.Block) string {
	var (
		sb     strings.Builder
		prev   notion.BlockType
		number int
	)

	for _, b := range blocks {
		if b.Type == notion.BlockNumberedListItem && prev == notion.BlockNumberedListItem {
			number++
		} else {
			number = 1
		}

		rendered := renderBlock(b, number)
		if rendered == "" {
			continue
		}

		if sb.Len() > 0 {
			if isListItem(b.Type) && b.Type == prev {
				sb.WriteString("\n")
			} else {
				sb.WriteString("\n\n")
			}
		}
		sb.WriteString(rendered)
		prev = b.Type
	}

	return sb.String()
}

func isListItem(t notion.BlockType) bool {
	switch t {
	case notion.BlockBulletedListItem, notion.BlockNumberedListItem, notion.BlockToDo:
		return true
	}
	return false
}

func renderBlock(b notion.Block, number int) string {
	text := renderRichText(b.RichText())

	switch b.Type {
	case notion.BlockParagraph:
		return withChildren(text, "", b.Children())

	case notion.BlockHeading1:
		return "# " + text
	case notion.BlockHeading2:
		return "## " + text
	case notion.BlockHeading3:
		return "### " + text

	case notion.BlockBulletedListItem:
		return withChildren(listLine("- ", text), childIndent, b.Children())

	case notion.BlockNumberedListItem:
		return withChildren(listLine(fmt.Sprintf("%d. ", number), text), childIndent, b.Children())

	case notion.BlockToDo:
		box := "- [ ] "
		if b.ToDo != nil && b.ToDo.Checked {
			box = "- [x] "
		}
		return withChildren(listLine(box, text), childIndent, b.Children())

	case notion.BlockQuote:
		content := withChildren(text, "", b.Children())
		return prefixLines(content, "> ", "> ")

	case notion.BlockCode:
		var lang, code string
		if b.Code != nil {
			lang = b.Code.Language
			code = notion.PlainText(b.Code.RichText)
		}
		fence := codeFence(code)
		return fence + fenceLanguage(lang) + "\n" + code + "\n" + fence

	case notion.BlockDivider:
		return "---"

	case notion.BlockImage:
		if b.Image == nil || b.Image.URL() == "" {
			return ""
		}
		return fmt.Sprintf("![%s](%s)", notion.PlainText(b.Image.Caption), b.Image.URL())
	}

	return strings.TrimSpace(b.FallbackText())
}

// listLine prefixes the first line with the marker and indents the rest
func listLine(marker, text string) string {
	return prefixLines(text, marker, strings.Repeat(" ", len(marker)))
}

// withChildren appends the rendered children below head, indented
func withChildren(head, indent string, children []notion.Block) string {
	if len(children) == 0 {
		return head
	}

	nested := renderBlocks(children)
	if nested == "" {
		return head
	}

	sep := "\n\n"
	if isListItem(children[0].Type) && indent != "" {
		sep = "\n"
	}
	if head == "" {
		sep = ""
	}
	return head + sep + prefixLines(nested, indent, indent)
}

func prefixLines(text, first, rest string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		prefix := rest
		if i == 0 {
			prefix = first
		}
		if line == "" {
			prefix = strings.TrimRight(prefix, " ")
		}
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

// codeFence picks a fence longer than any backtick run inside code
func codeFence(code string) string {
	longest, run := 0, 0
	for _, r := range code {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	if longest < 3 {
		return "```"
	}
	return strings.Repeat("`", longest+1)
}

// renderRichText renders runs with Markdown emphasis, code and links
func renderRichText(runs []notion.RichText) string {
	var sb strings.Builder
	for _, rt := range runs {
		content := rt.Content()
		if content == "" {
			continue
		}
		sb.WriteString(renderRun(content, rt.Annotations, rt.LinkURL()))
	}
	return sb.String()
}

func renderRun(content string, ann *notion.Annotations, link string) string {
	// Emphasis markers must hug the text, so surrounding spaces move outside
	core := strings.TrimSpace(content)
	if core == "" {
		return content
	}
	start := strings.Index(content, core)
	lead, trail := content[:start], content[start+len(core):]

	if ann != nil {
		if ann.Code {
			tick := "`"
			if strings.Contains(core, "`") {
				tick = "``"
				core = " " + core + " "
			}
			core = tick + core + tick
		}
		if ann.Strikethrough {
			core = "~~" + core + "~~"
		}
		if ann.Italic {
			core = "*" + core + "*"
		}
		if ann.Bold {
			core = "**" + core + "**"
		}
	}

	if link != "" {
		core = "[" + core + "](" + link + ")"
	}

	return lead + core + trail
}
