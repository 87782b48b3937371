package markdown

import (
	"net/url"
	"strings"

	"github.com/tildaslashalef/notesync/internal/notion"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var mdParser = goldmark.New(goldmark.WithExtensions(extension.GFM)).Parser()

// MarkdownToBlocks converts a Markdown body into Notion blocks. Constructs
// without a block equivalent degrade to paragraphs holding their text.
func MarkdownToBlocks(body string) []notion.Block {
	source := []byte(body)
	doc := mdParser.Parse(text.NewReader(source))

	c := &blockConverter{source: source}
	return c.blocks(doc)
}

type blockConverter struct {
	source []byte
}

func (c *blockConverter) blocks(parent ast.Node) []notion.Block {
	var out []notion.Block
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		out = append(out, c.block(n)...)
	}
	return out
}

func (c *blockConverter) block(n ast.Node) []notion.Block {
	switch node := n.(type) {
	case *ast.Heading:
		return []notion.Block{notion.NewHeading(node.Level, c.inline(node))}

	case *ast.Paragraph, *ast.TextBlock:
		if img := c.soleImage(n); img != nil && isRemoteURL(string(img.Destination)) {
			caption := notion.NewText(c.plainText(img), nil, "")
			return []notion.Block{notion.NewImage(string(img.Destination), caption)}
		}
		return paragraph(c.inline(n))

	case *ast.List:
		return c.list(node)

	case *ast.Blockquote:
		return []notion.Block{c.quote(node)}

	case *ast.FencedCodeBlock:
		code := c.lines(node)
		return []notion.Block{notion.NewCode(code, CodeLanguage(string(node.Language(c.source)), code))}

	case *ast.CodeBlock:
		code := c.lines(node)
		return []notion.Block{notion.NewCode(code, CodeLanguage("", code))}

	case *ast.ThematicBreak:
		return []notion.Block{notion.NewDivider()}

	case *ast.HTMLBlock:
		raw := c.lines(node)
		if node.HasClosure() {
			raw += "\n" + string(node.ClosureLine.Value(c.source))
		}
		return paragraph(notion.NewText(strings.TrimSpace(raw), nil, ""))

	case *east.Table:
		return paragraph(notion.NewText(c.tableText(node), nil, ""))
	}

	return paragraph(notion.NewText(strings.TrimSpace(c.plainText(n)), nil, ""))
}

func paragraph(text []notion.RichText) []notion.Block {
	if len(text) == 0 {
		return nil
	}
	return []notion.Block{notion.NewParagraph(text)}
}

func (c *blockConverter) list(list *ast.List) []notion.Block {
	var out []notion.Block
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		var (
			runs      []notion.RichText
			children  []notion.Block
			isTask    bool
			isChecked bool
		)

		rest := item.FirstChild()
		if first := rest; first != nil && (first.Kind() == ast.KindTextBlock || first.Kind() == ast.KindParagraph) {
			if box, ok := first.FirstChild().(*east.TaskCheckBox); ok {
				isTask, isChecked = true, box.IsChecked
			}
			runs = c.inline(first)
			rest = first.NextSibling()
		}

		for n := rest; n != nil; n = n.NextSibling() {
			children = append(children, c.block(n)...)
		}

		switch {
		case isTask:
			out = append(out, notion.NewToDo(runs, isChecked, children))
		case list.IsOrdered():
			out = append(out, notion.NewNumberedListItem(runs, children))
		default:
			out = append(out, notion.NewBulletedListItem(runs, children))
		}
	}
	return out
}

func (c *blockConverter) quote(q *ast.Blockquote) notion.Block {
	var (
		runs     []notion.RichText
		children []notion.Block
	)

	rest := q.FirstChild()
	if first := rest; first != nil && first.Kind() == ast.KindParagraph {
		runs = c.inline(first)
		rest = first.NextSibling()
	}
	for n := rest; n != nil; n = n.NextSibling() {
		children = append(children, c.block(n)...)
	}

	return notion.NewQuote(runs, children)
}

// lines returns the raw source lines of a leaf block
func (c *blockConverter) lines(n ast.Node) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(c.source))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// tableText flattens a table into rows of " | " separated cells
func (c *blockConverter) tableText(table *east.Table) string {
	var rows []string
	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, strings.TrimSpace(c.plainText(cell)))
		}
		rows = append(rows, strings.Join(cells, " | "))
	}
	return strings.Join(rows, "\n")
}

// plainText collects the text of n and its descendants
func (c *blockConverter) plainText(n ast.Node) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(c.source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.String:
			sb.Write(t.Value)
		case *ast.AutoLink:
			sb.Write(t.Label(c.source))
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

// span is a run of text sharing one style
type span struct {
	text string
	ann  notion.Annotations
	link string
}

// inline converts the inline children of n into rich text
func (c *blockConverter) inline(n ast.Node) []notion.RichText {
	var spans []span
	c.collect(&spans, n, notion.Annotations{}, "")

	if len(spans) == 0 {
		return nil
	}
	spans[0].text = strings.TrimLeft(spans[0].text, " \t\n")
	last := len(spans) - 1
	spans[last].text = strings.TrimRight(spans[last].text, " \t\n")

	var runs []notion.RichText
	for _, s := range spans {
		ann := s.ann
		runs = append(runs, notion.NewText(s.text, &ann, s.link)...)
	}
	return runs
}

func (c *blockConverter) collect(spans *[]span, parent ast.Node, ann notion.Annotations, link string) {
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Text:
			value := string(node.Segment.Value(c.source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				value += "\n"
			}
			appendSpan(spans, value, ann, link)

		case *ast.String:
			appendSpan(spans, string(node.Value), ann, link)

		case *ast.CodeSpan:
			code := ann
			code.Code = true
			appendSpan(spans, c.plainText(node), code, link)

		case *ast.Emphasis:
			styled := ann
			if node.Level >= 2 {
				styled.Bold = true
			} else {
				styled.Italic = true
			}
			c.collect(spans, node, styled, link)

		case *east.Strikethrough:
			styled := ann
			styled.Strikethrough = true
			c.collect(spans, node, styled, link)

		case *ast.Link:
			target := string(node.Destination)
			if !isRemoteURL(target) {
				target = link
			}
			c.collect(spans, node, ann, target)

		case *ast.AutoLink:
			target := string(node.URL(c.source))
			if !isRemoteURL(target) {
				target = link
			}
			appendSpan(spans, string(node.Label(c.source)), ann, target)

		case *ast.Image:
			label := c.plainText(node)
			if label == "" {
				label = string(node.Destination)
			}
			target := string(node.Destination)
			if !isRemoteURL(target) {
				target = link
			}
			appendSpan(spans, label, ann, target)

		case *ast.RawHTML:
			var sb strings.Builder
			for i := 0; i < node.Segments.Len(); i++ {
				seg := node.Segments.At(i)
				sb.Write(seg.Value(c.source))
			}
			appendSpan(spans, sb.String(), ann, link)

		case *east.TaskCheckBox:
			// rendered by the enclosing to_do block

		default:
			c.collect(spans, n, ann, link)
		}
	}
}

// appendSpan adds text, merging it into the previous span of the same style
func appendSpan(spans *[]span, value string, ann notion.Annotations, link string) {
	if value == "" {
		return
	}
	if n := len(*spans); n > 0 {
		prev := &(*spans)[n-1]
		if prev.ann == ann && prev.link == link {
			prev.text += value
			return
		}
	}
	*spans = append(*spans, span{text: value, ann: ann, link: link})
}

// soleImage returns the image when it is the only content of a paragraph
func (c *blockConverter) soleImage(n ast.Node) *ast.Image {
	var img *ast.Image
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch node := child.(type) {
		case *ast.Image:
			if img != nil {
				return nil
			}
			img = node
		case *ast.Text:
			continue
		default:
			return nil
		}
	}
	if img == nil {
		return nil
	}
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if t, ok := child.(*ast.Text); ok && strings.TrimSpace(string(t.Segment.Value(c.source))) != "" {
			return nil
		}
	}
	return img
}

// isRemoteURL reports whether target is an absolute link the remote accepts
func isRemoteURL(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.Host != ""
	case "mailto":
		return u.Opaque != ""
	}
	return false
}
