package notion

import (
	"strings"
	"unicode/utf8"
)

// MaxRichTextLength is the longest content a single text object may carry
const MaxRichTextLength = 2000

// RichText is one styled run of text
type RichText struct {
	Type        string       `json:"type"`
	Text        *TextContent `json:"text,omitempty"`
	Annotations *Annotations `json:"annotations,omitempty"`
	PlainText   string       `json:"plain_text,omitempty"`
	Href        string       `json:"href,omitempty"`
}

// TextContent is the payload of a "text" rich text object
type TextContent struct {
	Content string `json:"content"`
	Link    *Link  `json:"link,omitempty"`
}

// Link is a hyperlink target
type Link struct {
	URL string `json:"url"`
}

// Annotations are the inline styles of a rich text run
type Annotations struct {
	Bold          bool   `json:"bold"`
	Italic        bool   `json:"italic"`
	Strikethrough bool   `json:"strikethrough"`
	Underline     bool   `json:"underline"`
	Code          bool   `json:"code"`
	Color         string `json:"color,omitempty"`
}

// IsPlain reports whether no style is applied
func (a *Annotations) IsPlain() bool {
	return a == nil || (!a.Bold && !a.Italic && !a.Strikethrough && !a.Underline && !a.Code)
}

// Content returns the text of the run whatever its type
func (rt RichText) Content() string {
	if rt.Text != nil {
		return rt.Text.Content
	}
	return rt.PlainText
}

// LinkURL returns the link target of the run, if any
func (rt RichText) LinkURL() string {
	if rt.Text != nil && rt.Text.Link != nil {
		return rt.Text.Link.URL
	}
	return rt.Href
}

// NewText builds text runs for content, split at MaxRichTextLength.
// ann and link may be nil/empty.
func NewText(content string, ann *Annotations, link string) []RichText {
	if content == "" {
		return nil
	}

	var runs []RichText
	for _, part := range splitRunes(content, MaxRichTextLength) {
		rt := RichText{
			Type: "text",
			Text: &TextContent{Content: part},
		}
		if link != "" {
			rt.Text.Link = &Link{URL: link}
		}
		if !ann.IsPlain() {
			copied := *ann
			rt.Annotations = &copied
		}
		runs = append(runs, rt)
	}
	return runs
}

// PlainText concatenates the content of runs
func PlainText(runs []RichText) string {
	var sb strings.Builder
	for _, rt := range runs {
		sb.WriteString(rt.Content())
	}
	return sb.String()
}

// splitRunes cuts s into pieces of at most n runes
func splitRunes(s string, n int) []string {
	if utf8.RuneCountInString(s) <= n {
		return []string{s}
	}

	var parts []string
	for len(s) > 0 {
		i, count := 0, 0
		for i < len(s) && count < n {
			_, size := utf8.DecodeRuneInString(s[i:])
			i += size
			count++
		}
		parts = append(parts, s[:i])
		s = s[i:]
	}
	return parts
}
