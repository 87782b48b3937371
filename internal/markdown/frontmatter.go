// Package markdown converts between vault notes (YAML frontmatter plus a
// Markdown body) and Notion block trees.
package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Frontmatter keys written by the sync engine
const (
	KeyNotionID = "notionID"
	KeyLink     = "link"
	KeyFilePath = "filePath"
	KeyTags     = "tags"
)

const delimiter = "---"

// ConversionError reports content that could not be converted
type ConversionError struct {
	Reason string
	Err    error
}

func (e *ConversionError) Error() string {
	if e.Err == nil {
		return "conversion error: " + e.Reason
	}
	return fmt.Sprintf("conversion error: %s: %v", e.Reason, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Frontmatter is an ordered YAML mapping. Key order and comments of parsed
// headers survive a render.
type Frontmatter struct {
	node *yaml.Node
}

// NewFrontmatter returns an empty mapping
func NewFrontmatter() *Frontmatter {
	return &Frontmatter{node: &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}}
}

// ParseFrontmatter splits text into its frontmatter and body. A header exists
// only when the first line is "---" and a later line closes it; the body is
// everything after the closing line. Invalid YAML in a well formed header
// returns an empty Frontmatter, the body and a *ConversionError.
func ParseFrontmatter(text string) (*Frontmatter, string, error) {
	text = strings.TrimPrefix(text, "\ufeff")

	lines := strings.Split(text, "\n")
	if len(lines) < 2 || !isDelimiter(lines[0]) {
		return NewFrontmatter(), text, nil
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if isDelimiter(lines[i]) {
			end = i
			break
		}
	}
	if end < 0 {
		return NewFrontmatter(), text, nil
	}

	header := strings.Join(lines[1:end], "\n")
	body := strings.Join(lines[end+1:], "\n")

	fm, err := decodeFrontmatter(header)
	if err != nil {
		return NewFrontmatter(), body, err
	}
	return fm, body, nil
}

func isDelimiter(line string) bool {
	return strings.TrimRight(line, " \t\r") == delimiter
}

func decodeFrontmatter(header string) (*Frontmatter, error) {
	if strings.TrimSpace(header) == "" {
		return NewFrontmatter(), nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(header), &doc); err != nil {
		return nil, &ConversionError{Reason: "invalid frontmatter", Err: err}
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return NewFrontmatter(), nil
	}

	root := doc.Content[0]
	switch {
	case root.Kind == yaml.MappingNode:
		return &Frontmatter{node: root}, nil
	case root.Kind == yaml.ScalarNode && root.Tag == "!!null":
		return NewFrontmatter(), nil
	}
	return nil, &ConversionError{Reason: "frontmatter is not a mapping"}
}

// RenderFrontmatter joins fm and body into note text. An empty fm renders
// the body alone.
func RenderFrontmatter(fm *Frontmatter, body string) (string, error) {
	if fm.Len() == 0 {
		return body, nil
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm.node); err != nil {
		return "", &ConversionError{Reason: "encoding frontmatter", Err: err}
	}
	if err := enc.Close(); err != nil {
		return "", &ConversionError{Reason: "encoding frontmatter", Err: err}
	}

	var sb strings.Builder
	sb.WriteString(delimiter + "\n")
	sb.Write(buf.Bytes())
	sb.WriteString(delimiter + "\n")
	sb.WriteString(body)
	return sb.String(), nil
}

// Len returns the number of keys
func (f *Frontmatter) Len() int {
	if f == nil || f.node == nil {
		return 0
	}
	return len(f.node.Content) / 2
}

// Keys returns the keys in document order
func (f *Frontmatter) Keys() []string {
	keys := make([]string, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		keys = append(keys, f.node.Content[2*i].Value)
	}
	return keys
}

func (f *Frontmatter) index(key string) int {
	for i := 0; i < f.Len(); i++ {
		if f.node.Content[2*i].Value == key {
			return 2 * i
		}
	}
	return -1
}

// Get decodes the value stored under key
func (f *Frontmatter) Get(key string) (interface{}, bool) {
	i := f.index(key)
	if i < 0 {
		return nil, false
	}

	var value interface{}
	if err := f.node.Content[i+1].Decode(&value); err != nil {
		return nil, false
	}
	return value, true
}

// GetString returns the scalar stored under key, or "" when it is missing
// or not a scalar
func (f *Frontmatter) GetString(key string) string {
	i := f.index(key)
	if i < 0 {
		return ""
	}
	value := f.node.Content[i+1]
	if value.Kind != yaml.ScalarNode || value.Tag == "!!null" {
		return ""
	}
	return value.Value
}

// Set stores value under key, replacing an existing value in place or
// appending a new key at the end
func (f *Frontmatter) Set(key string, value interface{}) error {
	if f.node == nil {
		f.node = NewFrontmatter().node
	}

	var valueNode yaml.Node
	if err := valueNode.Encode(value); err != nil {
		return &ConversionError{Reason: fmt.Sprintf("encoding frontmatter key %q", key), Err: err}
	}

	if i := f.index(key); i >= 0 {
		// Keep comments attached to the old value
		valueNode.HeadComment = f.node.Content[i+1].HeadComment
		valueNode.LineComment = f.node.Content[i+1].LineComment
		f.node.Content[i+1] = &valueNode
		return nil
	}

	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	f.node.Content = append(f.node.Content, keyNode, &valueNode)
	return nil
}

// Delete removes key and reports whether it was present
func (f *Frontmatter) Delete(key string) bool {
	i := f.index(key)
	if i < 0 {
		return false
	}
	f.node.Content = append(f.node.Content[:i], f.node.Content[i+2:]...)
	return true
}

// Clone returns a deep copy
func (f *Frontmatter) Clone() *Frontmatter {
	if f.Len() == 0 {
		return NewFrontmatter()
	}
	return &Frontmatter{node: cloneNode(f.node)}
}

func cloneNode(n *yaml.Node) *yaml.Node {
	clone := *n
	clone.Content = make([]*yaml.Node, len(n.Content))
	for i, child := range n.Content {
		clone.Content[i] = cloneNode(child)
	}
	return &clone
}

// NotionID returns the remote page ID recorded by a previous export
func (f *Frontmatter) NotionID() string {
	return strings.TrimSpace(f.GetString(KeyNotionID))
}

// Tags returns the note tags. Both a YAML list and a comma or space
// separated string are accepted; a leading "#" is dropped.
func (f *Frontmatter) Tags() []string {
	i := f.index(KeyTags)
	if i < 0 {
		return nil
	}

	var raw []string
	value := f.node.Content[i+1]
	switch value.Kind {
	case yaml.SequenceNode:
		for _, item := range value.Content {
			if item.Kind == yaml.ScalarNode {
				raw = append(raw, item.Value)
			}
		}
	case yaml.ScalarNode:
		if value.Tag != "!!null" {
			raw = strings.FieldsFunc(value.Value, func(r rune) bool {
				return r == ',' || r == ' ' || r == '\t'
			})
		}
	}

	return normalizeTags(raw)
}

// SetTags stores tags as a string sequence
func (f *Frontmatter) SetTags(tags []string) error {
	normalized := normalizeTags(tags)
	if normalized == nil {
		normalized = []string{}
	}
	return f.Set(KeyTags, normalized)
}

func normalizeTags(raw []string) []string {
	var tags []string
	seen := make(map[string]bool, len(raw))
	for _, tag := range raw {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}
