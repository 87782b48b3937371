package notion

import (
	"encoding/json"
)

// BlockType names a block variant
type BlockType string

// Block variants the converter understands. Anything else is kept as an
// unsupported block with its raw payload.
const (
	BlockParagraph        BlockType = "paragraph"
	BlockHeading1         BlockType = "heading_1"
	BlockHeading2         BlockType = "heading_2"
	BlockHeading3         BlockType = "heading_3"
	BlockBulletedListItem BlockType = "bulleted_list_item"
	BlockNumberedListItem BlockType = "numbered_list_item"
	BlockToDo             BlockType = "to_do"
	BlockQuote            BlockType = "quote"
	BlockCode             BlockType = "code"
	BlockDivider          BlockType = "divider"
	BlockImage            BlockType = "image"
)

// MaxBlocksPerRequest is the largest children array accepted in one call
const MaxBlocksPerRequest = 100

// Supported reports whether t is one of the known variants
func (t BlockType) Supported() bool {
	switch t {
	case BlockParagraph, BlockHeading1, BlockHeading2, BlockHeading3,
		BlockBulletedListItem, BlockNumberedListItem, BlockToDo,
		BlockQuote, BlockCode, BlockDivider, BlockImage:
		return true
	}
	return false
}

// Block is a tagged variant: Type selects which payload field is set
type Block struct {
	Object      string    `json:"object,omitempty"`
	ID          string    `json:"id,omitempty"`
	Type        BlockType `json:"type"`
	HasChildren bool      `json:"has_children,omitempty"`

	Paragraph        *TextBlock  `json:"paragraph,omitempty"`
	Heading1         *TextBlock  `json:"heading_1,omitempty"`
	Heading2         *TextBlock  `json:"heading_2,omitempty"`
	Heading3         *TextBlock  `json:"heading_3,omitempty"`
	BulletedListItem *TextBlock  `json:"bulleted_list_item,omitempty"`
	NumberedListItem *TextBlock  `json:"numbered_list_item,omitempty"`
	ToDo             *ToDoBlock  `json:"to_do,omitempty"`
	Quote            *TextBlock  `json:"quote,omitempty"`
	Code             *CodeBlock  `json:"code,omitempty"`
	Divider          *EmptyBlock `json:"divider,omitempty"`
	Image            *FileBlock  `json:"image,omitempty"`

	raw json.RawMessage // payload of an unsupported variant
}

// TextBlock is the payload of paragraph, heading, list item and quote blocks
type TextBlock struct {
	RichText []RichText `json:"rich_text"`
	Color    string     `json:"color,omitempty"`
	Children []Block    `json:"children,omitempty"`
}

// ToDoBlock is the payload of a to_do block
type ToDoBlock struct {
	RichText []RichText `json:"rich_text"`
	Checked  bool       `json:"checked"`
	Children []Block    `json:"children,omitempty"`
}

// CodeBlock is the payload of a code block
type CodeBlock struct {
	RichText []RichText `json:"rich_text"`
	Language string     `json:"language"`
	Caption  []RichText `json:"caption,omitempty"`
}

// EmptyBlock is the payload of blocks without content
type EmptyBlock struct{}

// FileBlock is the payload of an image block
type FileBlock struct {
	Type     string        `json:"type"`
	External *ExternalFile `json:"external,omitempty"`
	File     *HostedFile   `json:"file,omitempty"`
	Caption  []RichText    `json:"caption,omitempty"`
}

// ExternalFile points at a file hosted elsewhere
type ExternalFile struct {
	URL string `json:"url"`
}

// HostedFile is a file uploaded to the remote, its URL expires
type HostedFile struct {
	URL        string `json:"url"`
	ExpiryTime string `json:"expiry_time,omitempty"`
}

// URL returns the address of the file
func (f *FileBlock) URL() string {
	switch {
	case f == nil:
		return ""
	case f.External != nil:
		return f.External.URL
	case f.File != nil:
		return f.File.URL
	}
	return ""
}

// UnmarshalJSON keeps the raw payload of unsupported variants
func (b *Block) UnmarshalJSON(data []byte) error {
	type alias Block
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*b = Block(a)

	if b.Type != "" && !b.Type.Supported() {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return err
		}
		b.raw = fields[string(b.Type)]
	}
	return nil
}

func (b *Block) textPayload() *TextBlock {
	switch b.Type {
	case BlockParagraph:
		return b.Paragraph
	case BlockHeading1:
		return b.Heading1
	case BlockHeading2:
		return b.Heading2
	case BlockHeading3:
		return b.Heading3
	case BlockBulletedListItem:
		return b.BulletedListItem
	case BlockNumberedListItem:
		return b.NumberedListItem
	case BlockQuote:
		return b.Quote
	}
	return nil
}

// RichText returns the text runs of the block, nil for variants without text
func (b Block) RichText() []RichText {
	if p := b.textPayload(); p != nil {
		return p.RichText
	}
	switch {
	case b.Type == BlockToDo && b.ToDo != nil:
		return b.ToDo.RichText
	case b.Type == BlockCode && b.Code != nil:
		return b.Code.RichText
	case b.Type == BlockImage && b.Image != nil:
		return b.Image.Caption
	}
	return nil
}

// Children returns the nested blocks
func (b Block) Children() []Block {
	if p := b.textPayload(); p != nil {
		return p.Children
	}
	if b.Type == BlockToDo && b.ToDo != nil {
		return b.ToDo.Children
	}
	return nil
}

// SetChildren replaces the nested blocks. It reports false for variants
// that cannot hold children.
func (b *Block) SetChildren(children []Block) bool {
	if p := b.textPayload(); p != nil {
		p.Children = children
		return true
	}
	if b.Type == BlockToDo && b.ToDo != nil {
		b.ToDo.Children = children
		return true
	}
	return false
}

// WithoutChildren returns a copy of b that carries no nested blocks
func (b Block) WithoutChildren() Block {
	clone := b
	switch {
	case b.textPayload() != nil:
		payload := *b.textPayload()
		payload.Children = nil
		clone.setTextPayload(&payload)
	case b.Type == BlockToDo && b.ToDo != nil:
		payload := *b.ToDo
		payload.Children = nil
		clone.ToDo = &payload
	}
	return clone
}

func (b *Block) setTextPayload(p *TextBlock) {
	switch b.Type {
	case BlockParagraph:
		b.Paragraph = p
	case BlockHeading1:
		b.Heading1 = p
	case BlockHeading2:
		b.Heading2 = p
	case BlockHeading3:
		b.Heading3 = p
	case BlockBulletedListItem:
		b.BulletedListItem = p
	case BlockNumberedListItem:
		b.NumberedListItem = p
	case BlockQuote:
		b.Quote = p
	}
}

// FallbackText extracts whatever text an unsupported block carries
func (b Block) FallbackText() string {
	if b.Type.Supported() {
		return PlainText(b.RichText())
	}
	if len(b.raw) == 0 {
		return ""
	}

	var payload struct {
		RichText []RichText `json:"rich_text"`
		Caption  []RichText `json:"caption"`
		Title    string     `json:"title"`
		URL      string     `json:"url"`
	}
	if err := json.Unmarshal(b.raw, &payload); err != nil {
		return ""
	}

	switch {
	case len(payload.RichText) > 0:
		return PlainText(payload.RichText)
	case len(payload.Caption) > 0:
		return PlainText(payload.Caption)
	case payload.Title != "":
		return payload.Title
	}
	return payload.URL
}

// NewParagraph builds a paragraph block
func NewParagraph(text []RichText) Block {
	return Block{Object: "block", Type: BlockParagraph, Paragraph: &TextBlock{RichText: nonNil(text)}}
}

// NewHeading builds a heading block, levels beyond 3 are clamped
func NewHeading(level int, text []RichText) Block {
	payload := &TextBlock{RichText: nonNil(text)}
	switch {
	case level <= 1:
		return Block{Object: "block", Type: BlockHeading1, Heading1: payload}
	case level == 2:
		return Block{Object: "block", Type: BlockHeading2, Heading2: payload}
	default:
		return Block{Object: "block", Type: BlockHeading3, Heading3: payload}
	}
}

// NewBulletedListItem builds a bulleted list item
func NewBulletedListItem(text []RichText, children []Block) Block {
	return Block{Object: "block", Type: BlockBulletedListItem, BulletedListItem: &TextBlock{RichText: nonNil(text), Children: children}}
}

// NewNumberedListItem builds a numbered list item
func NewNumberedListItem(text []RichText, children []Block) Block {
	return Block{Object: "block", Type: BlockNumberedListItem, NumberedListItem: &TextBlock{RichText: nonNil(text), Children: children}}
}

// NewToDo builds a to_do block
func NewToDo(text []RichText, checked bool, children []Block) Block {
	return Block{Object: "block", Type: BlockToDo, ToDo: &ToDoBlock{RichText: nonNil(text), Checked: checked, Children: children}}
}

// NewQuote builds a quote block
func NewQuote(text []RichText, children []Block) Block {
	return Block{Object: "block", Type: BlockQuote, Quote: &TextBlock{RichText: nonNil(text), Children: children}}
}

// NewCode builds a code block
func NewCode(code, language string) Block {
	return Block{Object: "block", Type: BlockCode, Code: &CodeBlock{RichText: nonNil(NewText(code, nil, "")), Language: language}}
}

// NewDivider builds a divider block
func NewDivider() Block {
	return Block{Object: "block", Type: BlockDivider, Divider: &EmptyBlock{}}
}

// NewImage builds an image block pointing at an external URL
func NewImage(url string, caption []RichText) Block {
	return Block{Object: "block", Type: BlockImage, Image: &FileBlock{
		Type:     "external",
		External: &ExternalFile{URL: url},
		Caption:  caption,
	}}
}

// nonNil makes empty text serialize as [] rather than null
func nonNil(text []RichText) []RichText {
	if text == nil {
		return []RichText{}
	}
	return text
}
