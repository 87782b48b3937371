package notion

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// PropertyType names a database property variant
type PropertyType string

const (
	PropertyTitle       PropertyType = "title"
	PropertyRichText    PropertyType = "rich_text"
	PropertyMultiSelect PropertyType = "multi_select"
)

// Property is a tagged variant over the database property kinds.
// Kinds the sync engine does not use decode to UnsupportedProperty.
type Property interface {
	Type() PropertyType
}

// TitleProperty is the page title
type TitleProperty struct {
	Title []RichText
}

func (TitleProperty) Type() PropertyType { return PropertyTitle }

// RichTextProperty is a free text property
type RichTextProperty struct {
	RichText []RichText
}

func (RichTextProperty) Type() PropertyType { return PropertyRichText }

// MultiSelectProperty is a set of named options, used for tags
type MultiSelectProperty struct {
	Options []SelectOption
}

func (MultiSelectProperty) Type() PropertyType { return PropertyMultiSelect }

// Names returns the option names
func (p MultiSelectProperty) Names() []string {
	names := make([]string, 0, len(p.Options))
	for _, o := range p.Options {
		if o.Name != "" {
			names = append(names, o.Name)
		}
	}
	return names
}

// SelectOption is one option of a select or multi_select property
type SelectOption struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// UnsupportedProperty keeps any other property kind verbatim
type UnsupportedProperty struct {
	Kind string
	Raw  json.RawMessage
}

func (p UnsupportedProperty) Type() PropertyType { return PropertyType(p.Kind) }

// Properties maps property names to their values
type Properties map[string]Property

// propertyEnvelope is the wire shape shared by every property kind
type propertyEnvelope struct {
	ID          string          `json:"id,omitempty"`
	Type        string          `json:"type"`
	Title       *[]RichText     `json:"title,omitempty"`
	RichText    *[]RichText     `json:"rich_text,omitempty"`
	MultiSelect *[]SelectOption `json:"multi_select,omitempty"`
}

// UnmarshalJSON decodes each property into its variant
func (p *Properties) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	props := make(Properties, len(raw))
	for name, value := range raw {
		var env propertyEnvelope
		if err := json.Unmarshal(value, &env); err != nil {
			return fmt.Errorf("decoding property %q: %w", name, err)
		}

		switch PropertyType(env.Type) {
		case PropertyTitle:
			props[name] = TitleProperty{Title: deref(env.Title)}
		case PropertyRichText:
			props[name] = RichTextProperty{RichText: deref(env.RichText)}
		case PropertyMultiSelect:
			var options []SelectOption
			if env.MultiSelect != nil {
				options = *env.MultiSelect
			}
			props[name] = MultiSelectProperty{Options: options}
		default:
			props[name] = UnsupportedProperty{Kind: env.Type, Raw: value}
		}
	}

	*p = props
	return nil
}

// MarshalJSON encodes properties in the shape expected by page writes
func (p Properties) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(p))
	for name, prop := range p {
		switch v := prop.(type) {
		case TitleProperty:
			out[name] = map[string]interface{}{"title": nonNil(v.Title)}
		case RichTextProperty:
			out[name] = map[string]interface{}{"rich_text": nonNil(v.RichText)}
		case MultiSelectProperty:
			options := v.Options
			if options == nil {
				options = []SelectOption{}
			}
			out[name] = map[string]interface{}{"multi_select": options}
		case UnsupportedProperty:
			if len(v.Raw) > 0 {
				out[name] = v.Raw
			}
		default:
			return nil, fmt.Errorf("property %q has unknown variant %T", name, prop)
		}
	}
	return json.Marshal(out)
}

// Title returns the plain title stored under name. When name is missing the
// first title-typed property is used. ok is false when no title text exists.
func (p Properties) Title(name string) (string, bool) {
	if prop, found := p[name].(TitleProperty); found {
		title := strings.TrimSpace(PlainText(prop.Title))
		return title, title != ""
	}

	// Map order is random, so pick deterministically
	names := make([]string, 0, len(p))
	for n := range p {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		if prop, found := p[n].(TitleProperty); found {
			title := strings.TrimSpace(PlainText(prop.Title))
			return title, title != ""
		}
	}
	return "", false
}

// MultiSelect returns the option names stored under name
func (p Properties) MultiSelect(name string) []string {
	if prop, found := p[name].(MultiSelectProperty); found {
		return prop.Names()
	}
	return nil
}

func deref(runs *[]RichText) []RichText {
	if runs == nil {
		return nil
	}
	return *runs
}
