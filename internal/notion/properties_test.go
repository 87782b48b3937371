package notion

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertiesUnmarshal(t *testing.T) {
	data := `{
		"Name": {"id": "title", "type": "title", "title": [{"type": "text", "text": {"content": "Hello "}}, {"type": "text", "text": {"content": "world"}}]},
		"Summary": {"id": "s", "type": "rich_text", "rich_text": [{"type": "text", "text": {"content": "short"}}]},
		"Tags": {"id": "t", "type": "multi_select", "multi_select": [{"id": "1", "name": "go", "color": "blue"}]},
		"Done": {"id": "d", "type": "checkbox", "checkbox": true}
	}`

	var props Properties
	require.NoError(t, json.Unmarshal([]byte(data), &props))

	title, ok := props.Title("Name")
	assert.True(t, ok)
	assert.Equal(t, "Hello world", title)
	assert.Equal(t, []string{"go"}, props.MultiSelect("Tags"))
	assert.Nil(t, props.MultiSelect("Done"))

	assert.Equal(t, PropertyRichText, props["Summary"].Type())
	unsupported, isUnsupported := props["Done"].(UnsupportedProperty)
	require.True(t, isUnsupported)
	assert.Equal(t, PropertyType("checkbox"), unsupported.Type())
}

func TestPropertiesTitleFallback(t *testing.T) {
	props := Properties{
		"b title": TitleProperty{Title: NewText("Second", nil, "")},
		"a title": TitleProperty{Title: NewText("First", nil, "")},
	}

	title, ok := props.Title("Name")
	assert.True(t, ok)
	assert.Equal(t, "First", title)

	_, ok = Properties{"Name": TitleProperty{}}.Title("Name")
	assert.False(t, ok)

	_, ok = Properties{}.Title("Name")
	assert.False(t, ok)
}

func TestPropertiesMarshal(t *testing.T) {
	props := Properties{
		"Name": TitleProperty{Title: NewText("Note", nil, "")},
		"Tags": MultiSelectProperty{},
	}

	data, err := json.Marshal(props)
	require.NoError(t, err)

	var decoded map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded["Name"]["title"], 1)
	assert.Equal(t, []interface{}{}, decoded["Tags"]["multi_select"])
}

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"dashed", "1c2f3a4b-5d6e-7f80-9a1b-2c3d4e5f6a7b", "1c2f3a4b-5d6e-7f80-9a1b-2c3d4e5f6a7b", false},
		{"compact", "1C2F3A4B5D6E7F809A1B2C3D4E5F6A7B", "1c2f3a4b-5d6e-7f80-9a1b-2c3d4e5f6a7b", false},
		{"page link", "https://www.notion.so/team/My-Notes-1c2f3a4b5d6e7f809a1b2c3d4e5f6a7b?pvs=4", "1c2f3a4b-5d6e-7f80-9a1b-2c3d4e5f6a7b", false},
		{"database link", "https://www.notion.so/1c2f3a4b5d6e7f809a1b2c3d4e5f6a7b?v=abc", "1c2f3a4b-5d6e-7f80-9a1b-2c3d4e5f6a7b", false},
		{"garbage", "not-an-id", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeID(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPageURL(t *testing.T) {
	assert.Equal(t, "https://www.notion.so/1c2f3a4b5d6e7f809a1b2c3d4e5f6a7b", PageURL("1c2f3a4b-5d6e-7f80-9a1b-2c3d4e5f6a7b"))
}
