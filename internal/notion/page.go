package notion

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PageBaseURL prefixes page links written into local frontmatter
const PageBaseURL = "https://www.notion.so/"

// Page is a page object as returned by the API
type Page struct {
	Object         string     `json:"object"`
	ID             string     `json:"id"`
	URL            string     `json:"url"`
	CreatedTime    time.Time  `json:"created_time"`
	LastEditedTime time.Time  `json:"last_edited_time"`
	Archived       bool       `json:"archived"`
	InTrash        bool       `json:"in_trash"`
	Properties     Properties `json:"properties"`
}

// RemotePage is the sync engine's view of a page
type RemotePage struct {
	ID             string
	URL            string
	Title          string
	Tags           []string
	Blocks         []Block // loaded on demand by GetPageBlocks
	LastEditedTime time.Time
}

// PageInput is the content written on create and update
type PageInput struct {
	Title  string
	Tags   []string // nil leaves the tags property untouched
	Blocks []Block
}

// PageURL builds the browser link of a page
func PageURL(id string) string {
	return PageBaseURL + strings.ReplaceAll(id, "-", "")
}

// NormalizeID accepts a page or database ID in dashed or compact form, or a
// copied page/database link, and returns the dashed lower case ID.
func NormalizeID(value string) (string, error) {
	id := strings.TrimSpace(value)
	if i := strings.IndexAny(id, "?#"); i >= 0 {
		id = id[:i]
	}
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	parsed, err := uuid.Parse(id)
	if err != nil && len(id) > 32 {
		// Links end in "<Title>-<32 hex chars>"
		parsed, err = uuid.Parse(id[len(id)-32:])
	}
	if err != nil {
		return "", fmt.Errorf("invalid notion ID %q: %w", value, err)
	}
	return parsed.String(), nil
}
