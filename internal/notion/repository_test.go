package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/notesync/internal/loggy"
)

// recordedCall is one request seen by the fake API
type recordedCall struct {
	Method string
	Path   string
	Query  string
	Body   map[string]interface{}
}

// fakeAPI records requests and answers them with a handler
type fakeAPI struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (f *fakeAPI) record(r *http.Request) recordedCall {
	call := recordedCall{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
	data, _ := io.ReadAll(r.Body)
	if len(data) > 0 {
		_ = json.Unmarshal(data, &call.Body)
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	return call
}

func (f *fakeAPI) Calls() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func setupRepository(t *testing.T, handler func(call recordedCall, w http.ResponseWriter)) (*Repository, *fakeAPI) {
	api := &fakeAPI{}
	_, client := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		call := api.record(r)
		w.Header().Set("Content-Type", "application/json")
		handler(call, w)
	})
	return NewRepository(client, "Name", "Tags", loggy.NewNoopLogger()), api
}

func pageJSON(id, title string, archived bool) string {
	return fmt.Sprintf(`{
		"object": "page",
		"id": %q,
		"url": "https://www.notion.so/%s",
		"last_edited_time": "2024-03-01T10:00:00.000Z",
		"archived": %t,
		"properties": {
			"Name": {"id": "title", "type": "title", "title": [{"type": "text", "text": {"content": %q}, "plain_text": %q}]},
			"Tags": {"id": "t1", "type": "multi_select", "multi_select": [{"name": "go"}, {"name": "sync"}]},
			"Due": {"id": "d1", "type": "date", "date": null}
		}
	}`, id, strings.ReplaceAll(id, "-", ""), archived, title, title)
}

func TestQueryDatabasePaginatesAndFilters(t *testing.T) {
	repo, api := setupRepository(t, func(call recordedCall, w http.ResponseWriter) {
		if call.Body["start_cursor"] == nil {
			fmt.Fprintf(w, `{"results":[%s,%s,{"object":"page"}],"has_more":true,"next_cursor":"c2"}`,
				pageJSON("p1", "First", false), pageJSON("p2", "Gone", true))
			return
		}
		fmt.Fprintf(w, `{"results":[%s,%s],"has_more":false,"next_cursor":null}`,
			pageJSON("p3", "Third", false), pageJSON("p4", "  ", false))
	})

	since := time.Date(2024, 3, 1, 9, 57, 0, 0, time.UTC)
	pages, err := repo.QueryDatabase(context.Background(), "db1", EditedSince(since))
	require.NoError(t, err)

	require.Len(t, pages, 2)
	assert.Equal(t, "p1", pages[0].ID)
	assert.Equal(t, "First", pages[0].Title)
	assert.Equal(t, []string{"go", "sync"}, pages[0].Tags)
	assert.Equal(t, "https://www.notion.so/p1", pages[0].URL)
	assert.Equal(t, "p3", pages[1].ID)

	calls := api.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/v1/databases/db1/query", calls[0].Path)
	assert.Equal(t, float64(queryPageSize), calls[0].Body["page_size"])
	filter := calls[0].Body["filter"].(map[string]interface{})
	assert.Equal(t, "last_edited_time", filter["timestamp"])
	assert.Equal(t, map[string]interface{}{"on_or_after": "2024-03-01T09:57:00Z"}, filter["last_edited_time"])
	assert.Equal(t, "c2", calls[1].Body["start_cursor"])
}

func TestQueryDatabaseError(t *testing.T) {
	repo, _ := setupRepository(t, func(call recordedCall, w http.ResponseWriter) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"object":"error","status":401,"code":"unauthorized","message":"API token is invalid."}`))
	})

	_, err := repo.QueryDatabase(context.Background(), "db1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
}

func TestCreatePageSmallBody(t *testing.T) {
	repo, api := setupRepository(t, func(call recordedCall, w http.ResponseWriter) {
		_, _ = w.Write([]byte(pageJSON("new-page", "Note", false)))
	})

	page, err := repo.CreatePage(context.Background(), "db1", PageInput{
		Title:  "Note",
		Tags:   []string{"a,b", "a b", ""},
		Blocks: []Block{NewParagraph(NewText("hello", nil, ""))},
	})
	require.NoError(t, err)
	assert.Equal(t, "new-page", page.ID)
	assert.Equal(t, "Note", page.Title)

	calls := api.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, "/v1/pages", calls[0].Path)
	assert.Equal(t, map[string]interface{}{"database_id": "db1"}, calls[0].Body["parent"])
	assert.Len(t, calls[0].Body["children"], 1)

	props := calls[0].Body["properties"].(map[string]interface{})
	tags := props["Tags"].(map[string]interface{})["multi_select"].([]interface{})
	require.Len(t, tags, 1)
	assert.Equal(t, "a b", tags[0].(map[string]interface{})["name"])
}

func TestCreatePageLargeBody(t *testing.T) {
	repo, api := setupRepository(t, func(call recordedCall, w http.ResponseWriter) {
		if call.Path == "/v1/pages" {
			_, _ = w.Write([]byte(pageJSON("big", "Big", false)))
			return
		}
		_, _ = w.Write([]byte(`{"results":[]}`))
	})

	blocks := make([]Block, 250)
	for i := range blocks {
		blocks[i] = NewParagraph(NewText(fmt.Sprintf("p%d", i), nil, ""))
	}

	_, err := repo.CreatePage(context.Background(), "db1", PageInput{Title: "Big", Blocks: blocks})
	require.NoError(t, err)

	calls := api.Calls()
	require.Len(t, calls, 3)
	assert.Len(t, calls[0].Body["children"], 100)
	_, hasTags := calls[0].Body["properties"].(map[string]interface{})["Tags"]
	assert.False(t, hasTags, "nil tags must not be sent")
	assert.Equal(t, "/v1/blocks/big/children", calls[1].Path)
	assert.Len(t, calls[1].Body["children"], 100)
	assert.Len(t, calls[2].Body["children"], 50)
}

func TestCreatePagePartialFailureReturnsPage(t *testing.T) {
	repo, _ := setupRepository(t, func(call recordedCall, w http.ResponseWriter) {
		if call.Path == "/v1/pages" {
			_, _ = w.Write([]byte(pageJSON("half", "Half", false)))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"object":"error","status":400,"code":"validation_error","message":"bad block"}`))
	})

	blocks := make([]Block, 101)
	for i := range blocks {
		blocks[i] = NewDivider()
	}

	page, err := repo.CreatePage(context.Background(), "db1", PageInput{Title: "Half", Blocks: blocks})
	require.Error(t, err)
	assert.Equal(t, "half", page.ID)
}

func TestUpdatePageClearsBeforeAppending(t *testing.T) {
	repo, api := setupRepository(t, func(call recordedCall, w http.ResponseWriter) {
		switch {
		case call.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"results":[{"object":"block","id":"b1","type":"paragraph","paragraph":{"rich_text":[]}},{"object":"block","id":"b2","type":"divider","divider":{}}],"has_more":false}`))
		default:
			_, _ = w.Write([]byte(`{"object":"page","id":"p1","results":[]}`))
		}
	})

	err := repo.UpdatePage(context.Background(), "p1", PageInput{
		Title:  "Renamed",
		Blocks: []Block{NewParagraph(NewText("new body", nil, ""))},
	})
	require.NoError(t, err)

	calls := api.Calls()
	require.Len(t, calls, 5)
	assert.Equal(t, http.MethodPatch, calls[0].Method)
	assert.Equal(t, "/v1/pages/p1", calls[0].Path)
	assert.Equal(t, http.MethodGet, calls[1].Method)
	assert.Equal(t, "page_size=100", calls[1].Query)
	assert.Equal(t, http.MethodDelete, calls[2].Method)
	assert.Equal(t, "/v1/blocks/b1", calls[2].Path)
	assert.Equal(t, "/v1/blocks/b2", calls[3].Path)
	assert.Equal(t, http.MethodPatch, calls[4].Method)
	assert.Equal(t, "/v1/blocks/p1/children", calls[4].Path)
}

func TestAppendChildrenDefersGrandchildren(t *testing.T) {
	created := 0
	repo, api := setupRepository(t, func(call recordedCall, w http.ResponseWriter) {
		children, _ := call.Body["children"].([]interface{})
		results := make([]string, len(children))
		for i := range children {
			results[i] = fmt.Sprintf(`{"object":"block","id":"blk%d","type":"bulleted_list_item"}`, created)
			created++
		}
		fmt.Fprintf(w, `{"results":[%s]}`, strings.Join(results, ","))
	})

	deep := NewBulletedListItem(NewText("outer", nil, ""), []Block{
		NewBulletedListItem(NewText("middle", nil, ""), []Block{
			NewBulletedListItem(NewText("inner", nil, ""), nil),
		}),
	})
	shallow := NewBulletedListItem(NewText("flat", nil, ""), []Block{
		NewBulletedListItem(NewText("child", nil, ""), nil),
	})

	err := repo.AppendChildren(context.Background(), "page", []Block{shallow, deep})
	require.NoError(t, err)

	calls := api.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/v1/blocks/page/children", calls[0].Path)

	first := calls[0].Body["children"].([]interface{})
	require.Len(t, first, 2)
	shallowPayload := first[0].(map[string]interface{})["bulleted_list_item"].(map[string]interface{})
	assert.Len(t, shallowPayload["children"], 1)
	deepPayload := first[1].(map[string]interface{})["bulleted_list_item"].(map[string]interface{})
	assert.Nil(t, deepPayload["children"])

	// The deferred children go to the block created for "outer"
	assert.Equal(t, "/v1/blocks/blk1/children", calls[1].Path)
	second := calls[1].Body["children"].([]interface{})
	require.Len(t, second, 1)
	middle := second[0].(map[string]interface{})["bulleted_list_item"].(map[string]interface{})
	assert.Len(t, middle["children"], 1)
}

func TestGetPageBlocksRecurses(t *testing.T) {
	repo, _ := setupRepository(t, func(call recordedCall, w http.ResponseWriter) {
		switch call.Path {
		case "/v1/blocks/page/children":
			_, _ = w.Write([]byte(`{"results":[
				{"object":"block","id":"l1","type":"bulleted_list_item","has_children":true,"bulleted_list_item":{"rich_text":[{"type":"text","text":{"content":"parent"}}]}},
				{"object":"block","id":"t1","type":"table","has_children":true,"table":{"table_width":2}}
			],"has_more":false}`))
		case "/v1/blocks/l1/children":
			_, _ = w.Write([]byte(`{"results":[{"object":"block","id":"l2","type":"paragraph","paragraph":{"rich_text":[{"type":"text","text":{"content":"child"}}]}}],"has_more":false}`))
		default:
			t.Errorf("unexpected call to %s", call.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	blocks, err := repo.GetPageBlocks(context.Background(), "page")
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	children := blocks[0].Children()
	require.Len(t, children, 1)
	assert.Equal(t, "child", PlainText(children[0].RichText()))
	assert.Equal(t, BlockType("table"), blocks[1].Type)
	assert.False(t, blocks[1].Type.Supported())
}

func TestArchivePage(t *testing.T) {
	repo, api := setupRepository(t, func(call recordedCall, w http.ResponseWriter) {
		_, _ = w.Write([]byte(`{"object":"page","id":"p1"}`))
	})

	require.NoError(t, repo.ArchivePage(context.Background(), "p1"))

	calls := api.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPatch, calls[0].Method)
	assert.Equal(t, true, calls[0].Body["archived"])
}
