package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tildaslashalef/notesync/internal/loggy"
)

// queryPageSize is the page size requested from paginated endpoints
const queryPageSize = 100

// QueryFilter narrows a database query on the server
type QueryFilter struct {
	Timestamp      string         `json:"timestamp"`
	LastEditedTime *DateCondition `json:"last_edited_time,omitempty"`
}

// DateCondition is a date comparison of a filter
type DateCondition struct {
	OnOrAfter string `json:"on_or_after,omitempty"`
}

// EditedSince selects pages last edited at or after t
func EditedSince(t time.Time) *QueryFilter {
	return &QueryFilter{
		Timestamp:      "last_edited_time",
		LastEditedTime: &DateCondition{OnOrAfter: t.UTC().Format(time.RFC3339)},
	}
}

type queryRequest struct {
	StartCursor string       `json:"start_cursor,omitempty"`
	PageSize    int          `json:"page_size,omitempty"`
	Filter      *QueryFilter `json:"filter,omitempty"`
}

type pageListResponse struct {
	Results    []json.RawMessage `json:"results"`
	HasMore    bool              `json:"has_more"`
	NextCursor *string           `json:"next_cursor"`
}

type blockListResponse struct {
	Results    []Block `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

type parent struct {
	DatabaseID string `json:"database_id"`
}

type createPageRequest struct {
	Parent     parent     `json:"parent"`
	Properties Properties `json:"properties"`
	Children   []Block    `json:"children,omitempty"`
}

type updatePageRequest struct {
	Properties Properties `json:"properties,omitempty"`
	Archived   *bool      `json:"archived,omitempty"`
}

type appendChildrenRequest struct {
	Children []Block `json:"children"`
}

// Repository reads and writes database pages and their block trees
type Repository struct {
	client        *Client
	titleProperty string
	tagsProperty  string
	logger        *loggy.Logger
}

// NewRepository creates a page repository. titleProperty and tagsProperty
// name the database columns holding the page title and tags.
func NewRepository(client *Client, titleProperty, tagsProperty string, logger *loggy.Logger) *Repository {
	return &Repository{
		client:        client,
		titleProperty: titleProperty,
		tagsProperty:  tagsProperty,
		logger:        logger,
	}
}

// QueryDatabase returns every page of the database matching filter, following
// pagination to the end. Pages that are archived or carry no title are skipped.
func (r *Repository) QueryDatabase(ctx context.Context, databaseID string, filter *QueryFilter) ([]RemotePage, error) {
	var pages []RemotePage
	req := queryRequest{PageSize: queryPageSize, Filter: filter}
	path := fmt.Sprintf("/v1/databases/%s/query", url.PathEscape(databaseID))

	for {
		var resp pageListResponse
		if err := r.client.do(ctx, http.MethodPost, path, nil, req, &resp); err != nil {
			return nil, fmt.Errorf("querying database %s: %w", databaseID, err)
		}

		for _, raw := range resp.Results {
			page, ok := r.decodePage(raw)
			if ok {
				pages = append(pages, page)
			}
		}

		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			break
		}
		req.StartCursor = *resp.NextCursor
	}

	r.logger.Debug("Queried database", "database_id", databaseID, "pages", len(pages))
	return pages, nil
}

// decodePage turns one query result into a RemotePage, rejecting partial objects
func (r *Repository) decodePage(raw json.RawMessage) (RemotePage, bool) {
	var page Page
	if err := json.Unmarshal(raw, &page); err != nil {
		r.logger.Debug("Skipping undecodable page", "error", err)
		return RemotePage{}, false
	}

	if page.ID == "" || page.Archived || page.InTrash {
		return RemotePage{}, false
	}

	title, ok := page.Properties.Title(r.titleProperty)
	if !ok {
		r.logger.Debug("Skipping page without title", "page_id", page.ID)
		return RemotePage{}, false
	}

	return r.toRemotePage(page, title), true
}

func (r *Repository) toRemotePage(page Page, title string) RemotePage {
	link := page.URL
	if link == "" {
		link = PageURL(page.ID)
	}

	var tags []string
	if r.tagsProperty != "" {
		tags = page.Properties.MultiSelect(r.tagsProperty)
	}

	return RemotePage{
		ID:             page.ID,
		URL:            link,
		Title:          title,
		Tags:           tags,
		LastEditedTime: page.LastEditedTime,
	}
}

// properties builds the property payload of a page write
func (r *Repository) properties(input PageInput) Properties {
	props := Properties{
		r.titleProperty: TitleProperty{Title: NewText(input.Title, nil, "")},
	}

	if input.Tags != nil && r.tagsProperty != "" {
		options := make([]SelectOption, 0, len(input.Tags))
		seen := make(map[string]bool, len(input.Tags))
		for _, tag := range input.Tags {
			// Option names may not contain commas
			name := strings.TrimSpace(strings.ReplaceAll(tag, ",", " "))
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			options = append(options, SelectOption{Name: name})
		}
		props[r.tagsProperty] = MultiSelectProperty{Options: options}
	}

	return props
}

// CreatePage creates a page in the database. When the body does not fit in
// the create call the rest is appended afterwards. If that append fails the
// created page is returned together with the error.
func (r *Repository) CreatePage(ctx context.Context, databaseID string, input PageInput) (RemotePage, error) {
	first, rest := input.Blocks, []Block(nil)
	if len(first) > MaxBlocksPerRequest {
		first, rest = first[:MaxBlocksPerRequest], first[MaxBlocksPerRequest:]
	}
	if _, deferred := inlineChildren(first); len(deferred) > 0 {
		first, rest = nil, input.Blocks
	}

	req := createPageRequest{
		Parent:     parent{DatabaseID: databaseID},
		Properties: r.properties(input),
		Children:   first,
	}

	var page Page
	if err := r.client.do(ctx, http.MethodPost, "/v1/pages", nil, req, &page); err != nil {
		return RemotePage{}, fmt.Errorf("creating page %q: %w", input.Title, err)
	}

	created := r.toRemotePage(page, input.Title)
	if len(rest) > 0 {
		if err := r.AppendChildren(ctx, page.ID, rest); err != nil {
			return created, fmt.Errorf("appending body of new page %s: %w", page.ID, err)
		}
	}

	r.logger.Debug("Created page", "page_id", page.ID, "blocks", len(input.Blocks))
	return created, nil
}

// UpdatePage replaces properties and body of an existing page: properties
// first, then the old body is cleared, then the new body is appended.
// A failure part way leaves the page partially updated.
func (r *Repository) UpdatePage(ctx context.Context, pageID string, input PageInput) error {
	path := fmt.Sprintf("/v1/pages/%s", url.PathEscape(pageID))
	req := updatePageRequest{Properties: r.properties(input)}

	if err := r.client.do(ctx, http.MethodPatch, path, nil, req, nil); err != nil {
		return fmt.Errorf("updating properties of page %s: %w", pageID, err)
	}

	if err := r.ClearChildren(ctx, pageID); err != nil {
		return err
	}

	if err := r.AppendChildren(ctx, pageID, input.Blocks); err != nil {
		return err
	}

	r.logger.Debug("Updated page", "page_id", pageID, "blocks", len(input.Blocks))
	return nil
}

// ArchivePage moves a page to the trash
func (r *Repository) ArchivePage(ctx context.Context, pageID string) error {
	archived := true
	path := fmt.Sprintf("/v1/pages/%s", url.PathEscape(pageID))

	if err := r.client.do(ctx, http.MethodPatch, path, nil, updatePageRequest{Archived: &archived}, nil); err != nil {
		return fmt.Errorf("archiving page %s: %w", pageID, err)
	}
	return nil
}

// listChildren returns the direct children of a block, following pagination
func (r *Repository) listChildren(ctx context.Context, blockID string) ([]Block, error) {
	var blocks []Block
	path := fmt.Sprintf("/v1/blocks/%s/children", url.PathEscape(blockID))
	query := url.Values{"page_size": {fmt.Sprint(queryPageSize)}}

	for {
		var resp blockListResponse
		if err := r.client.do(ctx, http.MethodGet, path, query, nil, &resp); err != nil {
			return nil, fmt.Errorf("listing children of %s: %w", blockID, err)
		}
		blocks = append(blocks, resp.Results...)

		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			break
		}
		query.Set("start_cursor", *resp.NextCursor)
	}

	return blocks, nil
}

// ClearChildren deletes every child block of blockID, one at a time
func (r *Repository) ClearChildren(ctx context.Context, blockID string) error {
	children, err := r.listChildren(ctx, blockID)
	if err != nil {
		return err
	}

	for _, child := range children {
		path := fmt.Sprintf("/v1/blocks/%s", url.PathEscape(child.ID))
		if err := r.client.do(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
			return fmt.Errorf("deleting block %s: %w", child.ID, err)
		}
	}

	return nil
}

// AppendChildren appends blocks under blockID in order, in chunks of at most
// MaxBlocksPerRequest. Children nested deeper than one level are appended to
// their freshly created parents afterwards.
func (r *Repository) AppendChildren(ctx context.Context, blockID string, blocks []Block) error {
	path := fmt.Sprintf("/v1/blocks/%s/children", url.PathEscape(blockID))

	for start := 0; start < len(blocks); start += MaxBlocksPerRequest {
		end := start + MaxBlocksPerRequest
		if end > len(blocks) {
			end = len(blocks)
		}

		payload, deferred := inlineChildren(blocks[start:end])

		var resp blockListResponse
		if err := r.client.do(ctx, http.MethodPatch, path, nil, appendChildrenRequest{Children: payload}, &resp); err != nil {
			return fmt.Errorf("appending blocks to %s: %w", blockID, err)
		}

		for _, d := range deferred {
			if d.index >= len(resp.Results) || resp.Results[d.index].ID == "" {
				return fmt.Errorf("appending blocks to %s: created block %d missing from response", blockID, d.index)
			}
			if err := r.AppendChildren(ctx, resp.Results[d.index].ID, d.children); err != nil {
				return err
			}
		}
	}

	return nil
}

// GetPageBlocks returns the block tree of a page, children attached to parents
func (r *Repository) GetPageBlocks(ctx context.Context, pageID string) ([]Block, error) {
	blocks, err := r.listChildren(ctx, pageID)
	if err != nil {
		return nil, err
	}

	for i := range blocks {
		b := &blocks[i]
		if !b.HasChildren || !b.Type.Supported() {
			continue
		}

		children, err := r.GetPageBlocks(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		b.SetChildren(children)
	}

	return blocks, nil
}

type deferredChildren struct {
	index    int
	children []Block
}

// inlineChildren prepares blocks for one append call. A block keeps its
// children inline when none of them has children of its own and they fit in
// one request; otherwise the children are returned for a follow-up call.
func inlineChildren(blocks []Block) ([]Block, []deferredChildren) {
	payload := make([]Block, len(blocks))
	var deferred []deferredChildren

	for i, b := range blocks {
		children := b.Children()
		if len(children) == 0 {
			payload[i] = b
			continue
		}

		nested := len(children) > MaxBlocksPerRequest
		for _, c := range children {
			if len(c.Children()) > 0 {
				nested = true
				break
			}
		}

		if nested {
			payload[i] = b.WithoutChildren()
			deferred = append(deferred, deferredChildren{index: i, children: children})
		} else {
			payload[i] = b
		}
	}

	return payload, deferred
}
