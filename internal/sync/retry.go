package sync

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/tildaslashalef/notesync/internal/loggy"
	"github.com/tildaslashalef/notesync/internal/notion"
)

// DefaultMaxRetries is the retry budget of a remote call
const DefaultMaxRetries = 3

// RetryingRemote retries remote calls rejected by the rate limit, and read
// calls failing with a transient server error
type RetryingRemote struct {
	remote     RemoteRepository
	maxRetries int
	logger     *loggy.Logger
	newBackOff func() backoff.BackOff
}

// NewRetryingRemote wraps remote. A maxRetries of 0 disables retries.
func NewRetryingRemote(remote RemoteRepository, maxRetries int, logger *loggy.Logger) *RetryingRemote {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryingRemote{
		remote:     remote,
		maxRetries: maxRetries,
		logger:     logger,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// retry runs operation until it succeeds, fails permanently or the budget is spent
func (r *RetryingRemote) retry(ctx context.Context, name string, read bool, operation func() error) error {
	attempt := 0
	wrapped := func() error {
		attempt++
		err := operation()
		if err == nil {
			return nil
		}
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return err
		}
		if !retryable(err, read) {
			return backoff.Permanent(err)
		}
		r.logger.Warn("Remote call failed, retrying", "operation", name, "attempt", attempt, "error", err)
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), uint64(r.maxRetries)), ctx)
	return backoff.Retry(wrapped, policy)
}

func retryable(err error, read bool) bool {
	var remoteErr *notion.RemoteError
	if !errors.As(err, &remoteErr) {
		return false
	}
	if remoteErr.RateLimited() {
		return true
	}
	return read && remoteErr.Transient()
}

func (r *RetryingRemote) QueryDatabase(ctx context.Context, databaseID string, filter *notion.QueryFilter) ([]notion.RemotePage, error) {
	var pages []notion.RemotePage
	err := r.retry(ctx, "query_database", true, func() error {
		var err error
		pages, err = r.remote.QueryDatabase(ctx, databaseID, filter)
		return err
	})
	return pages, err
}

func (r *RetryingRemote) CreatePage(ctx context.Context, databaseID string, input notion.PageInput) (notion.RemotePage, error) {
	var page notion.RemotePage
	err := r.retry(ctx, "create_page", false, func() error {
		var err error
		page, err = r.remote.CreatePage(ctx, databaseID, input)
		if err != nil && page.ID != "" {
			// The page exists, creating it again would duplicate it
			return backoff.Permanent(err)
		}
		return err
	})
	return page, err
}

func (r *RetryingRemote) UpdatePage(ctx context.Context, pageID string, input notion.PageInput) error {
	return r.retry(ctx, "update_page", false, func() error {
		return r.remote.UpdatePage(ctx, pageID, input)
	})
}

func (r *RetryingRemote) GetPageBlocks(ctx context.Context, pageID string) ([]notion.Block, error) {
	var blocks []notion.Block
	err := r.retry(ctx, "get_page_blocks", true, func() error {
		var err error
		blocks, err = r.remote.GetPageBlocks(ctx, pageID)
		return err
	})
	return blocks, err
}

func (r *RetryingRemote) ArchivePage(ctx context.Context, pageID string) error {
	return r.retry(ctx, "archive_page", false, func() error {
		return r.remote.ArchivePage(ctx, pageID)
	})
}
