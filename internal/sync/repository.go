package sync

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/tildaslashalef/notesync/internal/loggy"
	"github.com/tildaslashalef/notesync/internal/ulid"
)

// Repository defines operations for managing sync logs in the database
type Repository interface {
	// CreateSyncLog creates a new sync log
	CreateSyncLog(ctx context.Context, log *SyncLog) error

	// GetSyncLogs retrieves sync logs, newest first, optionally for one direction
	GetSyncLogs(ctx context.Context, direction Direction, limit, offset int) ([]*SyncLog, error)

	// GetLatestSyncLog retrieves the latest pass summary of a direction
	GetLatestSyncLog(ctx context.Context, direction Direction) (*SyncLog, error)
}

// SQLRepository implements the Repository interface using a SQL database
type SQLRepository struct {
	db     *sql.DB
	logger *loggy.Logger
}

// NewSQLRepository creates a new SQL repository
func NewSQLRepository(db *sql.DB, logger *loggy.Logger) *SQLRepository {
	return &SQLRepository{
		db:     db,
		logger: logger,
	}
}

var syncLogColumns = []string{
	"id", "pass_id", "direction", "item_ref", "remote_id", "action",
	"success", "error_type", "error_message", "started_at", "completed_at",
}

// CreateSyncLog creates a new sync log
func (r *SQLRepository) CreateSyncLog(ctx context.Context, log *SyncLog) error {
	if log.ID == "" {
		log.ID = ulid.SyncLogID()
	}

	q := squirrel.Insert("sync_logs").
		Columns(syncLogColumns...).
		Values(log.ID, log.PassID, log.Direction, log.ItemRef, log.RemoteID, log.Action,
			log.Success, log.ErrorType, log.ErrorMessage, log.StartedAt, log.CompletedAt)

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("building create sync log query: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("executing create sync log query: %w", err)
	}

	return nil
}

// GetSyncLogs retrieves sync logs with optional filtering
func (r *SQLRepository) GetSyncLogs(ctx context.Context, direction Direction, limit, offset int) ([]*SyncLog, error) {
	q := squirrel.Select(syncLogColumns...).
		From("sync_logs").
		OrderBy("completed_at DESC", "id DESC")

	if direction != "" {
		q = q.Where(squirrel.Eq{"direction": direction})
	}

	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get sync logs query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing get sync logs query: %w", err)
	}
	defer rows.Close()

	var logs []*SyncLog
	for rows.Next() {
		log, err := scanSyncLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sync log row: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync log rows: %w", err)
	}

	return logs, nil
}

// GetLatestSyncLog retrieves the latest pass summary of a direction
func (r *SQLRepository) GetLatestSyncLog(ctx context.Context, direction Direction) (*SyncLog, error) {
	q := squirrel.Select(syncLogColumns...).
		From("sync_logs").
		Where(squirrel.Eq{"direction": direction, "action": ActionPass}).
		OrderBy("completed_at DESC", "id DESC").
		Limit(1)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get latest sync log query: %w", err)
	}

	log, err := scanSyncLog(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No sync log found
		}
		return nil, fmt.Errorf("executing get latest sync log query: %w", err)
	}

	return log, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSyncLog(row rowScanner) (*SyncLog, error) {
	var log SyncLog
	err := row.Scan(
		&log.ID,
		&log.PassID,
		&log.Direction,
		&log.ItemRef,
		&log.RemoteID,
		&log.Action,
		&log.Success,
		&log.ErrorType,
		&log.ErrorMessage,
		&log.StartedAt,
		&log.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &log, nil
}
