package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/possync/internal/models"
)

const defaultRecentLimit = 50

type PostgresSyncEventRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresSyncEventRepository(pool *pgxpool.Pool) *PostgresSyncEventRepository {
	return &PostgresSyncEventRepository{pool: pool}
}

// Append fills in ID and CreatedAt when the caller left them empty.
func (r *PostgresSyncEventRepository) Append(ctx context.Context, event *models.SyncEvent) error {
	prepareEvent(event)

	query := `INSERT INTO sync_events (id, direction, collection, external_id, operation, outcome, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.Direction,
		event.Collection,
		event.ExternalID,
		string(event.Operation),
		string(event.Outcome),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append sync event: %w", err)
	}
	return nil
}

func (r *PostgresSyncEventRepository) Recent(ctx context.Context, limit int) ([]*models.SyncEvent, error) {
	query := `SELECT id, direction, collection, external_id, operation, outcome, created_at
	          FROM sync_events
	          ORDER BY created_at DESC
	          LIMIT $1`

	rows, err := r.pool.Query(ctx, query, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query sync events: %w", err)
	}
	defer rows.Close()

	var events []*models.SyncEvent
	for rows.Next() {
		var event models.SyncEvent
		err := rows.Scan(
			&event.ID,
			&event.Direction,
			&event.Collection,
			&event.ExternalID,
			&event.Operation,
			&event.Outcome,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync event: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync events: %w", err)
	}

	return events, nil
}

type SQLiteSyncEventRepository struct {
	db *sql.DB
}

func NewSQLiteSyncEventRepository(db *sql.DB) *SQLiteSyncEventRepository {
	return &SQLiteSyncEventRepository{db: db}
}

func (r *SQLiteSyncEventRepository) Append(ctx context.Context, event *models.SyncEvent) error {
	prepareEvent(event)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_events (id, direction, collection, external_id, operation, outcome, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID.String(),
		event.Direction,
		event.Collection,
		event.ExternalID,
		string(event.Operation),
		string(event.Outcome),
		event.CreatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to append sync event: %w", err)
	}
	return nil
}

func (r *SQLiteSyncEventRepository) Recent(ctx context.Context, limit int) ([]*models.SyncEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, direction, collection, external_id, operation, outcome, created_at
		 FROM sync_events
		 ORDER BY created_at DESC
		 LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query sync events: %w", err)
	}
	defer rows.Close()

	var events []*models.SyncEvent
	for rows.Next() {
		var (
			event     models.SyncEvent
			id        string
			createdAt int64
		)
		if err := rows.Scan(&id, &event.Direction, &event.Collection, &event.ExternalID, &event.Operation, &event.Outcome, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync event: %w", err)
		}
		if event.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("failed to parse sync event id: %w", err)
		}
		event.CreatedAt = time.Unix(0, createdAt).UTC()
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync events: %w", err)
	}
	return events, nil
}

func prepareEvent(event *models.SyncEvent) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultRecentLimit
	}
	return limit
}
