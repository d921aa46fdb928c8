// Package postgres persists escrow action records via database/sql.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "paylink/pkg/domain"
	audit "paylink/pkg/platform/audit"
	txcontext "paylink/pkg/platform/tx"
)

// Store implements audit.Store on a Postgres escrow_actions table. Rows are
// append-only; nothing updates or deletes them.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts one action row. Metadata is stored as JSONB.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshal action metadata: %w", err)
	}

	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	query := `
		INSERT INTO escrow_actions (id, escrow_id, category, actor, action, notes, request_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		uuid.UUID(event.EscrowID),
		string(audit.Action(event.Action).Category()),
		event.Actor,
		event.Action,
		event.Notes,
		event.RequestID,
		metadata,
		timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert escrow action: %w", err)
	}
	return nil
}

// ListByEscrow returns the action trail for one escrow, oldest first.
func (s *Store) ListByEscrow(ctx context.Context, escrowID id.EscrowID) ([]audit.Event, error) {
	query := `
		SELECT escrow_id, actor, action, notes, request_id, metadata, created_at
		FROM escrow_actions
		WHERE escrow_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(escrowID))
	if err != nil {
		return nil, fmt.Errorf("list escrow actions: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event    audit.Event
			rawID    uuid.UUID
			metadata []byte
		)
		if err := rows.Scan(&rawID, &event.Actor, &event.Action, &event.Notes, &event.RequestID, &metadata, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scan escrow action: %w", err)
		}
		event.EscrowID = id.EscrowID(rawID)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal action metadata: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
