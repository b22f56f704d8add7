package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradeforge/riskmon/internal/domain"
)

// JournalStore implements domain.SessionJournal using PostgreSQL. Only
// lifecycle events with their final snapshot are recorded; tick-level
// history never reaches the database.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a new JournalStore backed by the given connection
// pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// Log appends one lifecycle entry. The detail map is stored as JSONB with
// all monetary figures as decimal strings.
func (s *JournalStore) Log(ctx context.Context, entry domain.JournalEntry) error {
	detailJSON, err := json.Marshal(entry.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal journal detail: %w", err)
	}

	const query = `
		INSERT INTO session_journal (session_id, event, reason, detail)
		VALUES ($1, $2, $3, $4)`
	_, err = s.pool.Exec(ctx, query, entry.SessionID, entry.Event, entry.Reason, detailJSON)
	if err != nil {
		return fmt.Errorf("postgres: log journal event %s for %s: %w", entry.Event, entry.SessionID, err)
	}
	return nil
}

// List returns journal entries for a session with pagination and optional
// time filtering. An empty sessionID returns entries across all sessions.
func (s *JournalStore) List(ctx context.Context, sessionID string, opts domain.ListOpts) ([]domain.JournalEntry, error) {
	query := `SELECT id, session_id, event, reason, detail, created_at FROM session_journal WHERE 1=1`
	args := []any{}
	argIdx := 1

	if sessionID != "" {
		query += fmt.Sprintf(" AND session_id = $%d", argIdx)
		args = append(args, sessionID)
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list journal entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var e domain.JournalEntry
		var detailJSON []byte

		if err := rows.Scan(&e.ID, &e.SessionID, &e.Event, &e.Reason, &detailJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan journal entry: %w", err)
		}

		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal journal detail: %w", err)
			}
		}

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list journal entries rows: %w", err)
	}
	return entries, nil
}

// Compile-time interface check.
var _ domain.SessionJournal = (*JournalStore)(nil)
