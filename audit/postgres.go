package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hupe1980/feedmesh/core"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id          TEXT PRIMARY KEY,
	direction   TEXT NOT NULL,
	from_agent  TEXT NOT NULL,
	to_agent    TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	message     JSONB NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_entries_conversation_idx ON audit_entries (conversation_id, recorded_at);
CREATE INDEX IF NOT EXISTS audit_entries_from_agent_idx ON audit_entries (from_agent, recorded_at);
CREATE INDEX IF NOT EXISTS audit_entries_to_agent_idx ON audit_entries (to_agent, recorded_at);
`

// PGLog is a Log backed by Postgres. Messages are stored as JSONB in their
// wire encoding, so they can be queried with SQL and decoded back losslessly.
type PGLog struct {
	pool *pgxpool.Pool
}

// Compile-time check that PGLog satisfies Log.
var _ Log = (*PGLog)(nil)

// NewPGLog returns a Log writing to the given pool. Call EnsureSchema once
// before use.
func NewPGLog(pool *pgxpool.Pool) *PGLog {
	return &PGLog{pool: pool}
}

// EnsureSchema creates the audit table and indexes if they do not exist.
func (l *PGLog) EnsureSchema(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, auditSchema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (l *PGLog) Append(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(entry.Message)
	if err != nil {
		return fmt.Errorf("marshal audited message: %w", err)
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO audit_entries (id, direction, from_agent, to_agent, conversation_id, message, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, string(entry.Direction), entry.Message.FromAgent, entry.Message.ToAgent,
		entry.Message.ConversationID, payload, entry.RecordedAt)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (l *PGLog) ByConversation(ctx context.Context, conversationID string) ([]Entry, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, direction, message, recorded_at FROM audit_entries
		 WHERE conversation_id = $1 ORDER BY recorded_at`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query audit by conversation: %w", err)
	}
	return scanEntries(rows)
}

func (l *PGLog) ByAgent(ctx context.Context, agentID string) ([]Entry, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, direction, message, recorded_at FROM audit_entries
		 WHERE from_agent = $1 OR to_agent = $1 ORDER BY recorded_at`, agentID)
	if err != nil {
		return nil, fmt.Errorf("query audit by agent: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			entry      Entry
			direction  string
			payload    []byte
			recordedAt time.Time
		)
		if err := rows.Scan(&entry.ID, &direction, &payload, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		msg, err := core.DecodeMessage(payload)
		if err != nil {
			return nil, fmt.Errorf("decode audited message %q: %w", entry.ID, err)
		}
		entry.Direction = Direction(direction)
		entry.Message = msg
		entry.RecordedAt = recordedAt
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}
