package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/JaimeStill/emissary/audit"
	"github.com/JaimeStill/emissary/pkg/repository"
)

const (
	upsertCheckpoint = `
		INSERT INTO checkpoints(thread_id, document_id, next_node, workflow_status, record, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (thread_id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			next_node = EXCLUDED.next_node,
			workflow_status = EXCLUDED.workflow_status,
			record = EXCLUDED.record,
			updated_at = EXCLUDED.updated_at`

	insertHistory = `
		INSERT INTO checkpoint_history(thread_id, next_node, workflow_status, trail_length, recorded_at)
		VALUES ($1, $2, $3, $4, $5)`

	selectCheckpoint = `
		SELECT thread_id, next_node, record, updated_at
		FROM checkpoints
		WHERE thread_id = $1`

	selectWaiting = `
		SELECT thread_id, next_node, record, updated_at
		FROM checkpoints
		WHERE next_node = $1
		ORDER BY updated_at`
)

// Postgres stores checkpoints in the checkpoints table and appends a row
// to checkpoint_history on every save. Lock uses a session advisory lock.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a Postgres store over db. The schema comes from
// cmd/migrate.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Save(ctx context.Context, cp Checkpoint) error {
	if err := ValidateThreadID(cp.ThreadID); err != nil {
		return err
	}
	if cp.Record == nil {
		return fmt.Errorf("save %s: nil record", cp.ThreadID)
	}

	cp = stamp(cp)
	data, err := json.Marshal(cp.Record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	return repository.InTx(ctx, p.db, func(tx *sql.Tx) error {
		if err := repository.ExecExpectOne(ctx, tx, upsertCheckpoint,
			cp.ThreadID, cp.Record.DocumentID, cp.NextNode, string(cp.Record.WorkflowStatus), data, cp.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert checkpoint: %w", err)
		}

		if _, err := tx.ExecContext(ctx, insertHistory,
			cp.ThreadID, cp.NextNode, string(cp.Record.WorkflowStatus), len(cp.Record.ReasoningTrail), cp.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert checkpoint history: %w", err)
		}
		return nil
	})
}

func (p *Postgres) Load(ctx context.Context, threadID string) (Checkpoint, error) {
	cp, err := repository.QueryOne(ctx, p.db, selectCheckpoint, scanCheckpoint, threadID)
	if err != nil {
		return Checkpoint{}, repository.MapError(err, ErrNotFound, nil)
	}
	return cp, nil
}

func (p *Postgres) Waiting(ctx context.Context, node string) ([]Checkpoint, error) {
	cps, err := repository.QueryMany(ctx, p.db, selectWaiting, scanCheckpoint, node)
	if err != nil {
		return nil, fmt.Errorf("query waiting checkpoints: %w", err)
	}
	return cps, nil
}

// Lock takes pg_advisory_lock on a dedicated connection and releases it on
// that same connection.
func (p *Postgres) Lock(ctx context.Context, threadID string) (func(), error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock(hashtext($1))", threadID); err != nil {
		conn.Close()
		return nil, fmt.Errorf("advisory lock %s: %w", threadID, err)
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock(hashtext($1))", threadID)
		conn.Close()
	}, nil
}

func scanCheckpoint(s repository.Scanner) (Checkpoint, error) {
	var (
		cp   Checkpoint
		data []byte
	)
	if err := s.Scan(&cp.ThreadID, &cp.NextNode, &data, &cp.UpdatedAt); err != nil {
		return Checkpoint{}, err
	}

	cp.Record = new(audit.Record)
	if err := json.Unmarshal(data, cp.Record); err != nil {
		return Checkpoint{}, fmt.Errorf("decode record: %w", err)
	}
	return cp, nil
}
