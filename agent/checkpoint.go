package agent

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// CheckpointStore persists the final state of each turn keyed by thread id,
// so a conversation can carry its message log across process restarts. It is
// best-effort: callers treat load/save failures as log-worthy, not fatal.
type CheckpointStore struct {
	db *sql.DB
}

func NewCheckpointStore(path string) (*CheckpointStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %v", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS checkpoints (
		thread_id  TEXT PRIMARY KEY,
		state      TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize checkpoint schema: %v", err)
	}

	return &CheckpointStore{db: db}, nil
}

// Load returns the last saved state for the thread, or nil when none exists.
func (s *CheckpointStore) Load(ctx context.Context, threadID string) (*State, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM checkpoints WHERE thread_id = ?", threadID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %v", err)
	}

	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("corrupt checkpoint for thread %q: %v", threadID, err)
	}
	return &state, nil
}

// Save upserts the state for the thread.
func (s *CheckpointStore) Save(ctx context.Context, threadID string, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %v", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, state, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(thread_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		threadID, string(raw), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %v", err)
	}
	return nil
}

func (s *CheckpointStore) Close() error {
	return s.db.Close()
}
