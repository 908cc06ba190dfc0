package memory

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS memories (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	summary    TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id, created_at DESC);
`

// Memory is one archived long-term memory.
type Memory struct {
	ID        string
	UserID    string
	Kind      string
	Summary   string
	Source    string
	CreatedAt time.Time
	Score     int // keyword-overlap score, set only by Search
}

// Archive stores long-term memories in SQLite. Schema is owned by the app.
type Archive struct {
	db *sql.DB
}

// OpenArchive opens (creating if needed) the archive database at path.
func OpenArchive(ctx context.Context, path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, archiveSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error { return a.db.Close() }

// Add stores one memory and returns its id.
func (a *Archive) Add(ctx context.Context, userID, kind, summary, source string) (string, error) {
	id := uuid.NewString()
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO memories (id, user_id, kind, summary, source, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, kind, summary, source, time.Now().UTC(),
	)
	return id, err
}

// Recent returns the user's newest memories, newest first.
func (a *Archive) Recent(ctx context.Context, userID string, limit int) ([]Memory, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, user_id, kind, summary, source, created_at
		 FROM memories WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

// Search returns up to limit memories scored by word overlap with query,
// best first. Plain keyword matching; embeddings are out of scope here.
func (a *Archive) Search(ctx context.Context, userID, query string, limit int) ([]Memory, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, user_id, kind, summary, source, created_at FROM memories WHERE user_id = ?`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	all, err := scanMemories(rows)
	if err != nil {
		return nil, err
	}

	words := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(query)) {
		words[w] = true
	}
	var scored []Memory
	for _, m := range all {
		summary := strings.ToLower(m.Summary)
		for w := range words {
			if strings.Contains(summary, w) {
				m.Score++
			}
		}
		if m.Score > 0 {
			scored = append(scored, m)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func scanMemories(rows *sql.Rows) ([]Memory, error) {
	var out []Memory
	for rows.Next() {
		var m Memory
		if err := rows.Scan(&m.ID, &m.UserID, &m.Kind, &m.Summary, &m.Source, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
