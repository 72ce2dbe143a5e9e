// Package index is the SQLite secondary index over the append log. It maps
// record identity to file location plus queryable metadata and a full-text
// table. It is a query accelerator only: the log is the source of truth and
// Rebuild reconstructs the index from it.
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite index database.
type DB struct {
	db   *sql.DB
	path string

	// Serializes multi-statement writes; readers rely on WAL.
	mu sync.Mutex
}

// Open opens or creates the index database at dbPath.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	idx := &DB{db: db, path: dbPath}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return idx, nil
}

// Close closes the database connection.
func (x *DB) Close() error {
	return x.db.Close()
}

// migrate creates the base schema and applies incremental versions.
func (x *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS memories (
		record_id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		last_accessed INTEGER DEFAULT 0,
		memory_type TEXT NOT NULL,
		importance REAL DEFAULT 0.5,
		access_count INTEGER DEFAULT 0,
		graph_centrality REAL DEFAULT 0,
		emotion_intensity REAL DEFAULT 0,
		emotion_type TEXT DEFAULT '',
		marked_important INTEGER DEFAULT 0,
		marked_forgettable INTEGER DEFAULT 0,
		archived INTEGER DEFAULT 0,
		file_path TEXT NOT NULL,
		file_offset INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_memories_owner_time ON memories(owner_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance);
	CREATE INDEX IF NOT EXISTS idx_memories_centrality ON memories(graph_centrality);
	CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);
	CREATE INDEX IF NOT EXISTS idx_memories_archived ON memories(archived);

	CREATE VIRTUAL TABLE IF NOT EXISTS memory_content_fts USING fts5(
		record_id UNINDEXED,
		content
	);

	CREATE TABLE IF NOT EXISTS memory_connections (
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		relationship_type TEXT DEFAULT 'keyword_overlap',
		strength REAL DEFAULT 0,
		PRIMARY KEY (from_id, to_id)
	);

	CREATE INDEX IF NOT EXISTS idx_connections_from ON memory_connections(from_id);

	CREATE TABLE IF NOT EXISTS memory_themes (
		record_id TEXT NOT NULL,
		theme TEXT NOT NULL,
		PRIMARY KEY (record_id, theme)
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	if _, err := x.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return x.runMigrations()
}

// runMigrations applies incremental schema changes past v1.
func (x *DB) runMigrations() error {
	var version int
	err := x.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	// No migrations past v1 yet.
	_ = version
	return nil
}

// Stats holds per-owner index counts.
type Stats struct {
	Total         int            `json:"total"`
	Archived      int            `json:"archived"`
	ByType        map[string]int `json:"by_type"`
	AvgImportance float64        `json:"avg_importance"`
	Connections   int            `json:"connections"`
	Themes        int            `json:"themes"`
}

// OwnerStats summarizes the index contents for one owner.
func (x *DB) OwnerStats(ownerID string) (*Stats, error) {
	s := &Stats{ByType: make(map[string]int)}

	err := x.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(archived), 0),
		       COALESCE(AVG(CASE WHEN archived = 0 THEN importance END), 0)
		FROM memories WHERE owner_id = ?`, ownerID).
		Scan(&s.Total, &s.Archived, &s.AvgImportance)
	if err != nil {
		return nil, fmt.Errorf("failed to count memories: %w", err)
	}

	rows, err := x.db.Query(`
		SELECT memory_type, COUNT(*) FROM memories
		WHERE owner_id = ? AND archived = 0
		GROUP BY memory_type`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count types: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		s.ByType[t] = n
	}

	err = x.db.QueryRow(`
		SELECT COUNT(*) FROM memory_connections
		WHERE from_id IN (SELECT record_id FROM memories WHERE owner_id = ?)`, ownerID).
		Scan(&s.Connections)
	if err != nil {
		return nil, fmt.Errorf("failed to count connections: %w", err)
	}

	err = x.db.QueryRow(`
		SELECT COUNT(*) FROM memory_themes
		WHERE record_id IN (SELECT record_id FROM memories WHERE owner_id = ?)`, ownerID).
		Scan(&s.Themes)
	if err != nil {
		return nil, fmt.Errorf("failed to count themes: %w", err)
	}

	return s, nil
}

// Clear removes all data. Used by tests and rebuild.
func (x *DB) Clear() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, table := range []string{"memories", "memory_content_fts", "memory_connections", "memory_themes"} {
		if _, err := x.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
