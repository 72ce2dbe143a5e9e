package index

import (
	"fmt"
	"time"

	"github.com/ckoons/katra-sub002/internal/store"
	"github.com/ckoons/katra-sub002/internal/types"
)

// Add inserts or replaces the index row for a record. Re-appending an
// updated record lands here again with its new location, so last write
// wins by record id.
func (x *DB) Add(rec *types.Record, loc store.Location) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	tx, err := x.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin add: %v", types.ErrStorage, err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO memories (
			record_id, owner_id, timestamp, last_accessed, memory_type,
			importance, access_count, graph_centrality,
			emotion_intensity, emotion_type,
			marked_important, marked_forgettable, archived,
			file_path, file_offset
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RecordID, rec.OwnerID, rec.Timestamp.Unix(), lastAccessedUnix(rec),
		string(rec.Type), rec.Importance, rec.AccessCount, rec.Centrality,
		rec.EmotionIntensity, rec.EmotionType,
		boolInt(rec.MarkedImportant), boolInt(rec.MarkedForgettable), boolInt(rec.Archived),
		loc.Path, loc.Offset)
	if err != nil {
		return fmt.Errorf("%w: insert memory %s: %v", types.ErrStorage, rec.RecordID, err)
	}

	if _, err := tx.Exec(`DELETE FROM memory_content_fts WHERE record_id = ?`, rec.RecordID); err != nil {
		return fmt.Errorf("%w: clear fts %s: %v", types.ErrStorage, rec.RecordID, err)
	}
	if _, err := tx.Exec(`INSERT INTO memory_content_fts (record_id, content) VALUES (?, ?)`,
		rec.RecordID, rec.Content); err != nil {
		return fmt.Errorf("%w: insert fts %s: %v", types.ErrStorage, rec.RecordID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit add %s: %v", types.ErrStorage, rec.RecordID, err)
	}
	return nil
}

// UpdateMetadata persists new importance/access/centrality values for a
// record. Returns ErrNotFound for an unknown id.
func (x *DB) UpdateMetadata(recordID string, importance float64, accessCount int, centrality float64) error {
	if recordID == "" {
		return fmt.Errorf("%w: empty record id", types.ErrInvalidInput)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	res, err := x.db.Exec(`
		UPDATE memories
		SET importance = ?, access_count = ?, graph_centrality = ?
		WHERE record_id = ?`,
		importance, accessCount, centrality, recordID)
	if err != nil {
		return fmt.Errorf("%w: update metadata %s: %v", types.ErrStorage, recordID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: record %s", types.ErrNotFound, recordID)
	}
	return nil
}

// BumpAccess records one access: sets last_accessed and increments the
// access counter.
func (x *DB) BumpAccess(recordID string, when time.Time) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	res, err := x.db.Exec(`
		UPDATE memories
		SET last_accessed = ?, access_count = access_count + 1
		WHERE record_id = ?`,
		when.Unix(), recordID)
	if err != nil {
		return fmt.Errorf("%w: bump access %s: %v", types.ErrStorage, recordID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: record %s", types.ErrNotFound, recordID)
	}
	return nil
}

// MarkArchived flips the archived flag. Monotonic: there is no unarchive.
func (x *DB) MarkArchived(recordID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	res, err := x.db.Exec(`UPDATE memories SET archived = 1 WHERE record_id = ?`, recordID)
	if err != nil {
		return fmt.Errorf("%w: mark archived %s: %v", types.ErrStorage, recordID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: record %s", types.ErrNotFound, recordID)
	}
	return nil
}

// ReplaceConnections swaps the cached edge set for one record.
func (x *DB) ReplaceConnections(fromID string, toIDs []string, relationship string, strength float64) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	tx, err := x.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin connections: %v", types.ErrStorage, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM memory_connections WHERE from_id = ?`, fromID); err != nil {
		return fmt.Errorf("%w: clear connections %s: %v", types.ErrStorage, fromID, err)
	}
	for _, toID := range toIDs {
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO memory_connections (from_id, to_id, relationship_type, strength)
			VALUES (?, ?, ?, ?)`, fromID, toID, relationship, strength); err != nil {
			return fmt.Errorf("%w: insert connection %s->%s: %v", types.ErrStorage, fromID, toID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit connections %s: %v", types.ErrStorage, fromID, err)
	}
	return nil
}

// AddTheme tags a record with a theme. The daemon is the usual writer; the
// core only reads themes.
func (x *DB) AddTheme(recordID, theme string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	_, err := x.db.Exec(`INSERT OR IGNORE INTO memory_themes (record_id, theme) VALUES (?, ?)`,
		recordID, theme)
	if err != nil {
		return fmt.Errorf("%w: add theme %s: %v", types.ErrStorage, recordID, err)
	}
	return nil
}

// Themes returns the themes tagged on a record.
func (x *DB) Themes(recordID string) ([]string, error) {
	rows, err := x.db.Query(`SELECT theme FROM memory_themes WHERE record_id = ? ORDER BY theme`, recordID)
	if err != nil {
		return nil, fmt.Errorf("%w: themes %s: %v", types.ErrStorage, recordID, err)
	}
	defer rows.Close()

	var themes []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		themes = append(themes, t)
	}
	return themes, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func lastAccessedUnix(rec *types.Record) int64 {
	if rec.LastAccessed.IsZero() {
		return 0
	}
	return rec.LastAccessed.Unix()
}
