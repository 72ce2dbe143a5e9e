package index

import (
	"fmt"

	"github.com/ckoons/katra-sub002/internal/logging"
	"github.com/ckoons/katra-sub002/internal/store"
	"github.com/ckoons/katra-sub002/internal/types"
)

// Rebuild reconstructs the index for one owner from the append log. All
// existing rows for the owner are dropped, then the log is replayed oldest
// first; a record re-appended later in the log overwrites its earlier row,
// so the final index reflects the newest version of every record. Corrupt
// lines are skipped by the scan, never fatal. Returns the number of records
// indexed.
func (x *DB) Rebuild(log *store.Log, ownerID string) (int, error) {
	if ownerID == "" {
		return 0, fmt.Errorf("%w: empty owner id", types.ErrInvalidInput)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	tx, err := x.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("%w: begin rebuild: %v", types.ErrStorage, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM memory_content_fts
		WHERE record_id IN (SELECT record_id FROM memories WHERE owner_id = ?)`, ownerID); err != nil {
		return 0, fmt.Errorf("%w: clear fts for %s: %v", types.ErrStorage, ownerID, err)
	}
	if _, err := tx.Exec(`
		DELETE FROM memory_connections
		WHERE from_id IN (SELECT record_id FROM memories WHERE owner_id = ?)`, ownerID); err != nil {
		return 0, fmt.Errorf("%w: clear connections for %s: %v", types.ErrStorage, ownerID, err)
	}
	if _, err := tx.Exec(`DELETE FROM memories WHERE owner_id = ?`, ownerID); err != nil {
		return 0, fmt.Errorf("%w: clear memories for %s: %v", types.ErrStorage, ownerID, err)
	}

	count := 0
	skipped, err := log.Scan(ownerID, func(rec *types.Record, loc store.Location) error {
		if _, err := tx.Exec(`
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
			loc.Path, loc.Offset); err != nil {
			return fmt.Errorf("%w: reindex %s: %v", types.ErrStorage, rec.RecordID, err)
		}
		if _, err := tx.Exec(`DELETE FROM memory_content_fts WHERE record_id = ?`, rec.RecordID); err != nil {
			return fmt.Errorf("%w: reindex fts %s: %v", types.ErrStorage, rec.RecordID, err)
		}
		if _, err := tx.Exec(`INSERT INTO memory_content_fts (record_id, content) VALUES (?, ?)`,
			rec.RecordID, rec.Content); err != nil {
			return fmt.Errorf("%w: reindex fts %s: %v", types.ErrStorage, rec.RecordID, err)
		}
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit rebuild for %s: %v", types.ErrStorage, ownerID, err)
	}

	// Count distinct records, not log lines: re-appends collapse.
	var distinct int
	if err := x.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE owner_id = ?`, ownerID).Scan(&distinct); err != nil {
		return 0, fmt.Errorf("%w: count rebuilt rows: %v", types.ErrStorage, err)
	}

	logging.Info("index", "rebuilt %s: %d records (%d lines, %d skipped)", ownerID, distinct, count, skipped)
	return distinct, nil
}
