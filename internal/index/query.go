package index

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ckoons/katra-sub002/internal/keywords"
	"github.com/ckoons/katra-sub002/internal/store"
	"github.com/ckoons/katra-sub002/internal/types"
)

// findSimilarLimit bounds FTS result sets.
const findSimilarLimit = 50

// Meta is the queryable metadata the index holds for one record, plus its
// log location.
type Meta struct {
	RecordID          string
	OwnerID           string
	Timestamp         time.Time
	LastAccessed      time.Time
	Type              types.MemoryType
	Importance        float64
	AccessCount       int
	Centrality        float64
	EmotionIntensity  float64
	EmotionType       string
	MarkedImportant   bool
	MarkedForgettable bool
	Archived          bool
	Loc               store.Location
}

// QueryParams filters an index query. Zero values mean "no filter".
type QueryParams struct {
	OwnerID         string
	Since           time.Time
	Until           time.Time
	Type            types.MemoryType
	MinImportance   float64
	IncludeArchived bool
	Limit           int
}

const metaColumns = `record_id, owner_id, timestamp, last_accessed, memory_type,
	importance, access_count, graph_centrality, emotion_intensity, emotion_type,
	marked_important, marked_forgettable, archived, file_path, file_offset`

// Query returns record metadata matching the predicate, most-important
// first, ties broken most-recent first. Predicates are composed as bound
// fragments, never interpolated into the SQL text.
func (x *DB) Query(p QueryParams) ([]*Meta, error) {
	if p.OwnerID == "" {
		return nil, fmt.Errorf("%w: empty owner id", types.ErrInvalidInput)
	}

	where := []string{"owner_id = ?"}
	args := []any{p.OwnerID}

	if !p.IncludeArchived {
		where = append(where, "archived = 0")
	}
	if !p.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, p.Since.Unix())
	}
	if !p.Until.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, p.Until.Unix())
	}
	if p.Type != "" {
		where = append(where, "memory_type = ?")
		args = append(args, string(p.Type))
	}
	if p.MinImportance > 0 {
		where = append(where, "importance >= ?")
		args = append(args, p.MinImportance)
	}

	query := fmt.Sprintf(`SELECT %s FROM memories WHERE %s
		ORDER BY importance DESC, timestamp DESC`, metaColumns, strings.Join(where, " AND "))
	if p.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, p.Limit)
	}

	rows, err := x.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query memories: %v", types.ErrStorage, err)
	}
	defer rows.Close()
	return scanMetas(rows)
}

// Get returns the metadata for a single record id.
func (x *DB) Get(recordID string) (*Meta, error) {
	row := x.db.QueryRow(fmt.Sprintf(`SELECT %s FROM memories WHERE record_id = ?`, metaColumns), recordID)
	m, err := scanMeta(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: record %s", types.ErrNotFound, recordID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", types.ErrStorage, recordID, err)
	}
	return m, nil
}

// FindSimilar runs a full-text search for unarchived records resembling
// text, at or above the importance floor, within the look-back window
// (zero window means unlimited). The MATCH expression is built from the
// extracted keywords, each quoted, never from raw caller text.
func (x *DB) FindSimilar(ownerID, text string, importanceFloor float64, window time.Duration) ([]*Meta, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty search text", types.ErrInvalidInput)
	}

	kws := keywords.Extract(text)
	if len(kws) == 0 {
		return nil, nil
	}
	quoted := make([]string, len(kws))
	for i, kw := range kws {
		quoted[i] = `"` + strings.ReplaceAll(kw, `"`, `""`) + `"`
	}
	match := strings.Join(quoted, " OR ")

	where := []string{
		"memory_content_fts MATCH ?",
		"m.owner_id = ?",
		"m.archived = 0",
		"m.importance >= ?",
	}
	args := []any{match, ownerID, importanceFloor}

	if window > 0 {
		where = append(where, "m.timestamp >= ?")
		args = append(args, time.Now().Add(-window).Unix())
	}

	query := fmt.Sprintf(`
		SELECT m.record_id, m.owner_id, m.timestamp, m.last_accessed, m.memory_type,
		       m.importance, m.access_count, m.graph_centrality, m.emotion_intensity, m.emotion_type,
		       m.marked_important, m.marked_forgettable, m.archived, m.file_path, m.file_offset
		FROM memory_content_fts f
		JOIN memories m ON m.record_id = f.record_id
		WHERE %s
		ORDER BY m.importance DESC, m.timestamp DESC
		LIMIT ?`, strings.Join(where, " AND "))
	args = append(args, findSimilarLimit)

	rows, err := x.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: fts query: %v", types.ErrStorage, err)
	}
	defer rows.Close()
	return scanMetas(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeta(row rowScanner) (*Meta, error) {
	var m Meta
	var ts, accessed int64
	var memType string
	var important, forgettable, archived int
	err := row.Scan(&m.RecordID, &m.OwnerID, &ts, &accessed, &memType,
		&m.Importance, &m.AccessCount, &m.Centrality, &m.EmotionIntensity, &m.EmotionType,
		&important, &forgettable, &archived, &m.Loc.Path, &m.Loc.Offset)
	if err != nil {
		return nil, err
	}
	m.Timestamp = time.Unix(ts, 0).UTC()
	if accessed > 0 {
		m.LastAccessed = time.Unix(accessed, 0).UTC()
	}
	m.Type = types.MemoryType(memType)
	m.MarkedImportant = important != 0
	m.MarkedForgettable = forgettable != 0
	m.Archived = archived != 0
	return &m, nil
}

func scanMetas(rows *sql.Rows) ([]*Meta, error) {
	var metas []*Meta
	for rows.Next() {
		m, err := scanMeta(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan memory row: %v", types.ErrStorage, err)
		}
		metas = append(metas, m)
	}
	return metas, rows.Err()
}
