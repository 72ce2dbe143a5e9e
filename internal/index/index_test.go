package index

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ckoons/katra-sub002/internal/store"
	"github.com/ckoons/katra-sub002/internal/types"
)

func setupTest(t *testing.T) (*DB, *store.Log) {
	t.Helper()
	dir := t.TempDir()

	idx, err := Open(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("Failed to open index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	log, err := store.Open(filepath.Join(dir, "log"))
	if err != nil {
		t.Fatalf("Failed to open log: %v", err)
	}
	return idx, log
}

func addRecord(t *testing.T, idx *DB, log *store.Log, rec *types.Record) {
	t.Helper()
	loc, err := log.Append(rec)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := idx.Add(rec, loc); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
}

func TestQueryOrdering(t *testing.T) {
	idx, log := setupTest(t)

	low := types.NewRecord("tess", "low importance memory", types.TypeExperience, 0.2)
	mid := types.NewRecord("tess", "mid importance memory", types.TypeExperience, 0.5)
	high := types.NewRecord("tess", "high importance memory", types.TypeExperience, 0.9)
	tieOld := types.NewRecord("tess", "older tie memory", types.TypeExperience, 0.5)
	tieOld.Timestamp = tieOld.Timestamp.Add(-time.Hour)

	for _, rec := range []*types.Record{low, mid, high, tieOld} {
		addRecord(t, idx, log, rec)
	}

	metas, err := idx.Query(QueryParams{OwnerID: "tess"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(metas) != 4 {
		t.Fatalf("Query returned %d records, want 4", len(metas))
	}

	if metas[0].RecordID != high.RecordID {
		t.Errorf("First result = %s, want highest importance %s", metas[0].RecordID, high.RecordID)
	}
	// Importance tie: most recent first.
	if metas[1].RecordID != mid.RecordID || metas[2].RecordID != tieOld.RecordID {
		t.Errorf("Tie order = [%s %s], want [%s %s]",
			metas[1].RecordID, metas[2].RecordID, mid.RecordID, tieOld.RecordID)
	}
	if metas[3].RecordID != low.RecordID {
		t.Errorf("Last result = %s, want lowest importance %s", metas[3].RecordID, low.RecordID)
	}
}

func TestQueryFilters(t *testing.T) {
	idx, log := setupTest(t)

	exp := types.NewRecord("tess", "an experience memory", types.TypeExperience, 0.4)
	know := types.NewRecord("tess", "a knowledge memory", types.TypeKnowledge, 0.8)
	other := types.NewRecord("mira", "someone else's memory", types.TypeExperience, 0.9)
	for _, rec := range []*types.Record{exp, know, other} {
		addRecord(t, idx, log, rec)
	}

	metas, err := idx.Query(QueryParams{OwnerID: "tess", Type: types.TypeKnowledge})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(metas) != 1 || metas[0].RecordID != know.RecordID {
		t.Errorf("Type filter returned %d records, want only %s", len(metas), know.RecordID)
	}

	metas, err = idx.Query(QueryParams{OwnerID: "tess", MinImportance: 0.5})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(metas) != 1 || metas[0].RecordID != know.RecordID {
		t.Errorf("Importance filter returned %d records, want only %s", len(metas), know.RecordID)
	}
}

func TestQueryExcludesArchivedByDefault(t *testing.T) {
	idx, log := setupTest(t)

	active := types.NewRecord("tess", "active memory", types.TypeExperience, 0.5)
	archived := types.NewRecord("tess", "archived memory", types.TypeExperience, 0.5)
	addRecord(t, idx, log, active)
	addRecord(t, idx, log, archived)

	if err := idx.MarkArchived(archived.RecordID); err != nil {
		t.Fatalf("MarkArchived failed: %v", err)
	}

	metas, err := idx.Query(QueryParams{OwnerID: "tess"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(metas) != 1 || metas[0].RecordID != active.RecordID {
		t.Errorf("Default query returned %d records, want only the active one", len(metas))
	}

	metas, err = idx.Query(QueryParams{OwnerID: "tess", IncludeArchived: true})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(metas) != 2 {
		t.Errorf("IncludeArchived query returned %d records, want 2", len(metas))
	}
}

func TestFindSimilar(t *testing.T) {
	idx, log := setupTest(t)

	match := types.NewRecord("tess", "debugging the tokenizer crash in the parser", types.TypeExperience, 0.6)
	weak := types.NewRecord("tess", "debugging the tokenizer crash again today", types.TypeExperience, 0.2)
	unrelated := types.NewRecord("tess", "watering the garden plants this morning", types.TypeExperience, 0.9)
	stale := types.NewRecord("tess", "debugging the tokenizer crash last year", types.TypeExperience, 0.9)
	stale.Timestamp = stale.Timestamp.AddDate(-1, 0, 0)

	for _, rec := range []*types.Record{match, weak, unrelated, stale} {
		addRecord(t, idx, log, rec)
	}

	metas, err := idx.FindSimilar("tess", "tokenizer crash while debugging", 0.5, 24*time.Hour)
	if err != nil {
		t.Fatalf("FindSimilar failed: %v", err)
	}
	if len(metas) != 1 {
		t.Fatalf("FindSimilar returned %d records, want 1 (importance floor and window applied)", len(metas))
	}
	if metas[0].RecordID != match.RecordID {
		t.Errorf("FindSimilar hit = %s, want %s", metas[0].RecordID, match.RecordID)
	}

	// Zero window means unlimited look-back.
	metas, err = idx.FindSimilar("tess", "tokenizer crash while debugging", 0.5, 0)
	if err != nil {
		t.Fatalf("FindSimilar failed: %v", err)
	}
	if len(metas) != 2 {
		t.Errorf("Unlimited window returned %d records, want 2", len(metas))
	}
}

func TestUpdateMetadata(t *testing.T) {
	idx, log := setupTest(t)

	rec := types.NewRecord("tess", "memory to strengthen", types.TypeExperience, 0.5)
	addRecord(t, idx, log, rec)

	if err := idx.UpdateMetadata(rec.RecordID, 0.7, 3, 0.6); err != nil {
		t.Fatalf("UpdateMetadata failed: %v", err)
	}

	meta, err := idx.Get(rec.RecordID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if meta.Importance != 0.7 || meta.AccessCount != 3 || meta.Centrality != 0.6 {
		t.Errorf("Meta = (%v, %v, %v), want (0.7, 3, 0.6)",
			meta.Importance, meta.AccessCount, meta.Centrality)
	}

	err = idx.UpdateMetadata("tess_UNKNOWN", 0.5, 0, 0)
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("UpdateMetadata unknown id = %v, want ErrNotFound", err)
	}
}

func TestBumpAccess(t *testing.T) {
	idx, log := setupTest(t)

	rec := types.NewRecord("tess", "memory being read", types.TypeExperience, 0.5)
	addRecord(t, idx, log, rec)

	when := time.Now().UTC().Truncate(time.Second)
	if err := idx.BumpAccess(rec.RecordID, when); err != nil {
		t.Fatalf("BumpAccess failed: %v", err)
	}
	if err := idx.BumpAccess(rec.RecordID, when.Add(time.Minute)); err != nil {
		t.Fatalf("BumpAccess failed: %v", err)
	}

	meta, err := idx.Get(rec.RecordID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if meta.AccessCount != 2 {
		t.Errorf("AccessCount = %d, want 2", meta.AccessCount)
	}
	if !meta.LastAccessed.Equal(when.Add(time.Minute)) {
		t.Errorf("LastAccessed = %v, want %v", meta.LastAccessed, when.Add(time.Minute))
	}
}

func TestRebuildRestoresIndex(t *testing.T) {
	idx, log := setupTest(t)

	recs := []*types.Record{
		types.NewRecord("tess", "first durable memory", types.TypeExperience, 0.3),
		types.NewRecord("tess", "second durable memory", types.TypeKnowledge, 0.8),
	}
	for _, rec := range recs {
		addRecord(t, idx, log, rec)
	}

	if err := idx.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	count, err := idx.Rebuild(log, "tess")
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Rebuild indexed %d records, want 2", count)
	}

	metas, err := idx.Query(QueryParams{OwnerID: "tess"})
	if err != nil {
		t.Fatalf("Query after rebuild failed: %v", err)
	}
	if len(metas) != 2 {
		t.Errorf("Query after rebuild returned %d records, want 2", len(metas))
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	idx, log := setupTest(t)

	rec := types.NewRecord("tess", "stable memory content", types.TypeExperience, 0.5)
	addRecord(t, idx, log, rec)

	// A re-append (metadata update) collapses to one row on rebuild.
	rec.Importance = 0.7
	loc, err := log.Append(rec)
	if err != nil {
		t.Fatalf("Re-append failed: %v", err)
	}
	if err := idx.Add(rec, loc); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	first, err := idx.Rebuild(log, "tess")
	if err != nil {
		t.Fatalf("First rebuild failed: %v", err)
	}
	second, err := idx.Rebuild(log, "tess")
	if err != nil {
		t.Fatalf("Second rebuild failed: %v", err)
	}
	if first != 1 || second != 1 {
		t.Errorf("Rebuild counts = (%d, %d), want (1, 1)", first, second)
	}

	meta, err := idx.Get(rec.RecordID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if meta.Importance != 0.7 {
		t.Errorf("Rebuild kept importance %v, want the newest value 0.7", meta.Importance)
	}
}

func TestOwnerStats(t *testing.T) {
	idx, log := setupTest(t)

	exp := types.NewRecord("tess", "an experience memory", types.TypeExperience, 0.4)
	know := types.NewRecord("tess", "a knowledge memory", types.TypeKnowledge, 0.8)
	gone := types.NewRecord("tess", "an archived memory", types.TypeExperience, 0.2)
	for _, rec := range []*types.Record{exp, know, gone} {
		addRecord(t, idx, log, rec)
	}
	if err := idx.MarkArchived(gone.RecordID); err != nil {
		t.Fatalf("MarkArchived failed: %v", err)
	}
	if err := idx.AddTheme(know.RecordID, "infrastructure"); err != nil {
		t.Fatalf("AddTheme failed: %v", err)
	}

	stats, err := idx.OwnerStats("tess")
	if err != nil {
		t.Fatalf("OwnerStats failed: %v", err)
	}
	if stats.Total != 3 || stats.Archived != 1 {
		t.Errorf("Stats totals = (%d, %d), want (3, 1)", stats.Total, stats.Archived)
	}
	if stats.ByType["experience"] != 1 || stats.ByType["knowledge"] != 1 {
		t.Errorf("Stats by type = %v, want 1 experience, 1 knowledge", stats.ByType)
	}
	if stats.Themes != 1 {
		t.Errorf("Stats themes = %d, want 1", stats.Themes)
	}
}

func TestThemes(t *testing.T) {
	idx, log := setupTest(t)

	rec := types.NewRecord("tess", "themed memory", types.TypeExperience, 0.5)
	addRecord(t, idx, log, rec)

	for _, theme := range []string{"debugging", "infrastructure", "debugging"} {
		if err := idx.AddTheme(rec.RecordID, theme); err != nil {
			t.Fatalf("AddTheme failed: %v", err)
		}
	}

	themes, err := idx.Themes(rec.RecordID)
	if err != nil {
		t.Fatalf("Themes failed: %v", err)
	}
	if len(themes) != 2 {
		t.Errorf("Themes = %v, want 2 distinct themes", themes)
	}
}
