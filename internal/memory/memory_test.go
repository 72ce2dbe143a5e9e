package memory

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ckoons/katra-sub002/internal/config"
	"github.com/ckoons/katra-sub002/internal/types"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func putRecord(t *testing.T, s *Store, rec *types.Record) {
	t.Helper()
	if _, err := s.Put(rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
}

func TestPutQueryRoundTrip(t *testing.T) {
	s := setupStore(t)

	rec, err := s.CreateRecordWithFormation("tess",
		"switched the index to WAL mode after the lock contention incident",
		types.TypeDecision, 0.8, types.PathwayConscious, "explicit remember")
	if err != nil {
		t.Fatalf("CreateRecordWithFormation failed: %v", err)
	}
	rec.EmotionIntensity = 0.6
	rec.EmotionType = "relief"
	putRecord(t, s, rec)

	records, err := s.Query("tess", QueryParams{OwnerID: "tess"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Query returned %d records, want 1", len(records))
	}

	got := records[0]
	if got.RecordID != rec.RecordID {
		t.Errorf("RecordID = %q, want %q", got.RecordID, rec.RecordID)
	}
	if got.Content != rec.Content {
		t.Errorf("Content = %q, want %q", got.Content, rec.Content)
	}
	if got.Type != types.TypeDecision {
		t.Errorf("Type = %q, want decision", got.Type)
	}
	if got.EmotionType != "relief" {
		t.Errorf("EmotionType = %q, want relief", got.EmotionType)
	}
	if got.FormationPathway != types.PathwayConscious {
		t.Errorf("FormationPathway = %q, want conscious", got.FormationPathway)
	}
}

func TestPutRejectsUnimplementedTiers(t *testing.T) {
	s := setupStore(t)

	rec, err := s.CreateRecord("tess", "digest tier content", types.TypeExperience, 0.5)
	if err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}
	rec.Tier = types.TierDigest
	if _, err := s.Put(rec); !errors.Is(err, types.ErrNotImplemented) {
		t.Errorf("Put tier 2 = %v, want ErrNotImplemented", err)
	}
}

func TestQueryDeniesCrossOwner(t *testing.T) {
	s := setupStore(t)

	rec, _ := s.CreateRecord("tess", "private reflection on the outage", types.TypeReflection, 0.5)
	putRecord(t, s, rec)

	_, err := s.Query("mallory", QueryParams{OwnerID: "tess"})
	if !errors.Is(err, types.ErrPermissionDenied) {
		t.Errorf("Cross-owner query = %v, want ErrPermissionDenied", err)
	}

	// A permissive gate opens the same read.
	s.SetAccessGate(allowAllGate{})
	records, err := s.Query("mallory", QueryParams{OwnerID: "tess"})
	if err != nil {
		t.Fatalf("Gated query failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Gated query returned %d records, want 1", len(records))
	}
}

type allowAllGate struct{}

func (allowAllGate) Allow(requesterID, ownerID string) bool { return true }

func TestQueryBumpsAccess(t *testing.T) {
	s := setupStore(t)

	rec, _ := s.CreateRecord("tess", "memory that gets revisited", types.TypeExperience, 0.5)
	putRecord(t, s, rec)

	first, err := s.Query("tess", QueryParams{OwnerID: "tess"})
	if err != nil {
		t.Fatalf("First query failed: %v", err)
	}
	if first[0].AccessCount != 1 {
		t.Errorf("AccessCount after first query = %d, want 1", first[0].AccessCount)
	}
	if first[0].LastAccessed.IsZero() {
		t.Error("LastAccessed not set by query")
	}

	second, err := s.Query("tess", QueryParams{OwnerID: "tess"})
	if err != nil {
		t.Fatalf("Second query failed: %v", err)
	}
	if second[0].AccessCount != 2 {
		t.Errorf("AccessCount after second query = %d, want 2", second[0].AccessCount)
	}
}

// Eight near-duplicate debugging sessions from a few weeks back collapse to
// their outliers, while two unrelated medium-strength memories survive on
// strength alone.
func TestArchiveCompressesRepetition(t *testing.T) {
	s := setupStore(t)
	base := time.Now().UTC().AddDate(0, 0, -25)

	var debugging []*types.Record
	for i := 0; i < 8; i++ {
		rec, _ := s.CreateRecord("tess",
			fmt.Sprintf("debugging the scheduler deadlock again session %d", i),
			types.TypeExperience, 0.5)
		rec.Timestamp = base.Add(time.Duration(i) * time.Hour)
		putRecord(t, s, rec)
		debugging = append(debugging, rec)
	}
	// The breakthrough in the middle of the run.
	breakthrough := debugging[3]
	if err := s.Index().UpdateMetadata(breakthrough.RecordID, 0.9, 0, 0); err != nil {
		t.Fatalf("UpdateMetadata failed: %v", err)
	}

	budget, _ := s.CreateRecord("tess", "reviewing quarterly budget allocations", types.TypeExperience, 0.5)
	budget.Timestamp = base
	putRecord(t, s, budget)
	garden, _ := s.CreateRecord("tess", "planning the irrigation layout outside", types.TypeExperience, 0.5)
	garden.Timestamp = base
	putRecord(t, s, garden)

	archived, err := s.Archive("tess", 20)
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if archived != 5 {
		t.Errorf("Archived %d records, want 5 (8 members minus 3 outliers)", archived)
	}

	records, err := s.Query("tess", QueryParams{OwnerID: "tess"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("Active records = %d, want 5 (3 outliers + 2 unrelated)", len(records))
	}

	active := make(map[string]*types.Record)
	for _, rec := range records {
		active[rec.RecordID] = rec
	}
	for _, id := range []string{debugging[0].RecordID, debugging[7].RecordID, breakthrough.RecordID} {
		rec, ok := active[id]
		if !ok {
			t.Errorf("Outlier %s was archived", id)
			continue
		}
		if rec.PatternID == "" || !rec.PatternOutlier {
			t.Errorf("Outlier %s missing pattern marks", id)
		}
		if rec.PatternSummary == "" {
			t.Errorf("Outlier %s missing pattern summary", id)
		}
	}
	if _, ok := active[budget.RecordID]; !ok {
		t.Error("Medium-strength unrelated record was archived")
	}
	if _, ok := active[garden.RecordID]; !ok {
		t.Error("Medium-strength unrelated record was archived")
	}
}

// Consent flags override age: marked-important records survive any archive
// sweep, marked-forgettable records go immediately.
func TestArchiveHonorsConsentFlags(t *testing.T) {
	s := setupStore(t)

	keeper, _ := s.CreateRecord("tess", "the day casey first said the project name aloud", types.TypeExperience, 0.3)
	keeper.Timestamp = time.Now().UTC().AddDate(0, 0, -90)
	keeper.MarkedImportant = true
	putRecord(t, s, keeper)

	disposable, _ := s.CreateRecord("tess", "temporary scratch note about lunch", types.TypeExperience, 0.9)
	disposable.MarkedForgettable = true
	putRecord(t, s, disposable)

	archived, err := s.Archive("tess", 5)
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if archived != 1 {
		t.Errorf("Archived %d records, want 1 (the forgettable one)", archived)
	}

	records, err := s.Query("tess", QueryParams{OwnerID: "tess"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(records) != 1 || records[0].RecordID != keeper.RecordID {
		t.Errorf("Survivors = %v, want only the marked-important record", ids(records))
	}

	// The archived record is still reachable when asked for explicitly.
	all, err := s.Query("tess", QueryParams{OwnerID: "tess", IncludeArchived: true})
	if err != nil {
		t.Fatalf("Query with archived failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Records including archived = %d, want 2", len(all))
	}
}

func TestArchiveNothingQualifies(t *testing.T) {
	s := setupStore(t)

	rec, _ := s.CreateRecord("tess", "fresh memory from this morning", types.TypeExperience, 0.5)
	putRecord(t, s, rec)

	archived, err := s.Archive("tess", 30)
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if archived != 0 {
		t.Errorf("Archived %d records, want 0", archived)
	}
}

func TestRebuildAndStats(t *testing.T) {
	s := setupStore(t)

	for i := 0; i < 3; i++ {
		rec, _ := s.CreateRecord("tess", fmt.Sprintf("memory number %d about harbors", i), types.TypeKnowledge, 0.6)
		putRecord(t, s, rec)
	}

	n, err := s.Rebuild("tess")
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Rebuild indexed %d records, want 3", n)
	}

	stats, err := s.Stats("tess")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("Stats total = %d, want 3", stats.Total)
	}
	if stats.ByType[string(types.TypeKnowledge)] != 3 {
		t.Errorf("Knowledge count = %d, want 3", stats.ByType[string(types.TypeKnowledge)])
	}

	warmed, err := s.WarmOracle("tess")
	if err != nil {
		t.Fatalf("WarmOracle failed: %v", err)
	}
	if warmed != 3 {
		t.Errorf("WarmOracle registered %d records, want 3", warmed)
	}
}

func ids(records []*types.Record) []string {
	var out []string
	for _, rec := range records {
		out = append(out, rec.RecordID)
	}
	return out
}
