package pattern

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ckoons/katra-sub002/internal/types"
)

func testRecord(content string, ts time.Time, importance float64) *types.Record {
	rec := types.NewRecord("tess", content, types.TypeExperience, importance)
	rec.Timestamp = ts
	return rec
}

// debuggingRecords builds n near-duplicate records on the same day,
// staggered by an hour each, anchored at age before now.
func debuggingRecords(n int, age time.Duration, now time.Time) []*types.Record {
	base := now.Add(-age)
	var records []*types.Record
	for i := 0; i < n; i++ {
		records = append(records, testRecord(
			fmt.Sprintf("debugging the parser timeout failure attempt %d", i),
			base.Add(time.Duration(i)*time.Hour), 0.5))
	}
	return records
}

func TestDetectBelowMinClusterSize(t *testing.T) {
	d := NewDetector()
	now := time.Now().UTC()

	if got := d.Detect(debuggingRecords(2, 48*time.Hour, now), now); got != nil {
		t.Errorf("Two records produced %d patterns, want none", len(got))
	}

	// Two similar plus one unrelated: still no cluster of three.
	records := debuggingRecords(2, 48*time.Hour, now)
	records = append(records, testRecord("completely unrelated garden walk", now, 0.5))
	if got := d.Detect(records, now); got != nil {
		t.Errorf("Cluster of two produced %d patterns, want none", len(got))
	}
}

func TestDetectMarksOutliers(t *testing.T) {
	d := NewDetector()
	now := time.Now().UTC()

	records := debuggingRecords(8, 25*24*time.Hour, now)
	records[3].Importance = 0.9 // the breakthrough in the middle

	patterns := d.Detect(records, now)
	if len(patterns) != 1 {
		t.Fatalf("Detect found %d patterns, want 1", len(patterns))
	}
	p := patterns[0]
	if len(p.Members) != 8 {
		t.Fatalf("Pattern has %d members, want 8", len(p.Members))
	}
	if p.Preserved != 3 || p.Archived != 5 {
		t.Errorf("Preserved/Archived = %d/%d, want 3/5", p.Preserved, p.Archived)
	}

	wantOutliers := map[string]bool{
		records[0].RecordID: true, // first
		records[7].RecordID: true, // last
		records[3].RecordID: true, // highest importance
	}
	for _, rec := range p.Members {
		if rec.PatternOutlier != wantOutliers[rec.RecordID] {
			t.Errorf("Outlier flag for %s = %v, want %v",
				rec.RecordID, rec.PatternOutlier, wantOutliers[rec.RecordID])
		}
		if rec.PatternID != p.ID {
			t.Errorf("Member %s has pattern id %q, want %q", rec.RecordID, rec.PatternID, p.ID)
		}
		if rec.PatternFrequency != 8 {
			t.Errorf("PatternFrequency = %d, want 8", rec.PatternFrequency)
		}
	}

	wantSummary := "Pattern: 8 occurrences (5 archived, 3 preserved as outliers)"
	if records[0].PatternSummary != wantSummary {
		t.Errorf("Summary = %q, want %q", records[0].PatternSummary, wantSummary)
	}
	if records[1].PatternSummary != "" {
		t.Errorf("Archived member carries summary %q, want empty", records[1].PatternSummary)
	}
	if !strings.HasPrefix(p.ID, "pattern_") {
		t.Errorf("Pattern id %q missing pattern_ prefix", p.ID)
	}
}

func TestTemporalGate(t *testing.T) {
	d := NewDetector()
	now := time.Now().UTC()

	// Recent memories must cluster within a week: 2d, 3d, and 12d old.
	// The 12d record sits 10 days from the seed, outside the gate.
	recent := []*types.Record{
		testRecord("debugging the parser timeout failure", now.Add(-2*24*time.Hour), 0.5),
		testRecord("debugging the parser timeout failure", now.Add(-3*24*time.Hour), 0.5),
		testRecord("debugging the parser timeout failure", now.Add(-12*24*time.Hour), 0.5),
	}
	if got := d.Detect(recent, now); got != nil {
		t.Errorf("Recent spread beyond a week clustered into %d patterns, want none", len(got))
	}

	// Old memories get the wider month gate: 60d, 70d, 80d old all cluster.
	old := []*types.Record{
		testRecord("debugging the parser timeout failure", now.Add(-60*24*time.Hour), 0.5),
		testRecord("debugging the parser timeout failure", now.Add(-70*24*time.Hour), 0.5),
		testRecord("debugging the parser timeout failure", now.Add(-80*24*time.Hour), 0.5),
	}
	if got := d.Detect(old, now); len(got) != 1 {
		t.Errorf("Old spread within a month produced %d patterns, want 1", len(got))
	}
}

func TestSimilarityThreshold(t *testing.T) {
	d := NewDetector()
	now := time.Now().UTC()

	// One shared keyword out of four is below the 0.4 threshold.
	records := []*types.Record{
		testRecord("deployment failed on staging cluster", now.Add(-time.Hour), 0.5),
		testRecord("deployment celebration dinner downtown tonight", now.Add(-2*time.Hour), 0.5),
		testRecord("deployment shirt arrived in the mail", now.Add(-3*time.Hour), 0.5),
	}
	if got := d.Detect(records, now); got != nil {
		t.Errorf("Dissimilar records produced %d patterns, want none", len(got))
	}
}

func TestEmotionDeviantOutlier(t *testing.T) {
	d := NewDetector()
	now := time.Now().UTC()

	records := debuggingRecords(5, 25*24*time.Hour, now)
	for _, rec := range records {
		rec.EmotionIntensity = 0.1
	}
	records[2].EmotionIntensity = 0.9
	records[2].EmotionType = "frustration"

	patterns := d.Detect(records, now)
	if len(patterns) != 1 {
		t.Fatalf("Detect found %d patterns, want 1", len(patterns))
	}
	if !records[2].PatternOutlier {
		t.Error("Emotional deviant not preserved as outlier")
	}
	// first (also highest importance by tie), last, and the deviant.
	if patterns[0].Preserved != 3 {
		t.Errorf("Preserved = %d, want 3", patterns[0].Preserved)
	}
}

func TestFlatEmotionNoExtraOutlier(t *testing.T) {
	d := NewDetector()
	now := time.Now().UTC()

	records := debuggingRecords(5, 25*24*time.Hour, now)
	records[1].Importance = 0.8
	for _, rec := range records {
		rec.EmotionIntensity = 0.5
	}

	patterns := d.Detect(records, now)
	if len(patterns) != 1 {
		t.Fatalf("Detect found %d patterns, want 1", len(patterns))
	}
	if patterns[0].Preserved != 3 {
		t.Errorf("Preserved = %d, want 3 (no emotion deviant on flat intensity)", patterns[0].Preserved)
	}
}

func TestFilterOutliers(t *testing.T) {
	d := NewDetector()
	now := time.Now().UTC()

	records := debuggingRecords(6, 25*24*time.Hour, now)
	records[2].Importance = 0.9
	loner := testRecord("unrelated solo memory about gardens", now.Add(-25*24*time.Hour), 0.5)
	records = append(records, loner)

	if got := d.Detect(records, now); len(got) != 1 {
		t.Fatalf("Detect found %d patterns, want 1", len(got))
	}

	archive := FilterOutliers(records)
	if len(archive) != 3 {
		t.Fatalf("FilterOutliers returned %d records, want 3", len(archive))
	}
	for _, rec := range archive {
		if rec.PatternOutlier {
			t.Errorf("Outlier %s in archive set", rec.RecordID)
		}
		if rec.RecordID == loner.RecordID {
			t.Errorf("Unpatterned record %s in archive set", rec.RecordID)
		}
	}
}
