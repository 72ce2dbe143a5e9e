// Package pattern clusters near-duplicate records and marks the outliers
// that survive compression: repeated experience collapses to a handful of
// representative memories instead of dozens of copies.
package pattern

import (
	"fmt"
	"math"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ckoons/katra-sub002/internal/keywords"
	"github.com/ckoons/katra-sub002/internal/logging"
	"github.com/ckoons/katra-sub002/internal/types"
)

const (
	// DefaultSimilarity is the pairwise keyword-similarity threshold.
	DefaultSimilarity = 0.4
	// MinClusterSize is the smallest cluster that becomes a pattern.
	MinClusterSize = 3

	// Temporal gate: recent pairs must be close together, old pairs may
	// spread wider. Keeps same-vocabulary episodes years apart separate.
	recentWindow = 30 * 24 * time.Hour
	recentGap    = 7 * 24 * time.Hour
	oldGap       = 30 * 24 * time.Hour

	// emotionSpread is the intensity range that makes emotion variation
	// "meaningful" for outlier selection.
	emotionSpread = 0.3
)

// Pattern is one detected cluster. Members share a pattern id; outliers are
// flagged on the records themselves.
type Pattern struct {
	ID        string
	Members   []*types.Record
	Preserved int
	Archived  int
}

// Detector clusters records. Thresholds are per-instance so tests and
// config can tune them.
type Detector struct {
	Similarity     float64
	MinClusterSize int
}

// NewDetector returns a Detector with the default thresholds.
func NewDetector() *Detector {
	return &Detector{
		Similarity:     DefaultSimilarity,
		MinClusterSize: MinClusterSize,
	}
}

// clusterable applies the similarity threshold plus the temporal gate.
func (d *Detector) clusterable(a, b *types.Record, kwA, kwB []string, now time.Time) bool {
	if keywords.Similarity(kwA, kwB) < d.Similarity {
		return false
	}

	newer := a.Timestamp
	if b.Timestamp.After(newer) {
		newer = b.Timestamp
	}
	gap := a.Timestamp.Sub(b.Timestamp)
	if gap < 0 {
		gap = -gap
	}
	if now.Sub(newer) < recentWindow {
		return gap <= recentGap
	}
	return gap <= oldGap
}

// Detect finds patterns in the candidate set. Members get their pattern
// fields set in place (id, frequency, outlier flag, similarity to the
// cluster seed); outliers also get the human-readable summary. The caller
// persists the mutated records.
func (d *Detector) Detect(records []*types.Record, now time.Time) []*Pattern {
	if len(records) < d.MinClusterSize {
		return nil
	}

	kws := make([][]string, len(records))
	for i, rec := range records {
		kws[i] = keywords.Extract(rec.Content)
	}

	assigned := make([]bool, len(records))
	var patterns []*Pattern

	for i := range records {
		if assigned[i] {
			continue
		}

		memberIdx := []int{i}
		for j := i + 1; j < len(records); j++ {
			if assigned[j] {
				continue
			}
			if d.clusterable(records[i], records[j], kws[i], kws[j], now) {
				memberIdx = append(memberIdx, j)
			}
		}
		if len(memberIdx) < d.MinClusterSize {
			continue
		}

		p := &Pattern{ID: "pattern_" + ulid.Make().String()}
		for _, j := range memberIdx {
			assigned[j] = true
			rec := records[j]
			rec.PatternID = p.ID
			rec.PatternFrequency = len(memberIdx)
			rec.PatternSimilarity = keywords.Similarity(kws[i], kws[j])
			p.Members = append(p.Members, rec)
		}

		markOutliers(p.Members)
		for _, rec := range p.Members {
			if rec.PatternOutlier {
				p.Preserved++
			} else {
				p.Archived++
			}
		}
		summary := fmt.Sprintf("Pattern: %d occurrences (%d archived, %d preserved as outliers)",
			len(p.Members), p.Archived, p.Preserved)
		for _, rec := range p.Members {
			if rec.PatternOutlier {
				rec.PatternSummary = summary
			}
		}

		patterns = append(patterns, p)
		logging.Debug("pattern", "cluster %s: %d members, %d preserved", p.ID, len(p.Members), p.Preserved)
	}

	return patterns
}

// markOutliers flags the members preserved verbatim: chronological first
// and last, highest importance, and the strongest emotional deviant when
// the cluster's intensity actually varies.
func markOutliers(members []*types.Record) {
	if len(members) == 0 {
		return
	}

	first, last, top := members[0], members[0], members[0]
	minEmotion, maxEmotion, sum := members[0].EmotionIntensity, members[0].EmotionIntensity, 0.0
	for _, m := range members {
		if m.Timestamp.Before(first.Timestamp) {
			first = m
		}
		if m.Timestamp.After(last.Timestamp) {
			last = m
		}
		if m.Importance > top.Importance {
			top = m
		}
		if m.EmotionIntensity < minEmotion {
			minEmotion = m.EmotionIntensity
		}
		if m.EmotionIntensity > maxEmotion {
			maxEmotion = m.EmotionIntensity
		}
		sum += m.EmotionIntensity
	}

	first.PatternOutlier = true
	last.PatternOutlier = true
	top.PatternOutlier = true

	if maxEmotion-minEmotion >= emotionSpread {
		mean := sum / float64(len(members))
		deviant := members[0]
		for _, m := range members {
			if math.Abs(m.EmotionIntensity-mean) > math.Abs(deviant.EmotionIntensity-mean) {
				deviant = m
			}
		}
		deviant.PatternOutlier = true
	}
}

// FilterOutliers returns the archive set for a record batch: pattern
// members that are not outliers. Outliers drop out of the working set
// entirely (they stay active, just never re-submitted for archival);
// records outside any pattern are untouched and not returned.
func FilterOutliers(records []*types.Record) []*types.Record {
	var archive []*types.Record
	for _, rec := range records {
		if rec.PatternID != "" && !rec.PatternOutlier {
			archive = append(archive, rec)
		}
	}
	return archive
}
