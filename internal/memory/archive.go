package memory

import (
	"fmt"
	"time"

	"github.com/ckoons/katra-sub002/internal/consolidate"
	"github.com/ckoons/katra-sub002/internal/logging"
	"github.com/ckoons/katra-sub002/internal/pattern"
	"github.com/ckoons/katra-sub002/internal/types"
)

// Archive compresses an owner's history: records older than maxAgeDays are
// clustered, pattern members are archived except their outliers, and
// remaining old records fade only when their strength routes LOW.
//
// Consent flags dominate every other rule: marked_forgettable records are
// archived regardless of recency or strength, marked_important records are
// never touched. Zero qualifying records is success, not an error.
// Returns how many records were archived.
func (s *Store) Archive(ownerID string, maxAgeDays int) (int, error) {
	if ownerID == "" {
		return 0, fmt.Errorf("%w: empty owner id", types.ErrInvalidInput)
	}
	if maxAgeDays < 0 {
		return 0, fmt.Errorf("%w: negative max age", types.ErrInvalidInput)
	}

	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, -maxAgeDays)

	records, err := consolidate.LoadActive(s.log, s.idx, ownerID)
	if err != nil {
		return 0, err
	}

	archived := 0
	var candidates []*types.Record
	for _, rec := range records {
		switch {
		case rec.MarkedForgettable:
			if err := s.archiveRecord(rec); err != nil {
				return archived, err
			}
			archived++
		case rec.MarkedImportant:
			// never archived, regardless of age or strength
		case rec.Timestamp.Before(cutoff):
			candidates = append(candidates, rec)
		}
	}

	// Cluster the old records so repetition compresses to its outliers.
	patterns := pattern.NewDetector().Detect(candidates, now)
	for _, p := range patterns {
		for _, rec := range p.Members {
			if rec.PatternOutlier {
				// Outliers stay active; persist their pattern marks.
				if err := s.persistActive(rec); err != nil {
					return archived, err
				}
			}
		}
	}
	for _, rec := range pattern.FilterOutliers(candidates) {
		if err := s.archiveRecord(rec); err != nil {
			return archived, err
		}
		archived++
	}

	// Old records outside any pattern fade only when weak.
	for _, rec := range candidates {
		if rec.PatternID == "" && rec.StrengthTier() == types.StrengthLow {
			if err := s.archiveRecord(rec); err != nil {
				return archived, err
			}
			archived++
		}
	}

	logging.Info("memory", "archive %s (max age %dd): %d archived, %d patterns",
		ownerID, maxAgeDays, archived, len(patterns))
	return archived, nil
}
