// Package consolidate is the wake/sleep consolidation controller. During
// wake it captures cheaply; during sleep it routes records by strength,
// recomputes graph centrality, and extracts patterns, accumulating a stats
// snapshot per cycle.
package consolidate

import (
	"errors"
	"fmt"
	"time"

	"github.com/ckoons/katra-sub002/internal/converge"
	"github.com/ckoons/katra-sub002/internal/graph"
	"github.com/ckoons/katra-sub002/internal/index"
	"github.com/ckoons/katra-sub002/internal/logging"
	"github.com/ckoons/katra-sub002/internal/pattern"
	"github.com/ckoons/katra-sub002/internal/store"
	"github.com/ckoons/katra-sub002/internal/types"
)

// Stats accumulates per-cycle consolidation counters. Reset when a cycle
// completes.
type Stats struct {
	Captured               int `json:"captured"`
	ConsciousFormations    int `json:"conscious_formations"`
	SubconsciousFormations int `json:"subconscious_formations"`
	Convergences           int `json:"convergences"`

	Processed      int `json:"processed"`
	Preserved      int `json:"preserved"`
	Summarized     int `json:"summarized"` // always 0: medium-tier summarization is an extension point
	HighStrength   int `json:"high_strength"`
	MediumStrength int `json:"medium_strength"`
	LowStrength    int `json:"low_strength"`

	CentralityUpdates int `json:"centrality_updates"`
	PatternsExtracted int `json:"patterns_extracted"`

	WakeStart     time.Time     `json:"wake_start"`
	SleepStart    time.Time     `json:"sleep_start,omitzero"`
	CycleDuration time.Duration `json:"cycle_duration"`
}

// Controller owns one owner's consolidation cycle. Not safe for concurrent
// use: single-writer-per-owner discipline applies.
type Controller struct {
	owner    string
	mode     types.Mode
	log      *store.Log
	idx      *index.DB
	det      *converge.Detector
	graph    *graph.Builder
	patterns *pattern.Detector

	stats   Stats
	touched map[string]bool
}

// New builds a controller in WAKE mode.
func New(ownerID string, log *store.Log, idx *index.DB, det *converge.Detector) (*Controller, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: empty owner id", types.ErrInvalidInput)
	}
	if log == nil || idx == nil || det == nil {
		return nil, fmt.Errorf("%w: controller needs log, index, and detector", types.ErrInvalidInput)
	}
	return &Controller{
		owner:    ownerID,
		mode:     types.ModeWake,
		log:      log,
		idx:      idx,
		det:      det,
		graph:    graph.New(idx),
		patterns: pattern.NewDetector(),
		stats:    Stats{WakeStart: time.Now().UTC()},
		touched:  make(map[string]bool),
	}, nil
}

// Mode returns the current state.
func (c *Controller) Mode() types.Mode { return c.mode }

// Stats returns a copy of the running counters.
func (c *Controller) Stats() Stats { return c.stats }

// Capture stores one record on the wake path. Calling it during SLEEP is
// an invalid-state error: heavy processing must not interleave with writes.
func (c *Controller) Capture(rec *types.Record) error {
	if c.mode != types.ModeWake {
		return fmt.Errorf("%w: capture requires WAKE mode", types.ErrInvalidState)
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.OwnerID != c.owner {
		return fmt.Errorf("%w: record owner %s does not match controller owner %s",
			types.ErrInvalidInput, rec.OwnerID, c.owner)
	}
	if rec.FormationPathway == "" {
		rec.FormationPathway = types.PathwayConscious
	}

	loc, err := c.log.Append(rec)
	if err != nil {
		return err
	}
	if err := c.idx.Add(rec, loc); err != nil {
		return err
	}

	c.touched[rec.RecordID] = true
	c.stats.Captured++
	if rec.FormationPathway == types.PathwayConscious {
		c.stats.ConsciousFormations++
	}
	return nil
}

// Analyze runs the convergence pipeline over one conversation turn.
// A benign no-op during SLEEP so defensive pollers never break.
func (c *Controller) Analyze(userInput, ciResponse string) error {
	if c.mode != types.ModeWake {
		return nil
	}

	candidates, err := c.det.AnalyzeConversation(userInput, ciResponse)
	if err != nil {
		return err
	}

	for _, cand := range candidates {
		sig, err := c.det.DetectConvergence(cand)
		switch {
		case err == nil:
			if err := c.det.StrengthenConverged(sig); err != nil {
				return err
			}
			c.touched[sig.RecordID] = true
			c.stats.Convergences++
		case errors.Is(err, types.ErrNotFound):
			rec, err := c.det.StoreAutomatic(cand)
			if err != nil {
				return err
			}
			c.touched[rec.RecordID] = true
			c.stats.Captured++
			c.stats.SubconsciousFormations++
		default:
			return err
		}
	}
	return nil
}

// BeginSleep switches to SLEEP mode. Idempotent.
func (c *Controller) BeginSleep() error {
	if c.mode == types.ModeSleep {
		return nil
	}
	c.mode = types.ModeSleep
	c.stats.SleepStart = time.Now().UTC()
	logging.Info("consolidate", "%s entering sleep: %d captured this cycle", c.owner, c.stats.Captured)
	return nil
}

// RouteByStrength classifies every record touched since wake-start into
// HIGH/MEDIUM/LOW. HIGH moves nothing; MEDIUM is earmarked for future
// summarization; LOW is earmarked for archival/fade. SLEEP-only.
func (c *Controller) RouteByStrength() (high, medium, low int, err error) {
	if c.mode != types.ModeSleep {
		return 0, 0, 0, fmt.Errorf("%w: route_by_strength requires SLEEP mode", types.ErrInvalidState)
	}

	for id := range c.touched {
		meta, err := c.idx.Get(id)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				continue
			}
			return 0, 0, 0, err
		}
		switch strengthTier(meta) {
		case types.StrengthHigh:
			high++
		case types.StrengthMedium:
			medium++
		case types.StrengthLow:
			low++
		}
	}

	c.stats.Processed += high + medium + low
	c.stats.Preserved += high
	c.stats.HighStrength += high
	c.stats.MediumStrength += medium
	c.stats.LowStrength += low
	logging.Info("consolidate", "%s routed: %d high, %d medium, %d low", c.owner, high, medium, low)
	return high, medium, low, nil
}

// CalculateCentrality runs the graph pass over the active set and persists
// scores. SLEEP-only.
func (c *Controller) CalculateCentrality() (int, error) {
	if c.mode != types.ModeSleep {
		return 0, fmt.Errorf("%w: calculate_centrality requires SLEEP mode", types.ErrInvalidState)
	}

	records, err := c.loadActive()
	if err != nil {
		return 0, err
	}
	updated, err := c.graph.CalculateCentrality(records)
	if err != nil {
		return 0, err
	}
	c.stats.CentralityUpdates += updated
	return updated, nil
}

// ExtractPatterns clusters the active set and persists pattern assignments.
// A benign no-op outside SLEEP, mirroring Analyze.
func (c *Controller) ExtractPatterns() (int, error) {
	if c.mode != types.ModeSleep {
		return 0, nil
	}

	records, err := c.loadActive()
	if err != nil {
		return 0, err
	}

	patterns := c.patterns.Detect(records, time.Now().UTC())
	for _, p := range patterns {
		for _, rec := range p.Members {
			loc, err := c.log.Append(rec)
			if err != nil {
				return 0, err
			}
			if err := c.idx.Add(rec, loc); err != nil {
				return 0, err
			}
		}
	}

	c.stats.PatternsExtracted += len(patterns)
	logging.Info("consolidate", "%s extracted %d patterns from %d records", c.owner, len(patterns), len(records))
	return len(patterns), nil
}

// Complete finalizes the cycle, returns the stats snapshot, and resets the
// counters for the next wake cycle. Calling it while already WAKE is a
// no-op returning the current (reset) snapshot.
func (c *Controller) Complete() (Stats, error) {
	if c.mode == types.ModeWake {
		return c.stats, nil
	}

	c.stats.CycleDuration = time.Since(c.stats.SleepStart)
	snapshot := c.stats

	c.mode = types.ModeWake
	c.stats = Stats{WakeStart: time.Now().UTC()}
	c.touched = make(map[string]bool)

	logging.Info("consolidate", "%s cycle complete: %d processed, %d patterns, took %s",
		c.owner, snapshot.Processed, snapshot.PatternsExtracted, snapshot.CycleDuration.Round(time.Millisecond))
	return snapshot, nil
}

// loadActive loads the owner's unarchived records from the log, overlaying
// the index's mutated counters (importance, access, centrality) which are
// newer than the logged values. Records whose log line cannot be read are
// skipped with a warning; the batch continues.
func (c *Controller) loadActive() ([]*types.Record, error) {
	metas, err := c.idx.Query(index.QueryParams{OwnerID: c.owner})
	if err != nil {
		return nil, err
	}

	var records []*types.Record
	for _, m := range metas {
		rec, err := c.log.LoadAt(m.Loc)
		if err != nil {
			logging.Warn("consolidate", "load %s: %v", m.RecordID, err)
			continue
		}
		overlayMeta(rec, m)
		records = append(records, rec)
	}
	return records, nil
}

// overlayMeta copies index-authoritative counters onto a logged record.
func overlayMeta(rec *types.Record, m *index.Meta) {
	rec.Importance = m.Importance
	rec.AccessCount = m.AccessCount
	rec.Centrality = m.Centrality
	rec.LastAccessed = m.LastAccessed
	rec.Archived = m.Archived
}

func strengthTier(m *index.Meta) types.StrengthTier {
	rec := types.Record{
		Importance:      m.Importance,
		MarkedImportant: m.MarkedImportant,
		Centrality:      m.Centrality,
		AccessCount:     m.AccessCount,
	}
	return rec.StrengthTier()
}

// LoadActive loads the active set outside a controller. The archive path
// shares the same overlay rules.
func LoadActive(log *store.Log, idx *index.DB, ownerID string) ([]*types.Record, error) {
	c := &Controller{owner: ownerID, log: log, idx: idx}
	return c.loadActive()
}
