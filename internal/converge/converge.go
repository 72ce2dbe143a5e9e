// Package converge implements dual-pathway convergence detection: when a
// memory candidate is corroborated by both the explicit ("conscious") and
// inferred ("subconscious") formation pathways, the existing memory is
// strengthened instead of duplicated.
package converge

import (
	"fmt"
	"time"

	"github.com/ckoons/katra-sub002/internal/index"
	"github.com/ckoons/katra-sub002/internal/logging"
	"github.com/ckoons/katra-sub002/internal/store"
	"github.com/ckoons/katra-sub002/internal/types"
	"github.com/ckoons/katra-sub002/internal/vector"
)

// Oracle is the opaque semantic-similarity search the detector consults.
// vector.Index is the default implementation.
type Oracle interface {
	Search(ownerID, text string, limit int) ([]vector.Match, error)
	Register(rec *types.Record) error
}

// Config holds the detector thresholds and score weights.
//
// Note the ceiling: with the default weights the maximum combined score is
// (0.7 + 0.6) / 2 = 0.65, so a detector left at Threshold 0.7 never fires.
// Deployments that want automatic strengthening set Threshold at or below
// the ceiling.
type Config struct {
	Threshold       float64       `yaml:"threshold"`        // combined-score cutoff
	Boost           float64       `yaml:"boost"`            // importance delta on convergence
	ImportanceFloor float64       `yaml:"importance_floor"` // FTS search floor
	Window          time.Duration `yaml:"window"`           // FTS look-back, 0 = unlimited
	CentralityFloor float64       `yaml:"centrality_floor"` // graph-hub cutoff
	SemanticFloor   float64       `yaml:"semantic_floor"`   // oracle match cutoff
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		Threshold:       0.7,
		Boost:           0.2,
		ImportanceFloor: 0.5,
		Window:          24 * time.Hour,
		CentralityFloor: 0.4,
		SemanticFloor:   0.6,
	}
}

// Score weights per evidence signal.
const (
	weightFullText = 0.3
	weightMarked   = 0.4
	weightHub      = 0.3
	weightSemantic = 0.3
)

// Signal is the ephemeral result of convergence detection. It points at the
// record to strengthen; it is never persisted itself.
type Signal struct {
	RecordID             string    `json:"record_id"`
	ConsciousStrength    float64   `json:"conscious_strength"`
	SubconsciousStrength float64   `json:"subconscious_strength"`
	Score                float64   `json:"convergence_score"`
	ExplicitMarker       bool      `json:"explicit_marker"`
	GraphHub             bool      `json:"graph_hub"`
	SemanticMatch        bool      `json:"semantic_match"`
	FullTextMatch        bool      `json:"fts_match"`
	DetectedAt           time.Time `json:"detected_at"`
}

// Candidate is a potential automatic memory extracted from conversation.
type Candidate struct {
	Content    string
	Type       types.MemoryType
	Importance float64
	Reason     string
	Timestamp  time.Time

	DecisionMade    bool
	QuestionAsked   bool
	KnowledgeShared bool
}

// Detector scores candidates against one owner's memory.
type Detector struct {
	owner  string
	idx    *index.DB
	log    *store.Log
	oracle Oracle // nil disables the semantic pathway
	cfg    Config

	convergences int
}

// NewDetector builds a detector. oracle may be nil.
func NewDetector(ownerID string, idx *index.DB, log *store.Log, oracle Oracle, cfg Config) (*Detector, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: empty owner id", types.ErrInvalidInput)
	}
	if idx == nil || log == nil {
		return nil, fmt.Errorf("%w: detector needs an index and a log", types.ErrInvalidInput)
	}
	return &Detector{owner: ownerID, idx: idx, log: log, oracle: oracle, cfg: cfg}, nil
}

// Convergences returns how many convergences this detector has seen.
func (d *Detector) Convergences() int { return d.convergences }

// DetectConvergence looks for independent corroboration of the candidate.
// Returns ErrNotFound when no convergence is declared: that is the normal
// create-a-new-record branch, not a failure.
func (d *Detector) DetectConvergence(c *Candidate) (*Signal, error) {
	if c == nil || c.Content == "" {
		return nil, fmt.Errorf("%w: nil candidate", types.ErrInvalidInput)
	}

	var conscious, subconscious float64
	found := false
	sig := &Signal{DetectedAt: time.Now().UTC()}

	hits, err := d.idx.FindSimilar(d.owner, c.Content, d.cfg.ImportanceFloor, d.cfg.Window)
	if err != nil {
		return nil, err
	}
	if len(hits) > 0 {
		logging.Debug("converge", "fts found %d similar memories", len(hits))
		conscious += weightFullText
		found = true
		sig.FullTextMatch = true
		sig.RecordID = hits[0].RecordID // best hit: highest importance

		for _, h := range hits {
			if h.MarkedImportant {
				conscious += weightMarked
				sig.ExplicitMarker = true
				break
			}
		}
		for _, h := range hits {
			if h.Centrality >= d.cfg.CentralityFloor {
				subconscious += weightHub
				sig.GraphHub = true
				break
			}
		}
	}

	if d.oracle != nil {
		matches, err := d.oracle.Search(d.owner, c.Content, 10)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if m.Similarity >= d.cfg.SemanticFloor {
				subconscious += weightSemantic
				found = true
				sig.SemanticMatch = true
				if sig.RecordID == "" {
					sig.RecordID = m.RecordID
				}
				break
			}
		}
	}

	sig.ConsciousStrength = conscious
	sig.SubconsciousStrength = subconscious
	sig.Score = (conscious + subconscious) / 2.0

	if !found || sig.Score < d.cfg.Threshold {
		return nil, fmt.Errorf("%w: no convergence (score %.2f)", types.ErrNotFound, sig.Score)
	}

	d.convergences++
	logging.Info("converge", "convergence detected: score=%.2f (conscious=%.2f, subconscious=%.2f)",
		sig.Score, conscious, subconscious)
	return sig, nil
}

// StrengthenConverged boosts the matched record's importance instead of
// creating a duplicate, capped at 1.0, and persists via the index.
func (d *Detector) StrengthenConverged(sig *Signal) error {
	if sig == nil || sig.RecordID == "" {
		return fmt.Errorf("%w: nil signal", types.ErrInvalidInput)
	}

	meta, err := d.idx.Get(sig.RecordID)
	if err != nil {
		return err
	}

	importance := meta.Importance + d.cfg.Boost
	if importance > 1.0 {
		importance = 1.0
	}
	if err := d.idx.UpdateMetadata(sig.RecordID, importance, meta.AccessCount, meta.Centrality); err != nil {
		return err
	}

	logging.Info("converge", "strengthened %s: importance %.2f -> %.2f",
		sig.RecordID, meta.Importance, importance)
	return nil
}

// StoreAutomatic creates a record from a candidate via the normal capture
// path and registers it for future similarity search.
func (d *Detector) StoreAutomatic(c *Candidate) (*types.Record, error) {
	if c == nil || c.Content == "" {
		return nil, fmt.Errorf("%w: nil candidate", types.ErrInvalidInput)
	}

	memType := c.Type
	if memType == "" {
		memType = types.TypeExperience
	}
	rec := types.NewRecord(d.owner, c.Content, memType, c.Importance)
	rec.FormationPathway = types.PathwaySubconscious
	rec.FormationTrigger = c.Reason

	loc, err := d.log.Append(rec)
	if err != nil {
		return nil, err
	}
	if err := d.idx.Add(rec, loc); err != nil {
		return nil, err
	}
	if d.oracle != nil {
		if err := d.oracle.Register(rec); err != nil {
			logging.Warn("converge", "oracle register %s: %v", rec.RecordID, err)
		}
	}
	return rec, nil
}
