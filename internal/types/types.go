// Package types defines the core memory record and the shared enums
// used across the store, index, and consolidation subsystems.
package types

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Tier is the storage stage of a record.
type Tier int

const (
	TierRaw     Tier = 1 // full-fidelity capture
	TierDigest  Tier = 2 // compressed digest (not yet implemented)
	TierPattern Tier = 3 // pattern summary (not yet implemented)
)

// MemoryType classifies what kind of thought a record holds.
type MemoryType string

const (
	TypeExperience MemoryType = "experience"
	TypeKnowledge  MemoryType = "knowledge"
	TypeReflection MemoryType = "reflection"
	TypePattern    MemoryType = "pattern"
	TypeGoal       MemoryType = "goal"
	TypeDecision   MemoryType = "decision"
)

// ValidTypes lists every accepted memory type.
var ValidTypes = map[MemoryType]bool{
	TypeExperience: true,
	TypeKnowledge:  true,
	TypeReflection: true,
	TypePattern:    true,
	TypeGoal:       true,
	TypeDecision:   true,
}

// Mode is the consolidation controller state.
type Mode string

const (
	ModeWake  Mode = "wake"
	ModeSleep Mode = "sleep"
)

// StrengthTier routes records during sleep consolidation.
type StrengthTier string

const (
	StrengthHigh   StrengthTier = "high"
	StrengthMedium StrengthTier = "medium"
	StrengthLow    StrengthTier = "low"
)

// Pathway records how a memory was formed.
type Pathway string

const (
	PathwayConscious    Pathway = "conscious"    // explicit request to remember
	PathwaySubconscious Pathway = "subconscious" // inferred from conversation
	PathwayConvergent   Pathway = "convergent"   // both pathways corroborated
)

// Record is the fundamental memory unit. The append log is the source of
// truth for all fields; the index mirrors the queryable subset.
type Record struct {
	RecordID  string     `json:"record_id"`
	OwnerID   string     `json:"owner_id"`
	Timestamp time.Time  `json:"timestamp"`
	Tier      Tier       `json:"tier"`
	Type      MemoryType `json:"memory_type"`

	Content        string `json:"content"`
	Response       string `json:"response,omitempty"`
	Context        string `json:"context,omitempty"`
	ImportanceNote string `json:"importance_note,omitempty"`

	Importance float64 `json:"importance"`

	LastAccessed     time.Time `json:"last_accessed,omitzero"`
	AccessCount      int       `json:"access_count,omitempty"`
	EmotionIntensity float64   `json:"emotion_intensity,omitempty"`
	EmotionType      string    `json:"emotion_type,omitempty"`

	// Consent flags. MarkedImportant wins over every archival policy.
	MarkedImportant   bool `json:"marked_important,omitempty"`
	MarkedForgettable bool `json:"marked_forgettable,omitempty"`
	Archived          bool `json:"archived,omitempty"`

	ConnectionCount int     `json:"connection_count,omitempty"`
	Centrality      float64 `json:"graph_centrality,omitempty"`

	PatternID         string  `json:"pattern_id,omitempty"`
	PatternFrequency  int     `json:"pattern_frequency,omitempty"`
	PatternOutlier    bool    `json:"is_pattern_outlier,omitempty"`
	PatternSimilarity float64 `json:"pattern_similarity,omitempty"`
	PatternSummary    string  `json:"pattern_summary,omitempty"`

	// Explicit causal/reference link, independent of graph edges.
	RelatedTo string `json:"related_to,omitempty"`

	FormationPathway Pathway `json:"formation_pathway,omitempty"`
	FormationTrigger string  `json:"formation_trigger,omitempty"`
}

// NewRecord builds a raw-tier record with a fresh id. The ULID carries the
// creation time plus random salt, so ids sort chronologically per owner.
func NewRecord(ownerID, content string, memType MemoryType, importance float64) *Record {
	now := time.Now().UTC()
	return &Record{
		RecordID:   ownerID + "_" + ulid.Make().String(),
		OwnerID:    ownerID,
		Timestamp:  now,
		Tier:       TierRaw,
		Type:       memType,
		Content:    content,
		Importance: importance,
	}
}

// Validate checks the fields every store path requires.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidInput)
	}
	if r.OwnerID == "" {
		return fmt.Errorf("%w: missing owner id", ErrInvalidInput)
	}
	if r.Content == "" {
		return fmt.Errorf("%w: missing content", ErrInvalidInput)
	}
	if !ValidTypes[r.Type] {
		return fmt.Errorf("%w: unknown memory type %q", ErrInvalidInput, r.Type)
	}
	if r.Importance < 0 || r.Importance > 1 {
		return fmt.Errorf("%w: importance %.2f out of range", ErrInvalidInput, r.Importance)
	}
	return nil
}

// Age returns how old the record is relative to now.
func (r *Record) Age(now time.Time) time.Duration {
	return now.Sub(r.Timestamp)
}

// Strength combines importance, consent markers, centrality, and access
// frequency into the 0-1 score used for sleep routing.
func (r *Record) Strength() float64 {
	s := r.Importance
	if r.MarkedImportant {
		s += 0.2
	}
	if r.Centrality >= 0.5 {
		s += 0.2
	}
	if r.AccessCount > 5 {
		s += 0.1
	}
	if s > 1.0 {
		s = 1.0
	}
	return s
}

// StrengthTier classifies Strength into the routing tiers.
func (r *Record) StrengthTier() StrengthTier {
	switch s := r.Strength(); {
	case s >= 0.8:
		return StrengthHigh
	case s >= 0.4:
		return StrengthMedium
	default:
		return StrengthLow
	}
}
