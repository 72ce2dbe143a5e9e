// Package graph approximates semantic relatedness between records with
// shared-keyword edges and derives a normalized centrality score, the
// "hub memory" signal used by convergence and strength routing.
package graph

import (
	"fmt"

	"github.com/ckoons/katra-sub002/internal/index"
	"github.com/ckoons/katra-sub002/internal/keywords"
	"github.com/ckoons/katra-sub002/internal/logging"
	"github.com/ckoons/katra-sub002/internal/types"
)

const (
	// DefaultMinShared is the shared-keyword count that forms an edge.
	DefaultMinShared = 2
	// DefaultMaxConnections caps per-record edge counts on large corpora.
	DefaultMaxConnections = 20
	// DefaultNormalizationFloor keeps sparse graphs from producing
	// spuriously high centrality.
	DefaultNormalizationFloor = 5

	relationshipKeyword = "keyword_overlap"
)

// Builder computes connections and centrality over a bounded candidate set.
// The pass is O(n^2); callers bound candidates to active, unarchived
// records rather than the whole history.
type Builder struct {
	idx *index.DB

	MinShared          int
	MaxConnections     int
	NormalizationFloor int
}

// New returns a Builder with the default thresholds. idx may be nil for a
// compute-only pass (nothing persisted).
func New(idx *index.DB) *Builder {
	return &Builder{
		idx:                idx,
		MinShared:          DefaultMinShared,
		MaxConnections:     DefaultMaxConnections,
		NormalizationFloor: DefaultNormalizationFloor,
	}
}

// connected reports whether two records share an edge: an explicit
// related_to link in either direction, or enough shared keywords.
func (b *Builder) connected(a, rb *types.Record, kwA, kwB []string) bool {
	if a.RelatedTo != "" && a.RelatedTo == rb.RecordID {
		return true
	}
	if rb.RelatedTo != "" && rb.RelatedTo == a.RecordID {
		return true
	}
	return keywords.Shared(kwA, kwB) >= b.MinShared
}

// BuildConnectionsForRecord counts and caches the edges between rec and the
// candidate set, excluding self. Sets rec.ConnectionCount and returns it.
func (b *Builder) BuildConnectionsForRecord(rec *types.Record, candidates []*types.Record) (int, error) {
	if rec == nil {
		return 0, fmt.Errorf("%w: nil record", types.ErrInvalidInput)
	}

	kwRec := keywords.Extract(rec.Content)
	var linked []string
	for _, cand := range candidates {
		if cand.RecordID == rec.RecordID {
			continue
		}
		if b.connected(rec, cand, kwRec, keywords.Extract(cand.Content)) {
			linked = append(linked, cand.RecordID)
			if len(linked) >= b.MaxConnections {
				break
			}
		}
	}

	rec.ConnectionCount = len(linked)
	if b.idx != nil {
		if err := b.idx.ReplaceConnections(rec.RecordID, linked, relationshipKeyword, 1.0); err != nil {
			return 0, err
		}
	}
	return len(linked), nil
}

// CalculateCentrality runs the full pass: builds edges for every record,
// then normalizes each connection count against the densest record, with a
// floor so sparse graphs stay modest. Scores land on the records and, when
// an index is attached, in the memories table. Returns how many records
// were updated. A record whose edges cannot be persisted is logged and
// skipped; the pass itself still succeeds.
func (b *Builder) CalculateCentrality(records []*types.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	kws := make([][]string, len(records))
	for i, rec := range records {
		kws[i] = keywords.Extract(rec.Content)
	}

	counts := make([]int, len(records))
	edges := make([][]string, len(records))
	for i, a := range records {
		for j, rb := range records {
			if i == j || counts[i] >= b.MaxConnections {
				continue
			}
			if b.connected(a, rb, kws[i], kws[j]) {
				counts[i]++
				edges[i] = append(edges[i], rb.RecordID)
			}
		}
	}

	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	norm := maxCount
	if norm < b.NormalizationFloor {
		norm = b.NormalizationFloor
	}

	updated := 0
	for i, rec := range records {
		rec.ConnectionCount = counts[i]
		centrality := float64(counts[i]) / float64(norm)
		if centrality > 1.0 {
			centrality = 1.0
		}
		rec.Centrality = centrality

		if b.idx != nil {
			if err := b.idx.ReplaceConnections(rec.RecordID, edges[i], relationshipKeyword, 1.0); err != nil {
				logging.Warn("graph", "persist edges for %s: %v", rec.RecordID, err)
				continue
			}
			if err := b.idx.UpdateMetadata(rec.RecordID, rec.Importance, rec.AccessCount, centrality); err != nil {
				logging.Warn("graph", "persist centrality for %s: %v", rec.RecordID, err)
				continue
			}
		}
		updated++
	}

	logging.Debug("graph", "centrality pass: %d records, max connections %d", updated, maxCount)
	return updated, nil
}
