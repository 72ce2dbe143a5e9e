package memory

import (
	"fmt"
	"time"

	"github.com/ckoons/katra-sub002/internal/index"
	"github.com/ckoons/katra-sub002/internal/logging"
	"github.com/ckoons/katra-sub002/internal/types"
)

// QueryParams filters a memory query. Zero values mean "no filter".
type QueryParams struct {
	OwnerID         string
	Since           time.Time
	Until           time.Time
	Type            types.MemoryType
	MinImportance   float64
	Tier            types.Tier // 0 = any tier
	Limit           int
	IncludeArchived bool
}

// Query returns full records matching the predicate, most-important first,
// ties most-recent first. Every record returned has its last_accessed and
// access_count bumped: the query itself counts as an access, so callers
// computing recency metrics must discount a small grace window.
//
// Cross-owner requests consult the access gate and fail the whole call with
// a permission error rather than silently filtering.
func (s *Store) Query(requesterID string, p QueryParams) ([]*types.Record, error) {
	if requesterID == "" || p.OwnerID == "" {
		return nil, fmt.Errorf("%w: requester and owner required", types.ErrInvalidInput)
	}
	if requesterID != p.OwnerID && !s.gate.Allow(requesterID, p.OwnerID) {
		return nil, fmt.Errorf("%w: %s may not read memories of %s",
			types.ErrPermissionDenied, requesterID, p.OwnerID)
	}

	ip := index.QueryParams{
		OwnerID:         p.OwnerID,
		Since:           p.Since,
		Until:           p.Until,
		Type:            p.Type,
		MinImportance:   p.MinImportance,
		IncludeArchived: p.IncludeArchived,
	}
	// Tier lives only in the logged record, so the limit is applied after
	// load when a tier filter is present.
	if p.Tier == 0 {
		ip.Limit = p.Limit
	}

	metas, err := s.idx.Query(ip)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var records []*types.Record
	for _, m := range metas {
		rec, err := s.log.LoadAt(m.Loc)
		if err != nil {
			logging.Warn("memory", "load %s: %v", m.RecordID, err)
			continue
		}
		if p.Tier != 0 && rec.Tier != p.Tier {
			continue
		}

		// Index counters are newer than the logged values.
		rec.Importance = m.Importance
		rec.Centrality = m.Centrality
		rec.Archived = m.Archived

		if err := s.idx.BumpAccess(rec.RecordID, now); err != nil {
			logging.Warn("memory", "bump access %s: %v", rec.RecordID, err)
		}
		rec.AccessCount = m.AccessCount + 1
		rec.LastAccessed = now

		records = append(records, rec)
		if p.Limit > 0 && len(records) >= p.Limit {
			break
		}
	}
	return records, nil
}
