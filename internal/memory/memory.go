// Package memory is the facade over the record store, index, graph,
// pattern, and convergence subsystems: the API the CLI, MCP server, and
// embedding callers use.
package memory

import (
	"fmt"
	"path/filepath"

	"github.com/ckoons/katra-sub002/internal/config"
	"github.com/ckoons/katra-sub002/internal/consolidate"
	"github.com/ckoons/katra-sub002/internal/converge"
	"github.com/ckoons/katra-sub002/internal/index"
	"github.com/ckoons/katra-sub002/internal/logging"
	"github.com/ckoons/katra-sub002/internal/store"
	"github.com/ckoons/katra-sub002/internal/types"
	"github.com/ckoons/katra-sub002/internal/vector"
)

// AccessGate decides whether a requester may read another owner's
// memories. The consent system implements this; the default gate allows
// same-owner access only.
type AccessGate interface {
	Allow(requesterID, ownerID string) bool
}

type sameOwnerGate struct{}

func (sameOwnerGate) Allow(requesterID, ownerID string) bool {
	return requesterID == ownerID
}

// Store bundles the subsystems for one data directory.
type Store struct {
	cfg    config.Config
	log    *store.Log
	idx    *index.DB
	oracle *vector.Index
	gate   AccessGate

	detectors map[string]*converge.Detector
}

// Open prepares a memory store rooted at cfg.DataDir: the append log under
// log/, the index database beside it.
func Open(cfg config.Config) (*Store, error) {
	log, err := store.Open(filepath.Join(cfg.DataDir, "log"))
	if err != nil {
		return nil, err
	}
	idx, err := index.Open(filepath.Join(cfg.DataDir, "index.db"))
	if err != nil {
		return nil, err
	}
	return &Store{
		cfg:       cfg,
		log:       log,
		idx:       idx,
		oracle:    vector.NewIndex(),
		gate:      sameOwnerGate{},
		detectors: make(map[string]*converge.Detector),
	}, nil
}

// Close releases the index database.
func (s *Store) Close() error {
	return s.idx.Close()
}

// SetAccessGate replaces the default same-owner gate.
func (s *Store) SetAccessGate(gate AccessGate) {
	if gate != nil {
		s.gate = gate
	}
}

// Log exposes the append log for rebuild tooling.
func (s *Store) Log() *store.Log { return s.log }

// Index exposes the secondary index for subsystem callers.
func (s *Store) Index() *index.DB { return s.idx }

// CreateRecord builds an unsaved raw-tier record.
func (s *Store) CreateRecord(ownerID, content string, memType types.MemoryType, importance float64) (*types.Record, error) {
	rec := types.NewRecord(ownerID, content, memType, importance)
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// CreateRecordWithFormation builds an unsaved record carrying its
// formation context.
func (s *Store) CreateRecordWithFormation(ownerID, content string, memType types.MemoryType,
	importance float64, pathway types.Pathway, trigger string) (*types.Record, error) {
	rec, err := s.CreateRecord(ownerID, content, memType, importance)
	if err != nil {
		return nil, err
	}
	rec.FormationPathway = pathway
	rec.FormationTrigger = trigger
	return rec, nil
}

// Put appends the record, indexes it, and registers it with the similarity
// oracle. Tier 2/3 store paths are not implemented. Returns the record id.
func (s *Store) Put(rec *types.Record) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	if rec.Tier != types.TierRaw {
		return "", fmt.Errorf("%w: tier %d store path", types.ErrNotImplemented, rec.Tier)
	}

	loc, err := s.log.Append(rec)
	if err != nil {
		return "", err
	}
	if err := s.idx.Add(rec, loc); err != nil {
		return "", err
	}
	if err := s.oracle.Register(rec); err != nil {
		logging.Warn("memory", "oracle register %s: %v", rec.RecordID, err)
	}
	return rec.RecordID, nil
}

// Detector returns the convergence detector for an owner, creating it with
// the configured thresholds on first use.
func (s *Store) Detector(ownerID string) (*converge.Detector, error) {
	if det, ok := s.detectors[ownerID]; ok {
		return det, nil
	}
	det, err := converge.NewDetector(ownerID, s.idx, s.log, s.oracle, s.cfg.ConvergeConfig())
	if err != nil {
		return nil, err
	}
	s.detectors[ownerID] = det
	return det, nil
}

// Controller builds a fresh consolidation controller for an owner.
func (s *Store) Controller(ownerID string) (*consolidate.Controller, error) {
	det, err := s.Detector(ownerID)
	if err != nil {
		return nil, err
	}
	return consolidate.New(ownerID, s.log, s.idx, det)
}

// WarmOracle registers every active record for an owner with the
// similarity oracle. Call once after Open when convergence matters.
func (s *Store) WarmOracle(ownerID string) (int, error) {
	records, err := consolidate.LoadActive(s.log, s.idx, ownerID)
	if err != nil {
		return 0, err
	}
	for _, rec := range records {
		if err := s.oracle.Register(rec); err != nil {
			logging.Warn("memory", "oracle register %s: %v", rec.RecordID, err)
		}
	}
	return len(records), nil
}

// Stats summarizes an owner's index contents.
func (s *Store) Stats(ownerID string) (*index.Stats, error) {
	return s.idx.OwnerStats(ownerID)
}

// Rebuild reconstructs the owner's index rows from the append log.
func (s *Store) Rebuild(ownerID string) (int, error) {
	return s.idx.Rebuild(s.log, ownerID)
}

// archiveRecord re-appends the record with archived=true and replaces its
// index row; the log keeps the earlier bytes for audit.
func (s *Store) archiveRecord(rec *types.Record) error {
	rec.Archived = true
	loc, err := s.log.Append(rec)
	if err != nil {
		return err
	}
	if err := s.idx.Add(rec, loc); err != nil {
		return err
	}
	s.oracle.Remove(rec.RecordID)
	return nil
}

// persistActive re-appends a still-active record whose metadata changed
// (pattern marks) and refreshes its index row.
func (s *Store) persistActive(rec *types.Record) error {
	loc, err := s.log.Append(rec)
	if err != nil {
		return err
	}
	return s.idx.Add(rec, loc)
}
