// Package store is the append-only record log, the durable source of truth.
// Records live under <dir>/<owner>/<YYYY-MM-DD>.jsonl, one JSON object per
// line. Earlier bytes are never rewritten; updates re-append the full record
// and the index tracks the newest location.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ckoons/katra-sub002/internal/logging"
	"github.com/ckoons/katra-sub002/internal/types"
)

// Location is a file+offset handle to one serialized record.
type Location struct {
	Path   string `json:"file_path"`
	Offset int64  `json:"file_offset"`
}

// Log is a per-process writer over the append-only record files.
type Log struct {
	dir string
	mu  sync.Mutex
}

// Open prepares a log rooted at dir, creating it if needed.
func Open(dir string) (*Log, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty store directory", types.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create store dir: %v", types.ErrStorage, err)
	}
	return &Log{dir: dir}, nil
}

// Dir returns the root directory of the log.
func (l *Log) Dir() string { return l.dir }

// dayFile maps a record to its per-day file, UTC calendar day.
func (l *Log) dayFile(rec *types.Record) string {
	day := rec.Timestamp.UTC().Format("2006-01-02")
	return filepath.Join(l.dir, rec.OwnerID, day+".jsonl")
}

// Append writes one record as a single JSON line and returns where it
// landed. The write is durable before the caller updates the index; the
// index is best-effort and rebuildable.
func (l *Log) Append(rec *types.Record) (Location, error) {
	if err := rec.Validate(); err != nil {
		return Location{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.dayFile(rec)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return Location{}, fmt.Errorf("%w: create owner dir: %v", types.ErrStorage, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return Location{}, fmt.Errorf("%w: open %s: %v", types.ErrStorage, path, err)
	}
	defer f.Close()

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return Location{}, fmt.Errorf("%w: seek %s: %v", types.ErrStorage, path, err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return Location{}, fmt.Errorf("%w: marshal record %s: %v", types.ErrInvalidInput, rec.RecordID, err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return Location{}, fmt.Errorf("%w: write %s: %v", types.ErrStorage, path, err)
	}

	logging.Debug("store", "appended %s at %s:%d", rec.RecordID, path, offset)
	return Location{Path: path, Offset: offset}, nil
}

// LoadAt reads and deserializes the single record at loc.
func (l *Log) LoadAt(loc Location) (*types.Record, error) {
	if loc.Path == "" {
		return nil, fmt.Errorf("%w: empty location", types.ErrInvalidInput)
	}

	f, err := os.Open(loc.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrNotFound, loc.Path)
		}
		return nil, fmt.Errorf("%w: open %s: %v", types.ErrStorage, loc.Path, err)
	}
	defer f.Close()

	if _, err := f.Seek(loc.Offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seek %s:%d: %v", types.ErrStorage, loc.Path, loc.Offset, err)
	}

	line, err := bufio.NewReader(f).ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: read %s:%d: %v", types.ErrStorage, loc.Path, loc.Offset, err)
	}
	if len(line) == 0 {
		return nil, fmt.Errorf("%w: no record at %s:%d", types.ErrNotFound, loc.Path, loc.Offset)
	}

	var rec types.Record
	if err := json.Unmarshal(line, &rec); err != nil {
		// Parse failure at a known offset means a corrupt line, not a
		// caller error. Rebuild paths skip it; direct loads surface it.
		return nil, fmt.Errorf("parse record at %s:%d: %w", loc.Path, loc.Offset, err)
	}
	return &rec, nil
}

// Scan replays every record for one owner in file order, oldest day first,
// calling fn with each record and its location. Malformed lines are skipped
// and counted, never fatal. Returns the number of skipped lines.
func (l *Log) Scan(ownerID string, fn func(rec *types.Record, loc Location) error) (int, error) {
	if ownerID == "" {
		return 0, fmt.Errorf("%w: empty owner id", types.ErrInvalidInput)
	}

	ownerDir := filepath.Join(l.dir, ownerID)
	entries, err := os.ReadDir(ownerDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: read %s: %v", types.ErrStorage, ownerDir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	skipped := 0
	for _, name := range files {
		path := filepath.Join(ownerDir, name)
		n, err := l.scanFile(path, fn)
		skipped += n
		if err != nil {
			return skipped, err
		}
	}
	return skipped, nil
}

func (l *Log) scanFile(path string, fn func(rec *types.Record, loc Location) error) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %v", types.ErrStorage, path, err)
	}
	defer f.Close()

	skipped := 0
	var offset int64
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			var rec types.Record
			if jerr := json.Unmarshal(line, &rec); jerr != nil {
				skipped++
				logging.Warn("store", "skipping malformed line at %s:%d", path, offset)
			} else if ferr := fn(&rec, Location{Path: path, Offset: offset}); ferr != nil {
				return skipped, ferr
			}
			offset += int64(len(line))
		}
		if err == io.EOF {
			return skipped, nil
		}
		if err != nil {
			return skipped, fmt.Errorf("%w: read %s: %v", types.ErrStorage, path, err)
		}
	}
}

// Owners lists every owner with at least one log file.
func (l *Log) Owners() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", types.ErrStorage, l.dir, err)
	}
	var owners []string
	for _, e := range entries {
		if e.IsDir() {
			owners = append(owners, e.Name())
		}
	}
	sort.Strings(owners)
	return owners, nil
}
