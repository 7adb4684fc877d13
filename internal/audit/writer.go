package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tkingovr/spawnguard/api"
)

const defaultMaxMem = 10000

// JSONLStore is an append-only JSONL file audit store with date-based rotation.
type JSONLStore struct {
	mu          sync.Mutex
	dir         string
	currentDate string
	file        *os.File
	writer      *bufio.Writer

	// In-memory buffer for queries and stats (bounded)
	records []*api.AuditRecord
	maxMem  int
}

// NewJSONLStore creates a new JSONL audit store writing to the given directory.
func NewJSONLStore(dir string) (*JSONLStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	s := &JSONLStore{
		dir:    dir,
		maxMem: defaultMaxMem,
	}
	return s, nil
}

// OpenJSONLStore creates a store like NewJSONLStore and loads the most recent
// records already on disk, so history from earlier runs can be queried.
// Lines that do not parse are skipped.
func OpenJSONLStore(dir string) (*JSONLStore, error) {
	s, err := NewJSONLStore(dir)
	if err != nil {
		return nil, err
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	// Date-named files sort chronologically.
	sort.Strings(files)
	for _, path := range files {
		if err := s.replay(path); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *JSONLStore) replay(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening audit log file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		var record api.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		s.remember(&record)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}

func (s *JSONLStore) Write(_ context.Context, record *api.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Generate ID if empty
	if record.ID == "" {
		record.ID = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	// Rotate file if date changed
	dateStr := record.Timestamp.Format("2006-01-02")
	if dateStr != s.currentDate {
		if err := s.rotate(dateStr); err != nil {
			return err
		}
	}

	// Write JSONL line
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling audit record: %w", err)
	}
	if _, err := s.writer.Write(data); err != nil {
		return err
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return err
	}
	if err := s.writer.Flush(); err != nil {
		return err
	}

	s.remember(record)
	return nil
}

// remember keeps record in memory, dropping the oldest beyond maxMem.
func (s *JSONLStore) remember(record *api.AuditRecord) {
	if len(s.records) >= s.maxMem {
		s.records = s.records[1:]
	}
	s.records = append(s.records, record)
}

func (s *JSONLStore) Query(_ context.Context, filter api.QueryFilter) ([]*api.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []*api.AuditRecord
	for _, r := range s.records {
		if matchesFilter(r, filter) {
			results = append(results, r)
		}
	}

	// Apply offset and limit
	if filter.Offset > 0 {
		if filter.Offset >= len(results) {
			return nil, nil
		}
		results = results[filter.Offset:]
	}
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}

	return results, nil
}

func (s *JSONLStore) Stats(_ context.Context) (*api.AuditStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &api.AuditStats{
		ByCommand: make(map[string]int),
		ByRule:    make(map[string]int),
	}

	for _, r := range s.records {
		stats.TotalRecords++
		switch r.Event {
		case api.EventLaunch:
			stats.Launches++
			stats.ByCommand[filepath.Base(r.Command)]++
		case api.EventDeny:
			stats.Denials++
		case api.EventExit:
			stats.Exits++
			if r.Signal != "" || (r.ExitCode != nil && *r.ExitCode != 0) {
				stats.NonZeroExits++
			}
		case api.EventError:
			stats.Errors++
		}
		if r.Rule != "" && r.Event != api.EventExit {
			stats.ByRule[r.Rule]++
		}
	}

	return stats, nil
}

func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer != nil {
		if err := s.writer.Flush(); err != nil {
			return err
		}
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

func (s *JSONLStore) rotate(dateStr string) error {
	if s.writer != nil {
		if err := s.writer.Flush(); err != nil {
			return err
		}
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return err
		}
	}

	path := filepath.Join(s.dir, dateStr+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("opening audit log file: %w", err)
	}

	s.file = f
	s.writer = bufio.NewWriter(f)
	s.currentDate = dateStr
	return nil
}

func matchesFilter(r *api.AuditRecord, f api.QueryFilter) bool {
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.Timestamp.After(f.Until) {
		return false
	}
	if f.Event != "" && r.Event != f.Event {
		return false
	}
	if f.Command != "" && r.Command != f.Command && filepath.Base(r.Command) != f.Command {
		return false
	}
	if f.Verdict != "" && r.Verdict != f.Verdict {
		return false
	}
	return true
}
