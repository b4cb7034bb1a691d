package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/asmodhias/capproxy/config"
	"github.com/asmodhias/capproxy/log"
)

const (
	indexFileName = "captures.json"
	partialSuffix = ".partial"
)

// Store owns the capture output directory: it hands out recorders for live
// sessions, turns finished recordings into artifacts and keeps the index.
type Store struct {
	mu        sync.RWMutex
	opts      Options
	records   map[string]*Record
	indexFile string
}

func OptionsFromConfig(c config.CaptureConfig) Options {
	return Options{
		OutputDir: c.OutputDir,
		Prefix:    c.Prefix,
		Extension: c.Extension,
		Naming:    c.Naming,
		Index:     c.Index,
	}
}

func NewStore(opts Options) (*Store, error) {
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("capture output directory is not set")
	}
	if opts.Naming == "" {
		opts.Naming = config.NamingUnique
	}
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}

	s := &Store{
		opts:      opts,
		records:   make(map[string]*Record),
		indexFile: filepath.Join(opts.OutputDir, indexFileName),
	}

	s.sweepPartials()
	if opts.Index {
		s.loadIndex()
	}
	return s, nil
}

func (s *Store) OutputPath() string {
	return s.opts.OutputDir
}

// ArtifactName returns the file name a session finishing at `at` gets.
func (s *Store) ArtifactName(id string, at time.Time) string {
	if s.opts.Naming == config.NamingTimestamp {
		return fmt.Sprintf("%s%d%s", s.opts.Prefix, at.Unix(), s.opts.Extension)
	}
	return fmt.Sprintf("%s%d_%s%s", s.opts.Prefix, at.Unix(), shortID(id), s.opts.Extension)
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Begin opens a partial file for the session. Bytes written to the returned
// recorder go straight to disk.
func (s *Store) Begin(info SessionInfo) (*Recorder, error) {
	if info.ID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	partial := filepath.Join(s.opts.OutputDir, "."+info.ID+partialSuffix)
	f, err := os.OpenFile(partial, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	return newRecorder(s, info, f, partial), nil
}

// finalize moves a closed partial file to its artifact name and records it.
// Rename and index update happen under one lock so same-second sessions in
// timestamp mode cannot leave the index pointing at the wrong session.
func (s *Store) finalize(partial string, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	final := filepath.Join(s.opts.OutputDir, rec.File)
	if err := os.Rename(partial, final); err != nil {
		return fmt.Errorf("failed to finalize capture %s: %w", rec.File, err)
	}

	for id, existing := range s.records {
		if existing.File == rec.File && id != rec.ID {
			log.Warnf("Capture %s from session %s replaced by session %s", rec.File, id, rec.ID)
			delete(s.records, id)
		}
	}
	s.records[rec.ID] = rec

	if err := s.saveIndexLocked(); err != nil {
		log.Errorf("Failed to save capture index: %v", err)
	}
	return nil
}

// List returns all recorded captures, newest first.
func (s *Store) List() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		cp := *r
		records = append(records, &cp)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].FinishedAt.Equal(records[j].FinishedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].FinishedAt.After(records[j].FinishedAt)
	})
	return records
}

func (s *Store) Get(id string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// Path returns the absolute artifact path of a recorded capture.
func (s *Store) Path(id string) (string, error) {
	r, ok := s.Get(id)
	if !ok {
		return "", ErrNotFound
	}
	return s.RecordPath(r), nil
}

// Open returns the artifact of a recorded capture together with its record.
// Lookup and open happen under the store lock, so the file always belongs to
// the returned record even if a later session replaces it by name.
func (s *Store) Open(id string) (*os.File, *Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	f, err := os.Open(s.RecordPath(r))
	if err != nil {
		return nil, nil, err
	}
	cp := *r
	return f, &cp, nil
}

// RecordPath returns where r's artifact lives in the output directory.
func (s *Store) RecordPath(r *Record) string {
	return filepath.Join(s.opts.OutputDir, r.File)
}

// validArtifactName reports whether name is a plain file inside the output
// directory that is not one of the store's own files.
func validArtifactName(name string) bool {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return false
	}
	return name != indexFileName && !strings.HasSuffix(name, partialSuffix)
}

// Delete removes a capture and its index entry.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}

	if err := os.Remove(s.RecordPath(r)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", r.File, err)
	}
	delete(s.records, id)

	if err := s.saveIndexLocked(); err != nil {
		log.Errorf("Failed to save capture index: %v", err)
	}

	log.Infof("Deleted capture %s (%s)", id, r.File)
	return nil
}

// ClearAll removes every indexed capture.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		path := s.RecordPath(r)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Errorf("Failed to remove %s: %v", path, err)
		}
	}
	s.records = make(map[string]*Record)

	if err := s.saveIndexLocked(); err != nil {
		return err
	}

	log.Infof("Cleared all captures")
	return nil
}

func (s *Store) loadIndex() {
	data, err := os.ReadFile(s.indexFile)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Errorf("Failed to read capture index: %v", err)
		}
		return
	}

	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		log.Errorf("Failed to parse capture index: %v", err)
		return
	}

	for _, r := range records {
		if r == nil || r.ID == "" {
			continue
		}
		if !validArtifactName(r.File) {
			log.Errorf("Dropping index entry %s: invalid artifact name %q", r.ID, r.File)
			continue
		}
		if _, err := os.Stat(s.RecordPath(r)); err != nil {
			log.Tracef("Dropping index entry %s: %v", r.ID, err)
			continue
		}
		s.records[r.ID] = r
	}
	log.Tracef("Loaded %d capture records from %s", len(s.records), s.indexFile)
}

func (s *Store) saveIndexLocked() error {
	if !s.opts.Index {
		return nil
	}

	records := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].FinishedAt.Before(records[j].FinishedAt)
	})

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.indexFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write capture index: %w", err)
	}
	return os.Rename(tmp, s.indexFile)
}

// sweepPartials removes partial files left behind by a previous run that
// died mid-session.
func (s *Store) sweepPartials() {
	matches, err := filepath.Glob(filepath.Join(s.opts.OutputDir, ".*"+partialSuffix))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			log.Tracef("Removed stale partial capture %s", m)
		}
	}
}
