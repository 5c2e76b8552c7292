// Package state persists the set of completed work items so an interrupted
// batch can be resumed without redoing finished files. The store is
// append-only during a run: only successful completions are recorded, so
// failed files are retried on the next invocation.
package state

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// StateFileName is the default name for the state file, created alongside
// the output destination unless overridden.
const StateFileName = ".soundsift.state"

// StateSchemaVersion is the on-disk layout version. Load rejects files with
// a different schema version rather than guessing at their meaning.
const StateSchemaVersion = "1.0"

const (
	// DefaultFormat specifies the default serialization format.
	DefaultFormat = FormatGob
	// FormatGob selects encoding/gob serialization.
	FormatGob = "gob"
	// FormatJSON selects JSON serialization.
	FormatJSON = "json"
)

var (
	// ErrStateLoad indicates the state file could not be read or decoded.
	// Unlike a soft cache, resumability cannot be safely determined from a
	// corrupt store, so this error is fatal to the run.
	ErrStateLoad = errors.New("failed to load processing state")

	// ErrStatePersist indicates the state file could not be written.
	ErrStatePersist = errors.New("failed to persist processing state")
)

// Entry records one completed file.
type Entry struct {
	CompletedAt   time.Time `json:"completedAt"`
	SchemaVersion string    `json:"schemaVersion"`
	AppVersion    string    `json:"appVersion"`
}

// fileHeader is written at the start of the state file and validated on Load.
type fileHeader struct {
	SchemaVersion string `json:"schemaVersion"`
	AppVersion    string `json:"appVersion"`
}

// jsonStateFile is the combined layout used by the JSON format.
type jsonStateFile struct {
	Header fileHeader       `json:"header"`
	Index  map[string]Entry `json:"index"`
}

// FileStateStore implements analysis.StateStore backed by a local file. The
// in-memory index is guarded by a RWMutex; persistence uses an atomic
// temp-file-then-rename write so an interrupted process never leaves a
// half-written state file.
type FileStateStore struct {
	mu         sync.RWMutex
	index      map[string]Entry
	logger     *slog.Logger
	schema     string
	appVersion string
	format     string
}

// NewFileStateStore creates a file-backed store. format selects "gob" or
// "json" ("gob" if empty or unrecognized). appVersion is recorded in new
// entries for diagnostics; it does not invalidate existing entries, since a
// completed file stays completed across tool upgrades.
func NewFileStateStore(loggerHandler slog.Handler, appVersion, format string) *FileStateStore {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	f := strings.ToLower(format)
	if f != FormatJSON && f != FormatGob {
		f = DefaultFormat
	}
	logger := slog.New(loggerHandler).With(
		slog.String("component", "stateStore"),
		slog.String("format", f),
	)
	if appVersion == "" {
		appVersion = "dev"
	}
	return &FileStateStore{
		index:      make(map[string]Entry),
		logger:     logger,
		schema:     StateSchemaVersion,
		appVersion: appVersion,
		format:     f,
	}
}

// Load reads the state file at path. A missing file yields an empty store.
// A corrupt or unreadable file returns an error wrapping ErrStateLoad.
func (s *FileStateStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index = make(map[string]Entry)

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info("State file not found, starting with empty state.", "path", path)
			return nil
		}
		return fmt.Errorf("%w: open %q: %w", ErrStateLoad, path, err)
	}
	defer file.Close()

	var header fileHeader
	var loaded map[string]Entry

	if s.format == FormatJSON {
		var data jsonStateFile
		if err := json.NewDecoder(file).Decode(&data); err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("State file is empty, starting with empty state.", "path", path)
				return nil
			}
			return fmt.Errorf("%w: decode %q: %w", ErrStateLoad, path, err)
		}
		header = data.Header
		loaded = data.Index
	} else {
		dec := gob.NewDecoder(file)
		if err := dec.Decode(&header); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				s.logger.Info("State file is empty, starting with empty state.", "path", path)
				return nil
			}
			return fmt.Errorf("%w: decode header of %q: %w", ErrStateLoad, path, err)
		}
		if err := dec.Decode(&loaded); err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("State file holds a header but no entries.", "path", path)
				return nil
			}
			return fmt.Errorf("%w: decode index of %q: %w", ErrStateLoad, path, err)
		}
	}

	if header.SchemaVersion != s.schema {
		return fmt.Errorf("%w: %q has schema version %q, expected %q",
			ErrStateLoad, path, header.SchemaVersion, s.schema)
	}

	if loaded == nil {
		loaded = make(map[string]Entry)
	}
	s.index = loaded
	s.logger.Info("Processing state loaded.", "path", path, "entries", len(s.index))
	return nil
}

// IsComplete reports whether the given file identifier has been recorded as
// successfully processed. Safe for concurrent reads.
func (s *FileStateStore) IsComplete(id string) bool {
	s.mu.RLock()
	_, ok := s.index[id]
	s.mu.RUnlock()
	return ok
}

// MarkComplete records the file identifier as successfully processed.
// Thread-safe; the engine serializes calls through its completion path, but
// the store does not rely on that.
func (s *FileStateStore) MarkComplete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[id] = Entry{
		CompletedAt:   time.Now().UTC(),
		SchemaVersion: s.schema,
		AppVersion:    s.appVersion,
	}
	s.logger.Debug("Marked complete", slog.String("id", id))
	return nil
}

// Len returns the number of completed entries.
func (s *FileStateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Persist writes the current index to path atomically. Failures wrap
// ErrStatePersist and are treated as fatal by the engine.
func (s *FileStateStore) Persist(path string) error {
	s.mu.RLock()
	indexCopy := make(map[string]Entry, len(s.index))
	for k, v := range s.index {
		indexCopy[k] = v
	}
	s.mu.RUnlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: ensure directory %q: %w", ErrStatePersist, dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file in %q: %w", ErrStatePersist, dir, err)
	}
	tmpPath := tmp.Name()
	closed := false
	defer func() {
		if !closed {
			_ = tmp.Close()
		}
		if _, statErr := os.Stat(tmpPath); statErr == nil {
			_ = os.Remove(tmpPath)
		}
	}()

	header := fileHeader{SchemaVersion: s.schema, AppVersion: s.appVersion}
	var encodeErr error
	if s.format == FormatJSON {
		enc := json.NewEncoder(tmp)
		enc.SetIndent("", "  ")
		encodeErr = enc.Encode(jsonStateFile{Header: header, Index: indexCopy})
	} else {
		enc := gob.NewEncoder(tmp)
		if err := enc.Encode(header); err != nil {
			encodeErr = fmt.Errorf("encode header: %w", err)
		} else {
			encodeErr = enc.Encode(indexCopy)
		}
	}
	if encodeErr != nil {
		return fmt.Errorf("%w: encode (%s) to %q: %w", ErrStatePersist, s.format, tmpPath, encodeErr)
	}

	if err := tmp.Close(); err != nil {
		closed = true
		return fmt.Errorf("%w: close %q: %w", ErrStatePersist, tmpPath, err)
	}
	closed = true

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: rename %q to %q: %w", ErrStatePersist, tmpPath, path, err)
	}

	s.logger.Debug("Processing state persisted.", "path", path, "entries", len(indexCopy))
	return nil
}
