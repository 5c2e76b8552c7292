package analysis

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Scanner enumerates eligible input files in the configured directory,
// applying the extension filter and ignore patterns. Enumeration order is
// filesystem-dependent and deliberately not part of the contract; completion
// order drives result assembly, and the returned slice is sorted only so the
// progress total and skip decisions are stable between runs.
type Scanner struct {
	opts   *Options
	hooks  Hooks
	logger *slog.Logger
}

// NewScanner creates a Scanner for the engine's input directory.
func NewScanner(opts *Options, loggerHandler slog.Handler) *Scanner {
	logger := slog.New(loggerHandler).With(slog.String("component", "scanner"))
	return &Scanner{opts: opts, hooks: opts.EventHooks, logger: logger}
}

// Scan returns the eligible work items under the input path. Non-recursive
// by default; Options.Recursive extends enumeration into subdirectories.
// Inaccessible entries below the root are logged and skipped; an unreadable
// root is fatal.
func (s *Scanner) Scan(ctx context.Context) ([]WorkItem, error) {
	root, err := filepath.Abs(s.opts.InputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %q: %w", ErrScanFailed, s.opts.InputPath, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanFailed, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %q is not a directory", ErrScanFailed, root)
	}

	ext := s.opts.Extension
	if ext == "" {
		ext = DefaultExtension
	}

	var items []WorkItem
	collect := func(absPath string) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		rel, err := filepath.Rel(root, absPath)
		if err != nil {
			s.logger.Warn("Could not compute relative path", slog.String("path", absPath), slog.String("error", err.Error()))
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !strings.EqualFold(filepath.Ext(absPath), ext) {
			return nil
		}
		if s.ignored(rel) {
			s.logger.Debug("Path ignored", slog.String("path", rel))
			return nil
		}
		if hookErr := s.hooks.OnFileDiscovered(rel); hookErr != nil {
			s.logger.Warn("Event hook OnFileDiscovered failed", slog.String("path", rel), slog.String("error", hookErr.Error()))
		}
		items = append(items, WorkItem{Path: absPath, ID: rel})
		return nil
	}

	if s.opts.Recursive {
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root {
					return fmt.Errorf("%w: %w", ErrScanFailed, err)
				}
				s.logger.Warn("Error accessing path during scan", slog.String("path", path), slog.String("error", err.Error()))
				return nil
			}
			if d.IsDir() || d.Type()&fs.ModeSymlink != 0 {
				return nil
			}
			return collect(path)
		})
		if walkErr != nil {
			return nil, walkErr
		}
	} else {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanFailed, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || entry.Type()&fs.ModeSymlink != 0 {
				continue
			}
			if err := collect(filepath.Join(root, entry.Name())); err != nil {
				return nil, err
			}
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	s.logger.Info("Scan completed",
		slog.String("path", root),
		slog.Int("eligible", len(items)),
		slog.String("extension", ext),
	)
	return items, nil
}

// ignored reports whether the relative path matches any ignore pattern.
// Patterns are matched against both the full relative path and the base
// name, so "take_*.wav" and "raw/*" both behave as expected.
func (s *Scanner) ignored(rel string) bool {
	base := filepath.Base(rel)
	for _, pattern := range s.opts.IgnorePatterns {
		if ok, err := filepath.Match(pattern, rel); err == nil && ok {
			return true
		}
		if ok, err := filepath.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}
