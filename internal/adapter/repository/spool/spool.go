// Package spool stores raw NDJSON event lines in size-bounded, rotating
// segment files. It is the on-disk working set of a batch: export downloads
// and Redis outages write into it, aggregation passes replay it, and a
// successful batch truncates it.
package spool

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	segmentPrefix = "segment-"
	segmentSuffix = ".ndjson"
	filePerm      = 0644
	// maxLineSize bounds a single event line during replay.
	maxLineSize = 16 << 20
)

// ErrSpoolFull is returned when a write would exceed the configured disk budget.
var ErrSpoolFull = errors.New("spool max total size exceeded")

// Spool is a file-backed, append-only store of raw event lines.
type Spool struct {
	dir            string
	maxSegmentSize int64
	maxTotalSize   int64
	logger         *slog.Logger

	mu             sync.Mutex
	currentSegment *os.File
	currentSize    int64
	totalSize      int64
}

// New opens (or creates) a spool in dir.
func New(dir string, maxSegmentSize, maxTotalSize int64, logger *slog.Logger) (*Spool, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory %s: %w", dir, err)
	}

	s := &Spool{
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
		maxTotalSize:   maxTotalSize,
		logger:         logger.With("component", "spool"),
	}

	total, err := s.calculateTotalSize()
	if err != nil {
		return nil, fmt.Errorf("failed to measure spool %s: %w", dir, err)
	}
	s.totalSize = total

	if err := s.openLatestSegment(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the spool directory.
func (s *Spool) Dir() string {
	return s.dir
}

// Write appends one line to the current segment. line must not contain a newline.
func (s *Spool) Write(ctx context.Context, line []byte) error {
	if bytes.IndexByte(line, '\n') >= 0 {
		return errors.New("spool lines must not contain newlines")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentSegment == nil {
		if err := s.rotate(); err != nil {
			return err
		}
	}

	size := int64(len(line)) + 1
	if s.totalSize+size > s.maxTotalSize {
		return fmt.Errorf("%w (%d > %d)", ErrSpoolFull, s.totalSize+size, s.maxTotalSize)
	}

	n, err := s.currentSegment.Write(append(line[:len(line):len(line)], '\n'))
	s.currentSize += int64(n)
	s.totalSize += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write to spool segment: %w", err)
	}

	if s.currentSize >= s.maxSegmentSize {
		if err := s.rotate(); err != nil {
			s.logger.Error("Failed to rotate spool segment", "error", err)
		}
	}
	return nil
}

// Replay calls handler for every line of every segment, oldest segment first.
// The slice passed to handler is only valid until handler returns.
func (s *Spool) Replay(ctx context.Context, handler func(line []byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.closeCurrent(); err != nil {
		s.logger.Error("Failed to close spool segment before replay", "error", err)
	}

	segments, err := s.getSortedSegments()
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		s.logger.Info("Spool is empty, nothing to replay")
		return nil
	}
	s.logger.Info("Starting spool replay", "segment_count", len(segments))

	for _, segmentPath := range segments {
		if err := replaySegment(ctx, segmentPath, handler); err != nil {
			return err
		}
	}

	s.logger.Info("Spool replay completed")
	return nil
}

func replaySegment(ctx context.Context, path string, handler func(line []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open segment %s for replay: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := handler(line); err != nil {
			return fmt.Errorf("replay handler failed: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error scanning segment %s: %w", path, err)
	}
	return nil
}

// Truncate removes all segments and starts a fresh, empty one.
func (s *Spool) Truncate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.closeCurrent(); err != nil {
		s.logger.Error("Failed to close spool segment before truncate", "error", err)
	}

	segments, err := s.getSortedSegments()
	if err != nil {
		return err
	}
	return s.removeSegments(segments)
}

// Drain replays every line like Replay and, if handler never fails, removes
// the replayed segments. Writers are held off until Drain returns, so a line
// written concurrently lands in a fresh segment and is never lost.
func (s *Spool) Drain(ctx context.Context, handler func(line []byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.closeCurrent(); err != nil {
		s.logger.Error("Failed to close spool segment before drain", "error", err)
	}

	segments, err := s.getSortedSegments()
	if err != nil {
		return err
	}
	for _, segmentPath := range segments {
		if err := replaySegment(ctx, segmentPath, handler); err != nil {
			return err
		}
	}
	return s.removeSegments(segments)
}

// Sync flushes the current segment to stable storage.
func (s *Spool) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentSegment == nil {
		return nil
	}
	if err := s.currentSegment.Sync(); err != nil {
		return fmt.Errorf("failed to sync spool segment: %w", err)
	}
	return nil
}

// removeSegments deletes segments and opens a new one. s.mu must be held and
// segments must be every segment on disk.
func (s *Spool) removeSegments(segments []string) error {
	var errs []error
	for _, segmentPath := range segments {
		if err := os.Remove(segmentPath); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to remove spool segments: %w", err)
	}

	s.totalSize = 0
	s.logger.Info("Spool truncated", "segments_removed", len(segments))
	return s.rotate()
}

// Size returns the number of bytes currently held on disk.
func (s *Spool) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalSize
}

func (s *Spool) closeCurrent() error {
	if s.currentSegment == nil {
		return nil
	}
	f := s.currentSegment
	s.currentSegment = nil
	s.currentSize = 0
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Spool) rotate() error {
	if err := s.closeCurrent(); err != nil {
		s.logger.Error("Failed to close spool segment before rotating", "error", err)
	}

	// Zero-padded so lexical order matches creation order.
	segmentName := fmt.Sprintf("%s%020d%s", segmentPrefix, time.Now().UnixNano(), segmentSuffix)
	path := filepath.Join(s.dir, segmentName)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create new spool segment %s: %w", path, err)
	}

	s.currentSegment = f
	s.currentSize = 0
	s.logger.Debug("Rotated to new spool segment", "path", path)
	return nil
}

func (s *Spool) openLatestSegment() error {
	segments, err := s.getSortedSegments()
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return s.rotate()
	}

	latestSegmentPath := segments[len(segments)-1]
	stat, err := os.Stat(latestSegmentPath)
	if err != nil {
		return fmt.Errorf("failed to stat latest segment %s: %w", latestSegmentPath, err)
	}
	if stat.Size() >= s.maxSegmentSize {
		return s.rotate()
	}

	f, err := os.OpenFile(latestSegmentPath, os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open latest segment %s: %w", latestSegmentPath, err)
	}

	s.currentSegment = f
	s.currentSize = stat.Size()
	s.logger.Info("Opened existing spool segment", "path", latestSegmentPath, "size", s.currentSize)
	return nil
}

func (s *Spool) getSortedSegments() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read spool directory: %w", err)
	}

	var segments []string
	for _, entry := range entries {
		if isSegment(entry) {
			segments = append(segments, filepath.Join(s.dir, entry.Name()))
		}
	}
	sort.Strings(segments)
	return segments, nil
}

func (s *Spool) calculateTotalSize() (int64, error) {
	var totalSize int64
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if !isSegment(entry) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return 0, err
		}
		totalSize += info.Size()
	}
	return totalSize, nil
}

func isSegment(entry os.DirEntry) bool {
	name := entry.Name()
	return !entry.IsDir() && strings.HasPrefix(name, segmentPrefix) && strings.HasSuffix(name, segmentSuffix)
}

// Close ensures the current segment is closed gracefully.
func (s *Spool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCurrent()
}
