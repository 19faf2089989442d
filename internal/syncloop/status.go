package syncloop

import (
	"log/slog"
	"sync"
	"time"

	"github.com/openmined/foldersync/internal/mirror"
)

const maxConsecutiveFailures = 5

// PathStatus tracks a path that failed in one or more consecutive passes
type PathStatus struct {
	Op          mirror.Op
	Error       error
	ErrorCount  int
	FirstFailed time.Time
	LastFailed  time.Time
}

// Status remembers which paths keep failing across passes. It is purely
// informational: a failing path is retried on every pass no matter its count.
type Status struct {
	paths map[string]*PathStatus
	mu    sync.RWMutex

	passes     int
	failed     int
	lastReport *mirror.PassReport
}

func NewStatus() *Status {
	return &Status{
		paths: make(map[string]*PathStatus),
	}
}

// Update folds the outcome of a pass into the tracked state. Paths that did not
// fail in this pass are considered recovered and dropped.
func (s *Status) Update(rep *mirror.PassReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.passes++
	s.lastReport = rep
	if len(rep.Errors) > 0 {
		s.failed++
	}

	failing := make(map[string]struct{}, len(rep.Errors))
	for _, e := range rep.Errors {
		if _, seen := failing[e.Path]; seen {
			// count a path once per pass
			continue
		}
		failing[e.Path] = struct{}{}

		status, ok := s.paths[e.Path]
		if !ok {
			status = &PathStatus{FirstFailed: rep.Finished}
			s.paths[e.Path] = status
		}
		status.Op = e.Op
		status.Error = e.Err
		status.ErrorCount++
		status.LastFailed = rep.Finished

		if status.ErrorCount == maxConsecutiveFailures {
			slog.Warn("sync", "path", e.Path, "op", e.Op, "count", status.ErrorCount, "error", e.Err, "message", "path keeps failing, manual intervention may be needed")
		}
	}

	// a canceled pass says nothing about the paths it did not reach
	if rep.Canceled != nil {
		return
	}
	for path := range s.paths {
		if _, ok := failing[path]; !ok {
			slog.Debug("sync", "path", path, "message", "recovered")
			delete(s.paths, path)
		}
	}
}

// GetStatus returns a copy of the status of a failing path
func (s *Status) GetStatus(path string) (PathStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.paths[path]
	if !ok {
		return PathStatus{}, false
	}
	return *status, true
}

// GetErrorCount returns the number of consecutive failed passes for path
func (s *Status) GetErrorCount(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if status, ok := s.paths[path]; ok {
		return status.ErrorCount
	}
	return 0
}

// GetFailing returns a copy of all currently failing paths
func (s *Status) GetFailing() map[string]PathStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]PathStatus, len(s.paths))
	for path, status := range s.paths {
		out[path] = *status
	}
	return out
}

// Passes returns the number of passes run and how many of them had errors
func (s *Status) Passes() (total int, failed int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.passes, s.failed
}

// LastReport returns the report of the most recent pass, or nil
func (s *Status) LastReport() *mirror.PassReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}
