package mocks

import (
	"context"
	"sync"

	"github.com/V4T54L/activetime/internal/domain"
)

// MockEventSource is a mock implementation of domain.EventSource and domain.Committer.
type MockEventSource struct {
	mu        sync.Mutex
	Lines     [][]byte
	ReplayErr error
	CommitErr error
	Commits   int
	// BeforeLine, when set, runs before each line is handed to the handler.
	BeforeLine func(i int)
}

func (m *MockEventSource) Replay(ctx context.Context, handler func(line []byte) error) error {
	for i, line := range m.Lines {
		if m.BeforeLine != nil {
			m.BeforeLine(i)
		}
		if err := handler(line); err != nil {
			return err
		}
	}
	return m.ReplayErr
}

func (m *MockEventSource) Commit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CommitErr != nil {
		return m.CommitErr
	}
	m.Commits++
	return nil
}

// MockDurationSink is a mock implementation of domain.DurationSink.
type MockDurationSink struct {
	mu       sync.Mutex
	Writes   [][]domain.DayDuration
	RunIDs   []string
	WriteErr error
}

func (m *MockDurationSink) WriteDurations(ctx context.Context, runID string, rows []domain.DayDuration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Writes = append(m.Writes, append([]domain.DayDuration(nil), rows...))
	m.RunIDs = append(m.RunIDs, runID)
	return nil
}

// MockSubjectRepository is a mock implementation of domain.SubjectRepository.
type MockSubjectRepository struct {
	Subjects domain.SubjectSet
	LoadErr  error
}

func (m *MockSubjectRepository) LoadSubjects(ctx context.Context) (domain.SubjectSet, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return m.Subjects, nil
}

// MockEventLog is a mock implementation of domain.EventLog.
type MockEventLog struct {
	mu       sync.Mutex
	Lines    [][]byte
	Syncs    int
	WriteErr error
	SyncErr  error
}

func (m *MockEventLog) Write(ctx context.Context, line []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Lines = append(m.Lines, append([]byte(nil), line...))
	return nil
}

func (m *MockEventLog) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SyncErr != nil {
		return m.SyncErr
	}
	m.Syncs++
	return nil
}

// MockEventBuffer is a mock implementation of domain.EventBuffer.
type MockEventBuffer struct {
	mu        sync.Mutex
	Buffered  [][]byte
	BufferErr error
}

func (m *MockEventBuffer) BufferEvent(ctx context.Context, line []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BufferErr != nil {
		return m.BufferErr
	}
	m.Buffered = append(m.Buffered, append([]byte(nil), line...))
	return nil
}

// MockStreamInspector is a mock implementation of domain.StreamInspector.
type MockStreamInspector struct {
	Status domain.StreamStatus
	Err    error
}

func (m *MockStreamInspector) StreamStatus(ctx context.Context) (domain.StreamStatus, error) {
	return m.Status, m.Err
}

// MockAPIKeyRepository is a mock implementation of domain.APIKeyRepository.
type MockAPIKeyRepository struct {
	ValidKeys map[string]bool
	Err       error
}

func (m *MockAPIKeyRepository) IsValid(ctx context.Context, key string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	return m.ValidKeys[key], nil
}
