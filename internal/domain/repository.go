package domain

import "context"

// EventSource yields raw NDJSON event lines to a handler.
// Lines are delivered in arbitrary order and may span several underlying files.
type EventSource interface {
	// Replay calls handler once per stored line. A handler error stops the replay.
	Replay(ctx context.Context, handler func(line []byte) error) error
}

// Committer is implemented by sources that must be told when a pass has
// been persisted (e.g. stream acknowledgement). Commit is never called for
// a failed or cancelled pass.
type Committer interface {
	Commit(ctx context.Context) error
}

// EventLog durably appends raw event lines for later passes.
type EventLog interface {
	Write(ctx context.Context, line []byte) error
	// Sync makes every written line durable.
	Sync() error
}

// EventBuffer durably buffers raw event lines received by the ingest service.
type EventBuffer interface {
	BufferEvent(ctx context.Context, line []byte) error
}

// DurationSink persists the output of an aggregation pass.
type DurationSink interface {
	WriteDurations(ctx context.Context, runID string, rows []DayDuration) error
}

// SubjectRepository loads the active-subject set once per run.
type SubjectRepository interface {
	LoadSubjects(ctx context.Context) (SubjectSet, error)
}

// APIKeyRepository defines the interface for validating API keys.
type APIKeyRepository interface {
	IsValid(ctx context.Context, key string) (bool, error)
}
