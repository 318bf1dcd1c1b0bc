package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/activetime/internal/domain"
)

const (
	payloadField = "payload"
	readBatch    = 1000
	ackBatch     = 1000
)

// ErrStreamUnavailable is returned by BufferEvent when Redis is down and no
// spool is configured to absorb the event.
var ErrStreamUnavailable = errors.New("redis stream unavailable")

// Spool is the local fallback used while Redis is unreachable. Drain must
// replay and remove the spooled lines as one step with respect to Write.
type Spool interface {
	Write(ctx context.Context, line []byte) error
	Drain(ctx context.Context, handler func(line []byte) error) error
}

// StreamConfig names the keys an EventStream works with.
type StreamConfig struct {
	Stream    string
	Group     string
	Consumer  string
	DLQStream string
}

// EventStream buffers raw event lines in a Redis stream and replays them to
// aggregation passes through a consumer group.
type EventStream struct {
	client      *redis.Client
	cfg         StreamConfig
	spool       Spool
	logger      *slog.Logger
	isAvailable atomic.Bool

	// spoolMu orders spool writes against ReplaySpool and the flip back to
	// available, so no line is written to the spool after its last drain.
	spoolMu sync.Mutex

	mu      sync.Mutex
	drained []string
}

// NewEventStream creates a Redis-backed EventStream.
// The spool is optional; pass nil when the caller only replays (e.g. batch passes).
func NewEventStream(client *redis.Client, cfg StreamConfig, spool Spool, logger *slog.Logger) *EventStream {
	s := &EventStream{
		client: client,
		cfg:    cfg,
		spool:  spool,
		logger: logger.With("component", "redis_event_stream"),
	}
	s.isAvailable.Store(true)

	if err := s.setupConsumerGroup(context.Background()); err != nil {
		s.isAvailable.Store(false)
		s.logger.Error("Failed to setup consumer group, Redis may be unavailable on startup", "error", err)
	}
	return s
}

// Available reports whether writes currently go to Redis rather than the spool.
func (s *EventStream) Available() bool {
	return s.isAvailable.Load()
}

// StartHealthCheck monitors Redis connectivity and replays the spool into the
// stream once Redis recovers. It blocks until ctx is done.
func (s *EventStream) StartHealthCheck(ctx context.Context, interval time.Duration) {
	if s.spool == nil {
		s.logger.Info("Spool is not configured, skipping health check/replayer")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Starting Redis health check and spool replayer")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping Redis health check")
			return
		case <-ticker.C:
			if err := s.client.Ping(ctx).Err(); err != nil {
				if s.isAvailable.CompareAndSwap(true, false) {
					s.logger.Error("Redis connection lost", "error", err)
				}
				continue
			}
			if s.isAvailable.Load() {
				continue
			}
			s.logger.Info("Redis connection recovered")
			if err := s.setupConsumerGroup(ctx); err != nil {
				s.logger.Error("Failed to setup consumer group after recovery", "error", err)
				continue
			}
			if err := s.ReplaySpool(ctx); err != nil {
				s.logger.Error("Failed to replay spool after Redis recovery", "error", err)
			}
		}
	}
}

// ReplaySpool moves spooled events into the stream, removes them from the
// spool and marks the stream available. On failure the spool is kept.
func (s *EventStream) ReplaySpool(ctx context.Context) error {
	s.spoolMu.Lock()
	defer s.spoolMu.Unlock()

	s.logger.Info("Attempting to replay spool to Redis")
	err := s.spool.Drain(ctx, func(line []byte) error {
		return s.add(ctx, line)
	})
	if err != nil {
		return fmt.Errorf("spool replay failed: %w", err)
	}

	s.isAvailable.Store(true)
	s.logger.Info("Spool replay to Redis completed successfully")
	return nil
}

func (s *EventStream) setupConsumerGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.cfg.Stream, s.cfg.Group, "0").Err()
	if err != nil && !isRedisBusyGroupError(err) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// BufferEvent adds a raw line to the stream, falling back to the spool if Redis is unavailable.
func (s *EventStream) BufferEvent(ctx context.Context, line []byte) error {
	if !s.isAvailable.Load() {
		return s.toSpool(ctx, line, nil)
	}

	err := s.add(ctx, line)
	if err != nil && isNetworkError(err) {
		return s.toSpool(ctx, line, err)
	}
	return err
}

// toSpool writes line to the spool. cause is the network error of a failed
// XADD, or nil when the stream was already marked unavailable.
func (s *EventStream) toSpool(ctx context.Context, line []byte, cause error) error {
	if s.spool == nil {
		s.markUnavailable(cause)
		if cause != nil {
			return fmt.Errorf("%w: %v", ErrStreamUnavailable, cause)
		}
		return ErrStreamUnavailable
	}

	s.spoolMu.Lock()
	defer s.spoolMu.Unlock()

	if cause == nil && s.isAvailable.Load() {
		// Redis came back while this writer waited for a spool replay.
		err := s.add(ctx, line)
		if err == nil || !isNetworkError(err) {
			return err
		}
		cause = err
	}
	s.markUnavailable(cause)

	s.logger.Debug("Redis is unavailable, writing to spool")
	return s.spool.Write(ctx, line)
}

func (s *EventStream) markUnavailable(cause error) {
	if cause != nil && s.isAvailable.CompareAndSwap(true, false) {
		s.logger.Error("Redis connection lost during write", "error", cause)
	}
}

func (s *EventStream) add(ctx context.Context, line []byte) error {
	args := &redis.XAddArgs{
		Stream: s.cfg.Stream,
		Values: map[string]interface{}{payloadField: line},
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to XADD to redis stream: %w", err)
	}
	return nil
}

// Replay drains the stream through the consumer group: first the entries
// already delivered to this consumer but never acknowledged, then every new
// entry, until none are left. Drained IDs are held until Commit.
func (s *EventStream) Replay(ctx context.Context, handler func(line []byte) error) error {
	if err := s.setupConsumerGroup(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.drained = s.drained[:0]

	// "0" walks this consumer's pending entries list; ">" asks for new ones.
	cursor := "0"
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		messages, err := s.read(ctx, cursor)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			if cursor == ">" {
				break
			}
			cursor = ">"
			continue
		}

		var bad []redis.XMessage
		for _, msg := range messages {
			payload, ok := payloadOf(msg)
			if !ok {
				bad = append(bad, msg)
				continue
			}
			if err := handler([]byte(payload)); err != nil {
				return fmt.Errorf("replay handler failed: %w", err)
			}
			s.drained = append(s.drained, msg.ID)
		}
		if err := s.moveToDLQ(ctx, bad); err != nil {
			return err
		}

		if cursor != ">" {
			cursor = messages[len(messages)-1].ID
		}
	}

	s.logger.Info("Stream drained", "stream", s.cfg.Stream, "entries", len(s.drained))
	return nil
}

func (s *EventStream) read(ctx context.Context, cursor string) ([]redis.XMessage, error) {
	args := &redis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		Streams:  []string{s.cfg.Stream, cursor},
		Count:    readBatch,
		Block:    -1, // never block: an empty read means the stream is drained
	}

	streams, err := s.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to XREADGROUP from redis: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return streams[0].Messages, nil
}

// Commit acknowledges every entry handed out by the last Replay.
func (s *EventStream) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for start := 0; start < len(s.drained); start += ackBatch {
		end := min(start+ackBatch, len(s.drained))
		if err := s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, s.drained[start:end]...).Err(); err != nil {
			return fmt.Errorf("failed to XACK messages in redis: %w", err)
		}
	}
	s.logger.Info("Acknowledged drained entries", "count", len(s.drained))
	s.drained = s.drained[:0]
	return nil
}

// moveToDLQ copies undecodable entries to the dead-letter stream and acks them.
func (s *EventStream) moveToDLQ(ctx context.Context, messages []redis.XMessage) error {
	if len(messages) == 0 {
		return nil
	}

	ids := make([]string, len(messages))
	pipe := s.client.TxPipeline()
	for i, msg := range messages {
		ids[i] = msg.ID
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.cfg.DLQStream,
			Values: map[string]interface{}{
				"original_stream": s.cfg.Stream,
				"original_msg_id": msg.ID,
				"failed_at":       time.Now().UTC().Format(time.RFC3339),
				"reason":          "missing payload field",
			},
		})
	}
	pipe.XAck(ctx, s.cfg.Stream, s.cfg.Group, ids...)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute DLQ pipeline: %w", err)
	}
	s.logger.Warn("Moved entries to DLQ", "count", len(messages))
	return nil
}

// StreamStatus reports the stream length and the state of its consumer groups.
func (s *EventStream) StreamStatus(ctx context.Context) (domain.StreamStatus, error) {
	status := domain.StreamStatus{Stream: s.cfg.Stream, Spooling: !s.isAvailable.Load()}

	length, err := s.client.XLen(ctx, s.cfg.Stream).Result()
	if err != nil {
		return status, fmt.Errorf("failed to get length of stream %s: %w", s.cfg.Stream, err)
	}
	status.Length = length

	groups, err := s.client.XInfoGroups(ctx, s.cfg.Stream).Result()
	if err != nil {
		return status, fmt.Errorf("failed to get group info for stream %s: %w", s.cfg.Stream, err)
	}
	status.Groups = make([]domain.StreamGroupStatus, len(groups))
	for i, g := range groups {
		status.Groups[i] = domain.StreamGroupStatus{
			Name:            g.Name,
			Consumers:       g.Consumers,
			Pending:         g.Pending,
			Lag:             g.Lag,
			LastDeliveredID: g.LastDeliveredID,
		}
	}
	return status, nil
}

func payloadOf(msg redis.XMessage) (string, bool) {
	payload, ok := msg.Values[payloadField].(string)
	return payload, ok && payload != ""
}

func isRedisBusyGroupError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) || errors.Is(err, context.DeadlineExceeded)
}
