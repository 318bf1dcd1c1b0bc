package activity

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/V4T54L/activetime/internal/domain"
)

type row struct {
	day     string
	subject string
	minutes float64
}

func rows(durations []domain.DayDuration) []row {
	out := make([]row, len(durations))
	for i, d := range durations {
		out[i] = row{day: d.Day(), subject: d.SubjectID, minutes: d.Minutes}
	}
	return out
}

func session(t *testing.T, subject string, id int64, start, end string) domain.Session {
	t.Helper()
	return domain.Session{SubjectID: subject, SessionID: id, Start: mustTime(t, start), End: mustTime(t, end)}
}

func TestAggregator_Aggregate(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name     string
		sessions []domain.Session
		want     []row
	}{
		{
			name: "Midnight split credits both days",
			sessions: []domain.Session{
				session(t, "a", 1, "2021-08-12T23:50:00Z", "2021-08-13T00:10:00Z"),
			},
			want: []row{{"2021-08-12", "a", 10}, {"2021-08-13", "a", 10}},
		},
		{
			name: "Multi-day span is discarded",
			sessions: []domain.Session{
				session(t, "a", 1, "2021-08-12T10:00:00Z", "2021-08-14T10:00:00Z"),
			},
			want: []row{},
		},
		{
			name: "Overlapping sessions count their union",
			sessions: []domain.Session{
				session(t, "a", 1, "2021-08-12T10:00:00Z", "2021-08-12T10:30:00Z"),
				session(t, "a", 2, "2021-08-12T10:10:00Z", "2021-08-12T10:40:00Z"),
			},
			want: []row{{"2021-08-12", "a", 40}},
		},
		{
			name: "Contained session adds nothing",
			sessions: []domain.Session{
				session(t, "a", 1, "2021-08-12T10:00:00Z", "2021-08-12T11:00:00Z"),
				session(t, "a", 2, "2021-08-12T10:15:00Z", "2021-08-12T10:20:00Z"),
			},
			want: []row{{"2021-08-12", "a", 60}},
		},
		{
			name: "Disjoint sessions on the same day add up",
			sessions: []domain.Session{
				session(t, "a", 2, "2021-08-12T14:00:00Z", "2021-08-12T14:05:30Z"),
				session(t, "a", 1, "2021-08-12T09:00:00Z", "2021-08-12T09:20:00Z"),
			},
			want: []row{{"2021-08-12", "a", 25.5}},
		},
		{
			name: "Single event sessions are dropped",
			sessions: []domain.Session{
				session(t, "a", 1, "2021-08-12T09:00:00Z", "2021-08-12T09:00:00Z"),
			},
			want: []row{},
		},
		{
			name: "Sub-resolution totals round to zero and are dropped",
			sessions: []domain.Session{
				session(t, "a", 1, "2021-08-12T09:00:00Z", "2021-08-12T09:00:00.1Z"),
			},
			want: []row{},
		},
		{
			name: "Discarded session does not extend overlap coverage",
			sessions: []domain.Session{
				session(t, "a", 1, "2021-08-11T10:00:00Z", "2021-08-13T10:00:00Z"),
				session(t, "a", 2, "2021-08-12T10:00:00Z", "2021-08-12T10:30:00Z"),
			},
			want: []row{{"2021-08-12", "a", 30}},
		},
		{
			name: "Output is ordered by day then subject",
			sessions: []domain.Session{
				session(t, "b", 1, "2021-08-13T10:00:00Z", "2021-08-13T10:01:00Z"),
				session(t, "b", 2, "2021-08-12T10:00:00Z", "2021-08-12T10:02:00Z"),
				session(t, "a", 3, "2021-08-13T10:00:00Z", "2021-08-13T10:03:00Z"),
				session(t, "a", 4, "2021-08-12T10:00:00Z", "2021-08-12T10:04:00Z"),
			},
			want: []row{
				{"2021-08-12", "a", 4},
				{"2021-08-12", "b", 2},
				{"2021-08-13", "a", 3},
				{"2021-08-13", "b", 1},
			},
		},
		{
			name: "Chained overlaps may cover several days",
			sessions: []domain.Session{
				session(t, "a", 1, "2021-08-12T23:00:00Z", "2021-08-13T01:00:00Z"),
				session(t, "a", 2, "2021-08-13T00:30:00Z", "2021-08-13T23:59:00Z"),
				session(t, "a", 3, "2021-08-13T23:30:00Z", "2021-08-14T00:30:00Z"),
			},
			want: []row{{"2021-08-12", "a", 60}, {"2021-08-13", "a", 1440}, {"2021-08-14", "a", 30}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator(logger)
			got, err := agg.Aggregate(context.Background(), tt.sessions)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gotRows := rows(got); !reflect.DeepEqual(gotRows, tt.want) {
				t.Errorf("got %+v, want %+v", gotRows, tt.want)
			}
			for _, d := range got {
				if d.Minutes <= 0 {
					t.Errorf("emitted non-positive duration %+v", d)
				}
			}
		})
	}
}

func TestAggregator_DiscardHook(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var discarded atomic.Int64
	agg := NewAggregator(logger, WithDiscardHook(func(domain.Session) { discarded.Add(1) }))

	_, err := agg.Aggregate(context.Background(), []domain.Session{
		session(t, "a", 1, "2021-08-12T10:00:00Z", "2021-08-14T10:00:00Z"),
		session(t, "a", 2, "2021-08-12T10:00:00Z", "2021-08-12T11:00:00Z"),
		session(t, "b", 3, "2021-08-01T10:00:00Z", "2021-08-12T10:00:00Z"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if discarded.Load() != 2 {
		t.Errorf("expected 2 discarded sessions, got %d", discarded.Load())
	}
}

func TestAggregator_UserID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := []domain.Session{
		session(t, "a", 1, "2021-08-12T09:00:00Z", "2021-08-12T09:10:00Z"),
		session(t, "a", 2, "2021-08-12T10:00:00Z", "2021-08-12T10:10:00Z"),
	}
	sessions[1].UserID = "user-7"

	got, err := NewAggregator(logger).Aggregate(context.Background(), sessions)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].UserID != "user-7" {
		t.Fatalf("expected the resolved user id on the row, got %+v", got)
	}
}

func TestAggregator_Location(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loc := time.FixedZone("UTC+2", 2*60*60)

	// 21:50Z-22:10Z is 23:50-00:10 at UTC+2.
	got, err := NewAggregator(logger, WithLocation(loc)).Aggregate(context.Background(), []domain.Session{
		session(t, "a", 1, "2021-08-12T21:50:00Z", "2021-08-12T22:10:00Z"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []row{{"2021-08-12", "a", 10}, {"2021-08-13", "a", 10}}
	if gotRows := rows(got); !reflect.DeepEqual(gotRows, want) {
		t.Errorf("got %+v, want %+v", gotRows, want)
	}
}

func TestAggregator_WorkersMatchSequential(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := mustTime(t, "2021-08-12T00:00:00Z")
	rng := rand.New(rand.NewSource(42))

	var sessions []domain.Session
	for i := 0; i < 500; i++ {
		start := base.Add(time.Duration(rng.Intn(3*24*60)) * time.Minute)
		sessions = append(sessions, domain.Session{
			SubjectID: string(rune('a' + rng.Intn(20))),
			SessionID: int64(i),
			Start:     start,
			End:       start.Add(time.Duration(rng.Intn(180)) * time.Minute),
		})
	}

	sequential, err := NewAggregator(logger).Aggregate(context.Background(), sessions)
	if err != nil {
		t.Fatalf("sequential: %v", err)
	}
	parallel, err := NewAggregator(logger, WithWorkers(8)).Aggregate(context.Background(), sessions)
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}
	if !reflect.DeepEqual(sequential, parallel) {
		t.Fatal("sharded aggregation differs from the sequential pass")
	}
}

func TestAggregator_Cancelled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := NewAggregator(logger).Aggregate(ctx, []domain.Session{
		session(t, "a", 1, "2021-08-12T10:00:00Z", "2021-08-12T11:00:00Z"),
	})
	if err == nil {
		t.Fatal("expected a context error")
	}
	if got != nil {
		t.Errorf("expected no partial output, got %+v", got)
	}
}
