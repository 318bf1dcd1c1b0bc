package activity

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/V4T54L/activetime/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Aggregator reduces sessions into per-subject, per-day minutes.
//
// Sessions of one subject are merged into an interval union so overlapping
// time is counted once. Each merged interval is split at calendar midnights
// in the report location. A session spanning more than one midnight is
// discarded as anomalous and reported through the discard hook.
type Aggregator struct {
	loc       *time.Location
	workers   int
	logger    *slog.Logger
	onDiscard func(domain.Session)
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithLocation sets the time zone that defines calendar days. Defaults to UTC.
func WithLocation(loc *time.Location) AggregatorOption {
	return func(a *Aggregator) {
		if loc != nil {
			a.loc = loc
		}
	}
}

// WithWorkers shards subjects across n goroutines. n <= 1 runs sequentially.
func WithWorkers(n int) AggregatorOption {
	return func(a *Aggregator) { a.workers = n }
}

// WithDiscardHook registers fn to be called for every discarded session.
// With more than one worker fn is called concurrently.
func WithDiscardHook(fn func(domain.Session)) AggregatorOption {
	return func(a *Aggregator) { a.onDiscard = fn }
}

// NewAggregator creates an Aggregator.
func NewAggregator(logger *slog.Logger, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		loc:     time.UTC,
		workers: 1,
		logger:  logger.With("component", "aggregator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate returns one DayDuration per (subject, day) with positive minutes,
// sorted by calendar day then subject ID. The input slice is not modified.
func (a *Aggregator) Aggregate(ctx context.Context, sessions []domain.Session) ([]domain.DayDuration, error) {
	bySubject := make(map[string][]domain.Session)
	for _, s := range sessions {
		bySubject[s.SubjectID] = append(bySubject[s.SubjectID], s)
	}
	subjects := make([]string, 0, len(bySubject))
	for id := range bySubject {
		subjects = append(subjects, id)
	}
	sort.Strings(subjects)

	results := make([][]domain.DayDuration, len(subjects))

	if a.workers <= 1 {
		for i, id := range subjects {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results[i] = a.aggregateSubject(bySubject[id])
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(a.workers)
		for i, id := range subjects {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i] = a.aggregateSubject(bySubject[id])
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	var out []domain.DayDuration
	for _, rows := range results {
		out = append(out, rows...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CalendarDay.Equal(out[j].CalendarDay) {
			return out[i].CalendarDay.Before(out[j].CalendarDay)
		}
		return out[i].SubjectID < out[j].SubjectID
	})
	return out, nil
}

type dayBucket struct {
	day     time.Time
	minutes float64
}

// aggregateSubject handles the sessions of a single subject.
func (a *Aggregator) aggregateSubject(sessions []domain.Session) []domain.DayDuration {
	if len(sessions) == 0 {
		return nil
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].Start.Equal(sessions[j].Start) {
			return sessions[i].Start.Before(sessions[j].Start)
		}
		if !sessions[i].End.Equal(sessions[j].End) {
			return sessions[i].End.Before(sessions[j].End)
		}
		return sessions[i].SessionID < sessions[j].SessionID
	})

	subjectID := sessions[0].SubjectID
	var userID string
	for _, s := range sessions {
		if s.UserID != "" {
			userID = s.UserID
			break
		}
	}

	buckets := make(map[string]*dayBucket)
	var spanStart, previousEnd time.Time
	open := false

	for _, s := range sessions {
		if a.spansSeveralMidnights(s) {
			a.discard(s)
			continue
		}
		switch {
		case !open:
			spanStart, previousEnd, open = s.Start, s.End, true
		case s.Start.After(previousEnd):
			a.addSpan(buckets, spanStart, previousEnd)
			spanStart, previousEnd = s.Start, s.End
		case s.End.After(previousEnd):
			previousEnd = s.End
		}
	}
	if open {
		a.addSpan(buckets, spanStart, previousEnd)
	}

	out := make([]domain.DayDuration, 0, len(buckets))
	for _, b := range buckets {
		minutes := roundMinutes(b.minutes)
		if minutes <= 0 {
			continue
		}
		out = append(out, domain.DayDuration{
			CalendarDay: b.day,
			SubjectID:   subjectID,
			UserID:      userID,
			Minutes:     minutes,
		})
	}
	return out
}

// addSpan credits [start, end) to the days it covers, splitting at each midnight.
func (a *Aggregator) addSpan(buckets map[string]*dayBucket, start, end time.Time) {
	for start.Before(end) {
		day := a.startOfDay(start)
		next := day.AddDate(0, 0, 1)
		segmentEnd := end
		if next.Before(end) {
			segmentEnd = next
		}

		key := day.Format(time.DateOnly)
		b, ok := buckets[key]
		if !ok {
			b = &dayBucket{day: day}
			buckets[key] = b
		}
		b.minutes += segmentEnd.Sub(start).Minutes()
		start = segmentEnd
	}
}

func (a *Aggregator) spansSeveralMidnights(s domain.Session) bool {
	return a.startOfDay(s.End).After(a.startOfDay(s.Start).AddDate(0, 0, 1))
}

func (a *Aggregator) startOfDay(t time.Time) time.Time {
	t = t.In(a.loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, a.loc)
}

func (a *Aggregator) discard(s domain.Session) {
	a.logger.Warn("discarding session spanning more than one midnight",
		"subject_id", s.SubjectID,
		"session_id", s.SessionID,
		"start", s.Start,
		"end", s.End,
	)
	if a.onDiscard != nil {
		a.onDiscard(s)
	}
}

func roundMinutes(m float64) float64 {
	return math.Round(m*100) / 100
}
