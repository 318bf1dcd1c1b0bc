package activity

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/V4T54L/activetime/internal/domain"
)

func TestSessionTable_Fold(t *testing.T) {
	base := mustTime(t, "2021-08-12T10:00:00Z")

	t.Run("Start and end track min and max", func(t *testing.T) {
		table := NewSessionTable()
		for _, offset := range []time.Duration{10, 0, 30, 5} {
			table.Fold(domain.NormalizedEvent{SubjectID: "a", SessionID: 1, CorrectedTime: base.Add(offset * time.Minute)})
		}

		sessions := table.Sessions()
		if len(sessions) != 1 {
			t.Fatalf("expected 1 session, got %d", len(sessions))
		}
		if !sessions[0].Start.Equal(base) {
			t.Errorf("start = %v, want %v", sessions[0].Start, base)
		}
		if want := base.Add(30 * time.Minute); !sessions[0].End.Equal(want) {
			t.Errorf("end = %v, want %v", sessions[0].End, want)
		}
	})

	t.Run("Session IDs are scoped per subject", func(t *testing.T) {
		table := NewSessionTable()
		table.Fold(domain.NormalizedEvent{SubjectID: "a", SessionID: 42, CorrectedTime: base})
		table.Fold(domain.NormalizedEvent{SubjectID: "b", SessionID: 42, CorrectedTime: base.Add(time.Hour)})

		if table.Len() != 2 {
			t.Fatalf("expected 2 sessions for colliding session IDs, got %d", table.Len())
		}
	})

	t.Run("Earliest user id wins regardless of order", func(t *testing.T) {
		events := []domain.NormalizedEvent{
			{SubjectID: "a", SessionID: 1, CorrectedTime: base.Add(2 * time.Minute), UserID: "late"},
			{SubjectID: "a", SessionID: 1, CorrectedTime: base},
			{SubjectID: "a", SessionID: 1, CorrectedTime: base.Add(time.Minute), UserID: "early"},
		}
		for i := 0; i < 5; i++ {
			rand.New(rand.NewSource(int64(i))).Shuffle(len(events), func(a, b int) { events[a], events[b] = events[b], events[a] })
			table := NewSessionTable()
			for _, ev := range events {
				table.Fold(ev)
			}
			if got := table.Sessions()[0].UserID; got != "early" {
				t.Fatalf("shuffle %d: user id = %q, want %q", i, got, "early")
			}
		}
	})

	t.Run("Fold is order independent", func(t *testing.T) {
		var events []domain.NormalizedEvent
		for i := 0; i < 60; i++ {
			events = append(events, domain.NormalizedEvent{
				SubjectID:     []string{"a", "b", "c"}[i%3],
				SessionID:     int64(i % 7),
				UserID:        []string{"", "u1", "u2"}[i%3],
				CorrectedTime: base.Add(time.Duration(i*i%97) * time.Minute),
			})
		}

		reference := NewSessionTable()
		for _, ev := range events {
			reference.Fold(ev)
		}
		want := reference.Sessions()

		rng := rand.New(rand.NewSource(7))
		for i := 0; i < 10; i++ {
			rng.Shuffle(len(events), func(a, b int) { events[a], events[b] = events[b], events[a] })
			table := NewSessionTable()
			for _, ev := range events {
				table.Fold(ev)
			}
			if got := table.Sessions(); !reflect.DeepEqual(got, want) {
				t.Fatalf("permutation %d produced a different table:\n got %+v\nwant %+v", i, got, want)
			}
		}
	})

	t.Run("Reset empties the table", func(t *testing.T) {
		table := NewSessionTable()
		table.Fold(domain.NormalizedEvent{SubjectID: "a", SessionID: 1, CorrectedTime: base})
		table.Reset()
		if table.Len() != 0 {
			t.Errorf("expected empty table after reset, got %d", table.Len())
		}
	})
}
