package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/V4T54L/activetime/internal/adapter/repository/spool"
	"github.com/V4T54L/activetime/internal/domain/mocks"
)

func TestCollectEventsUseCase_Run(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("Successful Collection", func(t *testing.T) {
		source := &mocks.MockEventSource{Lines: testLines()}
		log := &mocks.MockEventLog{}
		uc := NewCollectEventsUseCase(source, log, logger)

		n, err := uc.Run(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if n != len(testLines()) || len(log.Lines) != n {
			t.Errorf("expected %d collected lines, got n=%d log=%d", len(testLines()), n, len(log.Lines))
		}
		if log.Syncs != 1 {
			t.Errorf("expected 1 sync, got %d", log.Syncs)
		}
		if source.Commits != 1 {
			t.Errorf("expected source to be committed once, got %d", source.Commits)
		}
	})

	t.Run("Write Error Skips Commit", func(t *testing.T) {
		source := &mocks.MockEventSource{Lines: testLines()}
		log := &mocks.MockEventLog{WriteErr: spool.ErrSpoolFull}
		uc := NewCollectEventsUseCase(source, log, logger)

		if _, err := uc.Run(context.Background()); !errors.Is(err, spool.ErrSpoolFull) {
			t.Fatalf("expected ErrSpoolFull, got %v", err)
		}
		if source.Commits != 0 {
			t.Error("source must not be committed when the log write fails")
		}
	})

	t.Run("Sync Error Skips Commit", func(t *testing.T) {
		source := &mocks.MockEventSource{Lines: testLines()}
		log := &mocks.MockEventLog{SyncErr: errors.New("fsync failed")}
		uc := NewCollectEventsUseCase(source, log, logger)

		if _, err := uc.Run(context.Background()); err == nil {
			t.Fatal("expected an error, got nil")
		}
		if source.Commits != 0 {
			t.Error("source must not be committed when the sync fails")
		}
	})
}

func TestCollectThenCompute_SessionSplitAcrossCollections(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sp, err := spool.New(t.TempDir(), 1024, 1<<20, logger)
	if err != nil {
		t.Fatalf("failed to create spool: %v", err)
	}
	t.Cleanup(func() { sp.Close() })

	batches := [][][]byte{
		{
			eventLine(1001, "", 1, "2021-08-12 10:00:00"),
			eventLine(1001, "", 1, "2021-08-12 10:30:00"),
		},
		{
			eventLine(1001, "", 1, "2021-08-12 10:45:00"),
			eventLine(1001, "", 1, "2021-08-12 11:00:00"),
		},
	}
	wantMinutes := []float64{30, 60}

	for i, batch := range batches {
		source := &mocks.MockEventSource{Lines: batch}
		if _, err := NewCollectEventsUseCase(source, sp, logger).Run(context.Background()); err != nil {
			t.Fatalf("collection %d: %v", i, err)
		}

		sink := &mocks.MockDurationSink{}
		if _, err := newTestUseCase(sp, sink, nil).Run(context.Background()); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}

		want := []flatRow{{"2021-08-12", "1001", "", wantMinutes[i]}}
		if got := flatten(sink.Writes[0]); !reflect.DeepEqual(got, want) {
			t.Errorf("pass %d rows:\n got %+v\nwant %+v", i, got, want)
		}
	}
}
