package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dougsko/ftxcat/pkg/cat"
	"github.com/dougsko/ftxcat/pkg/controller"
	"github.com/dougsko/ftxcat/pkg/protocol"
)

func newTestStore(t *testing.T, max int) *StateStore {
	t.Helper()
	store, err := NewStateStore(filepath.Join(t.TempDir(), "state.db"), max)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleState(hz int) controller.RadioState {
	return controller.RadioState{
		Frequency:          hz,
		Mode:               cat.ModeDataU,
		Channel:            "012",
		ChannelMode:        cat.ChannelMemory,
		ClarifierDirection: cat.ClarifierMinus,
		ClarifierOffset:    250,
		RxClarifier:        true,
		PowerUnit:          cat.PowerAmplifier,
		Watts:              75,
	}
}

func TestNewStateStore(t *testing.T) {
	t.Run("Nested Directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nested", "dir", "state.db")
		store, err := NewStateStore(dbPath, 100)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		defer store.Close()

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("Expected database file to be created")
		}
	})

	t.Run("Reopen Keeps Data", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "state.db")
		store, err := NewStateStore(dbPath, 100)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if _, err := store.StoreSnapshot(sampleState(7074000), time.Now()); err != nil {
			t.Fatalf("Failed to store snapshot: %v", err)
		}
		store.Close()

		store, err = NewStateStore(dbPath, 100)
		if err != nil {
			t.Fatalf("Expected no error on reopen, got: %v", err)
		}
		defer store.Close()

		count, err := store.GetSnapshotCount()
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if count != 1 {
			t.Errorf("Expected 1 snapshot after reopen, got %d", count)
		}
	})
}

func TestSnapshots(t *testing.T) {
	store := newTestStore(t, 100)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if _, err := store.StoreSnapshot(sampleState(14074000+i*1000), base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Failed to store snapshot %d: %v", i, err)
		}
	}

	latest, err := store.GetLatestSnapshot()
	if err != nil {
		t.Fatalf("Failed to get latest: %v", err)
	}
	if latest.Frequency != 14078000 {
		t.Errorf("Expected latest frequency 14078000, got %d", latest.Frequency)
	}
	want := sampleState(14078000)
	if latest.RadioState != want {
		t.Errorf("Expected %+v, got %+v", want, latest.RadioState)
	}
	if !latest.Timestamp.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("Expected timestamp %v, got %v", base.Add(4*time.Minute), latest.Timestamp)
	}

	recent, err := store.GetRecentSnapshots(2)
	if err != nil {
		t.Fatalf("Failed to get recent: %v", err)
	}
	if len(recent) != 2 || recent[0].Frequency != 14078000 || recent[1].Frequency != 14077000 {
		t.Errorf("Unexpected recent snapshots: %+v", recent)
	}

	since := base.Add(3 * time.Minute)
	ranged, err := store.GetSnapshots(SnapshotQuery{Since: &since})
	if err != nil {
		t.Fatalf("Failed to query range: %v", err)
	}
	if len(ranged) != 2 {
		t.Errorf("Expected 2 snapshots since %v, got %d", since, len(ranged))
	}
}

func TestEmptyStore(t *testing.T) {
	store := newTestStore(t, 100)

	latest, err := store.GetLatestSnapshot()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if latest != nil {
		t.Errorf("Expected no snapshot, got %+v", latest)
	}
}

func TestSnapshotPruning(t *testing.T) {
	store := newTestStore(t, 3)

	for i := 0; i < 6; i++ {
		if _, err := store.StoreSnapshot(sampleState(7000000+i), time.Now()); err != nil {
			t.Fatalf("Failed to store snapshot: %v", err)
		}
	}

	count, err := store.GetSnapshotCount()
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 snapshots after pruning, got %d", count)
	}

	recent, err := store.GetRecentSnapshots(0)
	if err != nil {
		t.Fatalf("Failed to get snapshots: %v", err)
	}
	if recent[len(recent)-1].Frequency != 7000003 {
		t.Errorf("Expected oldest kept frequency 7000003, got %d", recent[len(recent)-1].Frequency)
	}

	stats, err := store.GetStats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.TotalSnapshots != 6 {
		t.Errorf("Expected 6 snapshots counted, got %d", stats.TotalSnapshots)
	}
	if stats.LastCleanup.IsZero() {
		t.Error("Expected cleanup time to be recorded")
	}
}

func TestOperations(t *testing.T) {
	store := newTestStore(t, 100)

	ops := []protocol.Operation{
		{OpID: "a", Name: "SetFrequency", Params: "MAIN 14074000", Success: true, DurationMs: 12},
		{OpID: "b", Name: "SetPower", Params: "50 FIELD", Success: false, ErrorKind: "value out of range", Error: "PC: value out of range"},
		{OpID: "c", Name: "GetRadioInfo", Success: false, ErrorKind: "timeout", Error: "MC: timeout after 3 attempt(s)", DurationMs: 1500},
	}
	for _, op := range ops {
		if err := store.StoreOperation(op); err != nil {
			t.Fatalf("Failed to store operation: %v", err)
		}
	}

	all, err := store.GetOperations(OperationQuery{})
	if err != nil {
		t.Fatalf("Failed to get operations: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 operations, got %d", len(all))
	}
	if all[0].OpID != "c" || all[0].DurationMs != 1500 {
		t.Errorf("Expected newest operation first, got %+v", all[0])
	}
	if all[0].Timestamp.IsZero() {
		t.Error("Expected timestamp to be filled in")
	}

	failed, err := store.GetOperations(OperationQuery{FailedOnly: true})
	if err != nil {
		t.Fatalf("Failed to get failed operations: %v", err)
	}
	if len(failed) != 2 {
		t.Errorf("Expected 2 failed operations, got %d", len(failed))
	}

	named, err := store.GetOperations(OperationQuery{Name: "SetPower", Limit: 5})
	if err != nil {
		t.Fatalf("Failed to get named operations: %v", err)
	}
	if len(named) != 1 || named[0].ErrorKind != "value out of range" {
		t.Errorf("Unexpected named operations: %+v", named)
	}

	stats, err := store.GetStats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.TotalOperations != 3 || stats.FailedOperations != 2 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}
