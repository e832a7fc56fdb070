package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecorderPreservesOrder(t *testing.T) {
	store := NewMemStore()
	r := NewRecorder(store, 64)

	for i := 0; i < 20; i++ {
		r.Record(ActivityRecord{PrincipalID: 111, Command: "status", Success: i%2 == 0, LatencyMS: int64(i)})
	}
	r.Close()

	recs, err := store.RecentActivity(0)
	require.NoError(t, err)
	require.Len(t, recs, 20)
	// RecentActivity returns newest first.
	for i, rec := range recs {
		require.Equal(t, int64(19-i), rec.LatencyMS)
	}
}

type failingStore struct {
	*MemStore
	failures int
}

func (f *failingStore) AppendActivity(rec ActivityRecord) error {
	f.failures++
	return errors.New("disk full")
}

func TestRecorderSwallowsStorageErrors(t *testing.T) {
	store := &failingStore{MemStore: NewMemStore()}
	r := NewRecorder(store, 8)

	// Record never fails from the caller's perspective.
	r.Record(ActivityRecord{PrincipalID: 111, Command: "status"})
	r.Record(ActivityRecord{PrincipalID: 111, Command: "status"})
	r.Close()

	require.Equal(t, 2, store.failures)
}

func TestRecorderCloseIsIdempotent(t *testing.T) {
	r := NewRecorder(NewMemStore(), 8)
	r.Close()
	require.NotPanics(t, func() { r.Close() })
	// Recording after close drops silently.
	require.NotPanics(t, func() {
		r.Record(ActivityRecord{PrincipalID: 1, Command: "status", Timestamp: time.Now()})
	})
}
