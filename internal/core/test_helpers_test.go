package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirenote/internal/store"
	"github.com/vovakirdan/wirenote/internal/store/sqlite"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func newTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "core.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newUser(t *testing.T, s store.Store, name string) *store.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), name, name+"@example.com", "hash")
	require.NoError(t, err)
	return u
}

// fixedClock returns a clock frozen at the given instant.
func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
