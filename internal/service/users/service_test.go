package users

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirenote/internal/core"
	"github.com/vovakirdan/wirenote/internal/metrics"
	"github.com/vovakirdan/wirenote/internal/service/messages"
	"github.com/vovakirdan/wirenote/internal/store"
	"github.com/vovakirdan/wirenote/internal/store/sqlite"
)

func TestDeleteAccount_CascadesAndIsIdempotent(t *testing.T) {
	st, err := sqlite.New(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	var ids []int64
	for _, name := range []string{"alice", "bob", "carol"} {
		u, err := st.CreateUser(ctx, name, name+"@example.com", "hash")
		require.NoError(t, err)
		ids = append(ids, u.ID)
	}
	alice, bob, carol := ids[0], ids[1], ids[2]

	engine := core.NewEngine(nil)
	msgs := messages.New(st, engine, nil)
	a, err := msgs.Send(ctx, alice, bob, "hi", nil)
	require.NoError(t, err)
	_, err = msgs.Send(ctx, bob, alice, "hey", &a.ID)
	require.NoError(t, err)
	_, err = msgs.Edit(ctx, alice, a.ID, "hi there", 0)
	require.NoError(t, err)
	kept, err := msgs.Send(ctx, bob, carol, "unrelated", nil)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc := New(st, engine, m, nil)

	removed, stats, err := svc.DeleteAccount(ctx, alice)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.EqualValues(t, 1, stats.SentMessages)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UsersPurged))

	_, err = svc.Get(ctx, alice)
	assert.ErrorIs(t, err, store.ErrNotFound)

	history, err := st.ListHistory(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	bobNotes, err := st.ListNotifications(ctx, bob, false)
	require.NoError(t, err)
	assert.Empty(t, bobNotes)

	carolUnread, err := st.ListUnreadForUser(ctx, carol)
	require.NoError(t, err)
	require.Len(t, carolUnread, 1)
	assert.Equal(t, kept.ID, carolUnread[0].ID)

	removed, stats, err = svc.DeleteAccount(ctx, alice)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, core.PurgeStats{}, stats)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UsersPurged))
}

type recordingDisconnector struct {
	calls []int64
	codes []string
}

func (r *recordingDisconnector) Disconnect(userID int64, reason *core.CoreError) {
	r.calls = append(r.calls, userID)
	r.codes = append(r.codes, reason.Code)
}

func TestDeleteAccount_EndsLiveSessions(t *testing.T) {
	st, err := sqlite.New(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	u, err := st.CreateUser(ctx, "alice", "alice@example.com", "hash")
	require.NoError(t, err)

	sessions := &recordingDisconnector{}
	svc := New(st, core.NewEngine(nil), nil, nil, WithDisconnector(sessions))

	removed, _, err := svc.DeleteAccount(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, removed)

	// A missing user has no sessions to end.
	removed, _, err = svc.DeleteAccount(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, removed)

	assert.Equal(t, []int64{u.ID}, sessions.calls)
	assert.Equal(t, []string{core.ErrCodeAccountGone}, sessions.codes)
}

func TestSetRole(t *testing.T) {
	st, err := sqlite.New(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	u, err := st.CreateUser(ctx, "alice", "alice@example.com", "hash")
	require.NoError(t, err)
	svc := New(st, core.NewEngine(nil), nil, nil)

	require.NoError(t, svc.SetRole(ctx, u.ID, "admin"))
	got, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RoleAdmin, got.Role)

	assert.ErrorIs(t, svc.SetRole(ctx, u.ID, "root"), ErrInvalidRole)
	assert.ErrorIs(t, svc.SetRole(ctx, 999, "moderator"), store.ErrNotFound)
}
