package messages

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirenote/internal/core"
	"github.com/vovakirdan/wirenote/internal/store"
	"github.com/vovakirdan/wirenote/internal/store/sqlite"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []core.NotificationEvent
}

func (r *recordingNotifier) Notify(ev core.NotificationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type fixture struct {
	store    *sqlite.SQLiteStore
	svc      *Service
	notifier *recordingNotifier
	alice    *store.User
	bob      *store.User
	carol    *store.User
}

func newFixture(t *testing.T, opts ...core.Option) *fixture {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "messages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	f := &fixture{store: st, notifier: &recordingNotifier{}}
	f.svc = New(st, core.NewEngine(nil, opts...), nil, WithNotifiers(f.notifier))

	for _, name := range []string{"alice", "bob", "carol"} {
		u, err := st.CreateUser(context.Background(), name, name+"@example.com", "hash")
		require.NoError(t, err)
		switch name {
		case "alice":
			f.alice = u
		case "bob":
			f.bob = u
		case "carol":
			f.carol = u
		}
	}
	return f
}

func (f *fixture) notifications(t *testing.T, userID int64) []*store.Notification {
	t.Helper()
	notes, err := f.store.ListNotifications(context.Background(), userID, false)
	require.NoError(t, err)
	return notes
}

func (f *fixture) notificationCount(t *testing.T) int {
	t.Helper()
	total := 0
	for _, u := range []*store.User{f.alice, f.bob, f.carol} {
		total += len(f.notifications(t, u.ID))
	}
	return total
}

func TestSend_OneNotificationPerMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pairs := [][2]*store.User{{f.alice, f.bob}, {f.bob, f.alice}, {f.carol, f.bob}, {f.alice, f.carol}, {f.bob, f.carol}}
	for i, p := range pairs {
		_, err := f.svc.Send(ctx, p[0].ID, p[1].ID, fmt.Sprintf("message %d", i), nil)
		require.NoError(t, err)
		assert.Equal(t, i+1, f.notificationCount(t))
	}
	assert.Len(t, f.notifier.events, len(pairs))
}

func TestSend_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, f.alice.ID, f.bob.ID, "   ", nil)
	assert.ErrorIs(t, err, core.ErrEmptyContent)

	_, err = f.svc.Send(ctx, f.alice.ID, 999, "hi", nil)
	assert.ErrorIs(t, err, ErrReceiverNotFound)
	assert.ErrorIs(t, err, store.ErrNotFound)

	missing := int64(999)
	_, err = f.svc.Send(ctx, f.alice.ID, f.bob.ID, "hi", &missing)
	assert.ErrorIs(t, err, core.ErrParentNotFound)

	root, err := f.svc.Send(ctx, f.alice.ID, f.bob.ID, "private", nil)
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, f.carol.ID, f.alice.ID, "butting in", &root.ID)
	assert.ErrorIs(t, err, core.ErrForbidden)

	assert.Equal(t, 1, f.notificationCount(t))
	assert.Len(t, f.notifier.events, 1)
}

func TestEdit_RecordsHistoryOnlyOnChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent, err := f.svc.Send(ctx, f.alice.ID, f.bob.ID, "hi", nil)
	require.NoError(t, err)

	same, err := f.svc.Edit(ctx, f.alice.ID, sent.ID, "hi", 0)
	require.NoError(t, err)
	assert.False(t, same.Edited)
	assert.EqualValues(t, 1, same.Version)
	history, err := f.svc.History(ctx, f.alice.ID, sent.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	edited, err := f.svc.Edit(ctx, f.alice.ID, sent.ID, "hi there", 0)
	require.NoError(t, err)
	assert.True(t, edited.Edited)
	assert.EqualValues(t, 2, edited.Version)

	history, err = f.svc.History(ctx, f.bob.ID, sent.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].OldContent)
	require.NotNil(t, history[0].EditedBy)
	assert.Equal(t, f.alice.ID, *history[0].EditedBy)

	// Editing back to the original is still a change.
	_, err = f.svc.Edit(ctx, f.alice.ID, sent.ID, "hi", 0)
	require.NoError(t, err)
	history, err = f.svc.History(ctx, f.alice.ID, sent.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hi there", history[0].OldContent)
}

func TestEdit_OnlySenderMayEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent, err := f.svc.Send(ctx, f.alice.ID, f.bob.ID, "hi", nil)
	require.NoError(t, err)

	_, err = f.svc.Edit(ctx, f.bob.ID, sent.ID, "hijacked", 0)
	assert.ErrorIs(t, err, core.ErrForbidden)

	got, err := f.store.GetMessage(ctx, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Content)
	assert.False(t, got.Edited)
}

func TestEdit_StaleVersionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent, err := f.svc.Send(ctx, f.alice.ID, f.bob.ID, "v1", nil)
	require.NoError(t, err)

	_, err = f.svc.Edit(ctx, f.alice.ID, sent.ID, "v2", sent.Version)
	require.NoError(t, err)

	_, err = f.svc.Edit(ctx, f.alice.ID, sent.ID, "v2 from stale tab", sent.Version)
	assert.ErrorIs(t, err, store.ErrConflict)

	history, err := f.svc.History(ctx, f.alice.ID, sent.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestEdit_ConcurrentEditsKeepHistoryConsistent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent, err := f.svc.Send(ctx, f.alice.ID, f.bob.ID, "original", nil)
	require.NoError(t, err)

	const editors = 8
	var wg sync.WaitGroup
	errs := make(chan error, editors)
	for i := 0; i < editors; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Edit(ctx, f.alice.ID, sent.ID, fmt.Sprintf("edit %d", i), 0)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	final, err := f.store.GetMessage(ctx, sent.ID)
	require.NoError(t, err)
	assert.True(t, final.Edited)
	assert.EqualValues(t, editors+1, final.Version)

	history, err := f.svc.History(ctx, f.alice.ID, sent.ID)
	require.NoError(t, err)
	require.Len(t, history, editors)

	// Oldest entry holds the original body; the remaining entries plus the
	// final content are exactly the written edits.
	sort.Slice(history, func(i, j int) bool { return history[i].ID < history[j].ID })
	assert.Equal(t, "original", history[0].OldContent)

	seen := []string{final.Content}
	for _, h := range history[1:] {
		seen = append(seen, h.OldContent)
	}
	want := make([]string, 0, editors)
	for i := 0; i < editors; i++ {
		want = append(want, fmt.Sprintf("edit %d", i))
	}
	assert.ElementsMatch(t, want, seen)
}

func TestEditedFlagMatchesHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 4; i++ {
		m, err := f.svc.Send(ctx, f.alice.ID, f.bob.ID, fmt.Sprintf("m%d", i), nil)
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}
	_, err := f.svc.Edit(ctx, f.alice.ID, ids[0], "m0", 0)
	require.NoError(t, err)
	_, err = f.svc.Edit(ctx, f.alice.ID, ids[1], "changed", 0)
	require.NoError(t, err)
	_, err = f.svc.Edit(ctx, f.alice.ID, ids[3], "changed", 0)
	require.NoError(t, err)
	_, err = f.svc.Edit(ctx, f.alice.ID, ids[3], "changed again", 0)
	require.NoError(t, err)

	for _, id := range ids {
		msg, err := f.store.GetMessage(ctx, id)
		require.NoError(t, err)
		history, err := f.store.ListHistory(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, len(history) >= 1, msg.Edited, "message %d", id)
	}
}

func TestDelete_OnlySender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent, err := f.svc.Send(ctx, f.alice.ID, f.bob.ID, "hi", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(ctx, f.bob.ID, sent.ID), core.ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, f.alice.ID, sent.ID))
	assert.ErrorIs(t, f.svc.Delete(ctx, f.alice.ID, sent.ID), store.ErrNotFound)
	assert.Zero(t, f.notificationCount(t))
}

func TestGet_ReceiverMarksRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent, err := f.svc.Send(ctx, f.alice.ID, f.bob.ID, "hi", nil)
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, f.carol.ID, sent.ID)
	assert.ErrorIs(t, err, core.ErrForbidden)

	bySender, err := f.svc.Get(ctx, f.alice.ID, sent.ID)
	require.NoError(t, err)
	assert.False(t, bySender.Read)

	unread, err := f.svc.UnreadForUser(ctx, f.bob.ID)
	require.NoError(t, err)
	require.Len(t, unread, 1)

	byReceiver, err := f.svc.Get(ctx, f.bob.ID, sent.ID)
	require.NoError(t, err)
	assert.True(t, byReceiver.Read)
	assert.Equal(t, "alice", byReceiver.SenderUsername)

	unread, err = f.svc.UnreadForUser(ctx, f.bob.ID)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestMarkRead_ReceiverOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent, err := f.svc.Send(ctx, f.alice.ID, f.bob.ID, "hi", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.MarkRead(ctx, f.alice.ID, sent.ID), core.ErrForbidden)
	require.NoError(t, f.svc.MarkRead(ctx, f.bob.ID, sent.ID))
	require.NoError(t, f.svc.MarkRead(ctx, f.bob.ID, sent.ID))
}

// End-to-end lifecycle: send, reply, edit, then remove the first user.
func TestLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u1, u2 := f.alice, f.bob

	a, err := f.svc.Send(ctx, u1.ID, u2.ID, "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.notificationCount(t))
	require.Len(t, f.notifications(t, u2.ID), 1)
	assert.Equal(t, store.NotificationNewMessage, f.notifications(t, u2.ID)[0].Type)

	b, err := f.svc.Send(ctx, u2.ID, u1.ID, "hello back", &a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.notificationCount(t))
	u1Notes := f.notifications(t, u1.ID)
	require.Len(t, u1Notes, 1)
	assert.Equal(t, store.NotificationMessageReply, u1Notes[0].Type)
	assert.Equal(t, b.ID, u1Notes[0].MessageID)

	edited, err := f.svc.Edit(ctx, u1.ID, a.ID, "hi there", 0)
	require.NoError(t, err)
	assert.True(t, edited.Edited)
	history, err := f.store.ListHistory(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].OldContent)

	engine := core.NewEngine(nil)
	require.NoError(t, f.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := engine.OnUserDeleted(ctx, tx, u1.ID); err != nil {
			return err
		}
		_, err := tx.DeleteUser(ctx, u1.ID)
		return err
	}))

	_, err = f.store.GetMessage(ctx, a.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.store.GetMessage(ctx, b.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, f.notifications(t, u1.ID))
	assert.Empty(t, f.notifications(t, u2.ID))
	history, err = f.store.ListHistory(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}
