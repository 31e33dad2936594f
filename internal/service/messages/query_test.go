package messages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirenote/internal/cache"
	"github.com/vovakirdan/wirenote/internal/core"
	"github.com/vovakirdan/wirenote/internal/store"
)

func TestThread_LoadsAllLevels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.alice.ID, f.bob.ID

	root, err := f.svc.Send(ctx, a, b, "root", nil)
	require.NoError(t, err)
	r1, err := f.svc.Send(ctx, b, a, "r1", &root.ID)
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, a, b, "r2", &root.ID)
	require.NoError(t, err)
	r11, err := f.svc.Send(ctx, a, b, "r1.1", &r1.ID)
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, b, a, "r1.1.1", &r11.ID)
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, a, b, "unrelated", nil)
	require.NoError(t, err)

	thread, err := f.svc.Thread(ctx, b, root.ID)
	require.NoError(t, err)

	assert.Equal(t, 5, thread.Size())
	require.Len(t, thread.Replies, 2)
	assert.Equal(t, "r1", thread.Replies[0].Message.Content)
	assert.Equal(t, "r2", thread.Replies[1].Message.Content)
	require.Len(t, thread.Replies[0].Replies, 1)
	assert.Equal(t, "r1.1", thread.Replies[0].Replies[0].Message.Content)
	require.Len(t, thread.Replies[0].Replies[0].Replies, 1)
	assert.Equal(t, "bob", thread.Replies[0].Replies[0].Replies[0].Message.SenderUsername)

	sub, err := f.svc.Thread(ctx, a, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, sub.Size())
}

func TestThread_ParticipantsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root, err := f.svc.Send(ctx, f.alice.ID, f.bob.ID, "root", nil)
	require.NoError(t, err)

	_, err = f.svc.Thread(ctx, f.carol.ID, root.ID)
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func TestThread_DepthBound(t *testing.T) {
	f := newFixture(t, core.WithMaxThreadDepth(3))
	ctx := context.Background()
	a, b := f.alice.ID, f.bob.ID

	root, err := f.svc.Send(ctx, a, b, "root", nil)
	require.NoError(t, err)
	parent := root.ID
	for i := 0; i < 3; i++ {
		m, err := f.svc.Send(ctx, b, a, "reply", &parent)
		require.NoError(t, err)
		parent = m.ID
	}
	_, err = f.svc.Send(ctx, b, a, "too deep", &parent)
	assert.ErrorIs(t, err, core.ErrThreadTooDeep)

	thread, err := f.svc.Thread(ctx, a, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, thread.Size())
}

func TestReadCache_ServesUntilServiceWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reads, err := cache.New(cache.Config{}, nil)
	require.NoError(t, err)
	t.Cleanup(reads.Close)
	svc := New(f.store, core.NewEngine(nil), nil, WithReadCache(reads))
	a, b := f.alice.ID, f.bob.ID

	first, err := svc.Send(ctx, a, b, "first", nil)
	require.NoError(t, err)
	unread, err := svc.UnreadForUser(ctx, b)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	reads.Wait()

	// A write behind the service's back is not seen while the entry lives.
	require.NoError(t, f.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.MarkMessageRead(ctx, first.ID)
	}))
	unread, err = svc.UnreadForUser(ctx, b)
	require.NoError(t, err)
	assert.Len(t, unread, 1)

	// Writes through the service retire cached reads.
	second, err := svc.Send(ctx, a, b, "second", nil)
	require.NoError(t, err)
	unread, err = svc.UnreadForUser(ctx, b)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, second.ID, unread[0].ID)
	reads.Wait()

	require.NoError(t, svc.MarkRead(ctx, b, second.ID))
	unread, err = svc.UnreadForUser(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestReadCache_ThreadSeesNewReplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reads, err := cache.New(cache.Config{}, nil)
	require.NoError(t, err)
	t.Cleanup(reads.Close)
	svc := New(f.store, core.NewEngine(nil), nil, WithReadCache(reads))
	a, b := f.alice.ID, f.bob.ID

	root, err := svc.Send(ctx, a, b, "root", nil)
	require.NoError(t, err)
	thread, err := svc.Thread(ctx, a, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, thread.Size())
	reads.Wait()

	_, err = svc.Send(ctx, b, a, "reply", &root.ID)
	require.NoError(t, err)
	thread, err = svc.Thread(ctx, a, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, thread.Size())

	// Access is checked per viewer, never shared through the cache.
	reads.Wait()
	_, err = svc.Thread(ctx, f.carol.ID, root.ID)
	assert.ErrorIs(t, err, core.ErrForbidden)
}
