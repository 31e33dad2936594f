package messages

import (
	"context"
	"fmt"

	"github.com/vovakirdan/wirenote/internal/cache"
	"github.com/vovakirdan/wirenote/internal/core"
	"github.com/vovakirdan/wirenote/internal/store"
)

// ThreadNode is a message with its direct replies.
type ThreadNode struct {
	Message *store.MessageView
	Replies []*ThreadNode
}

// Size counts the messages in the subtree.
func (n *ThreadNode) Size() int {
	total := 1
	for _, r := range n.Replies {
		total += r.Size()
	}
	return total
}

// UnreadForUser returns the unread messages received by userID, newest first.
func (s *Service) UnreadForUser(ctx context.Context, userID int64) ([]*store.MessageView, error) {
	return cache.Load(s.reads, s.reads.Key("unread", userID), func() ([]*store.MessageView, error) {
		return s.store.ListUnreadForUser(ctx, userID)
	})
}

// Thread loads the subtree rooted at rootID with one query per depth level.
// Only participants of the root may read it.
func (s *Service) Thread(ctx context.Context, actorID, rootID int64) (*ThreadNode, error) {
	return cache.Load(s.reads, s.reads.Key("thread", actorID, rootID), func() (*ThreadNode, error) {
		return s.thread(ctx, actorID, rootID)
	})
}

func (s *Service) thread(ctx context.Context, actorID, rootID int64) (*ThreadNode, error) {
	root, err := s.store.GetMessageView(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if !participant(&root.Message, actorID) {
		return nil, fmt.Errorf("read thread %d: %w", rootID, core.ErrForbidden)
	}

	rootNode := &ThreadNode{Message: root}
	nodes := map[int64]*ThreadNode{root.ID: rootNode}
	level := []int64{root.ID}

	for depth := 0; len(level) > 0 && depth < s.engine.MaxThreadDepth(); depth++ {
		replies, err := s.store.ListReplies(ctx, level)
		if err != nil {
			return nil, fmt.Errorf("load thread level %d: %w", depth+1, err)
		}

		next := make([]int64, 0, len(replies))
		for _, r := range replies {
			if _, seen := nodes[r.ID]; seen || r.ParentID == nil {
				continue
			}
			parent, ok := nodes[*r.ParentID]
			if !ok {
				continue
			}
			node := &ThreadNode{Message: r}
			parent.Replies = append(parent.Replies, node)
			nodes[r.ID] = node
			next = append(next, r.ID)
		}
		level = next
	}
	return rootNode, nil
}
