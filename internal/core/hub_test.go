package core

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/wirenote/internal/store"
)

func TestHubDeliversNotificationToOwnerOnly(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	alice := NewClient("a", 1, "alice")
	aliceTab := NewClient("a2", 1, "alice")
	bob := NewClient("b", 2, "bob")
	hub.RegisterClient(alice)
	hub.RegisterClient(aliceTab)
	hub.RegisterClient(bob)

	hub.Notify(NotificationEvent{
		Notification: &store.Notification{ID: 7, UserID: 1, Type: store.NotificationNewMessage, Content: "New message from bob: hi..."},
		Sender:       &store.User{ID: 2, Username: "bob"},
	})

	for _, c := range []*Client{alice, aliceTab} {
		ev := mustEvent(t, c.Events, EventNotification)
		if ev.Notification.ID != 7 || ev.From != "bob" {
			t.Fatalf("unexpected event for %s: %+v", c.ID, ev)
		}
	}

	select {
	case ev := <-bob.Events:
		t.Fatalf("bob should not receive alice's notification, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubUnregisterClosesEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	alice := NewClient("a", 1, "alice")
	hub.RegisterClient(alice)
	hub.UnregisterClient(alice)

	select {
	case _, ok := <-alice.Events:
		if ok {
			t.Fatal("expected closed event channel")
		}
	case <-time.After(time.Second):
		t.Fatal("event channel was not closed")
	}

	// Double unregister is harmless.
	hub.UnregisterClient(alice)
}

func TestHubStopClosesClientsAndRejectsRegistration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	alice := NewClient("a", 1, "alice")
	if !hub.RegisterClient(alice) {
		t.Fatal("register should succeed while running")
	}
	cancel()
	<-stopped

	if _, ok := <-alice.Events; ok {
		t.Fatal("expected closed event channel after stop")
	}
	if hub.RegisterClient(NewClient("b", 2, "bob")) {
		t.Fatal("register should fail after stop")
	}
}

func TestHubNotifyIgnoresEmptyEvent(t *testing.T) {
	hub := NewHub(nil)
	hub.Notify(NotificationEvent{})
	if len(hub.deliveries) != 0 {
		t.Fatalf("expected no queued deliveries, got %d", len(hub.deliveries))
	}
}

func TestHubDisconnectSendsReasonAndDetaches(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	alice := NewClient("a", 1, "alice")
	aliceTab := NewClient("a2", 1, "alice")
	bob := NewClient("b", 2, "bob")
	hub.RegisterClient(alice)
	hub.RegisterClient(aliceTab)
	hub.RegisterClient(bob)

	hub.Disconnect(1, AccountDeleted())

	for _, c := range []*Client{alice, aliceTab} {
		ev := mustEvent(t, c.Events, EventError)
		if ev.Error == nil || ev.Error.Code != ErrCodeAccountGone {
			t.Fatalf("unexpected error event for %s: %+v", c.ID, ev)
		}
		select {
		case _, ok := <-c.Events:
			if ok {
				t.Fatalf("expected %s's channel to be closed", c.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s's channel was not closed", c.ID)
		}
	}

	// Later notifications for alice go nowhere; bob is untouched.
	hub.Notify(NotificationEvent{Notification: &store.Notification{ID: 9, UserID: 2}})
	ev := mustEvent(t, bob.Events, EventNotification)
	if ev.Notification.ID != 9 {
		t.Fatalf("unexpected event for bob: %+v", ev)
	}

	// The session's own unregister after a disconnect is harmless.
	hub.UnregisterClient(alice)
}
