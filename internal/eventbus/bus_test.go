package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	bus := New()
	_, ch1 := bus.Subscribe(8)
	_, ch2 := bus.Subscribe(8)

	bus.PublishNew(EventTaskDecomposed, "t1", "payload", map[string]string{"depth": "0"})

	for i, ch := range []<-chan *Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Type != EventTaskDecomposed || ev.ResourceID != "t1" {
				t.Errorf("subscriber %d got wrong event: %+v", i, ev)
			}
			if ev.ID == "" || ev.CreatedAt.IsZero() {
				t.Errorf("subscriber %d: event id and timestamp must be set", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive the event", i)
		}
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	bus := New()
	_, ch := bus.Subscribe(1)

	bus.PublishNew(EventTaskAtomic, "t1", "", nil)
	// Buffer is full now; this publish must not block.
	done := make(chan struct{})
	go func() {
		bus.PublishNew(EventTaskAtomic, "t2", "", nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}

	ev := <-ch
	if ev.ResourceID != "t1" {
		t.Errorf("expected the first event to survive, got %s", ev.ResourceID)
	}
	select {
	case ev := <-ch:
		t.Errorf("expected the second event to be dropped, got %s", ev.ResourceID)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New()
	id, ch := bus.Subscribe(1)
	bus.Unsubscribe(id)

	if _, open := <-ch; open {
		t.Error("channel should be closed after unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	bus.PublishNew(EventTaskAtomic, "t1", "", nil)
	// Double unsubscribe is a no-op.
	bus.Unsubscribe(id)
}
