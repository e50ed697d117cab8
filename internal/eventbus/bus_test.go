package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()

	b := New()
	a, unsubA := b.Subscribe(4)
	defer unsubA()
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	Emit(b, ReminderSent, ReminderInfo{UserID: 7, EventID: 1})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case ev := <-ch:
			if ev.Type != ReminderSent || ev.Time.IsZero() {
				t.Fatalf("unexpected event %+v", ev)
			}
			if info, ok := ev.Data.(ReminderInfo); !ok || info.UserID != 7 {
				t.Fatalf("unexpected payload %#v", ev.Data)
			}
		case <-time.After(time.Second):
			t.Fatalf("event not delivered")
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})

	if ev := <-ch; ev.Type != "a" {
		t.Fatalf("got %q want a", ev.Type)
	}
	select {
	case ev := <-ch:
		t.Fatalf("second event should have been dropped, got %q", ev.Type)
	default:
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	b.Publish(Event{Type: "x"})
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
}

func TestEmitNilPublisher(t *testing.T) {
	t.Parallel()
	Emit(nil, ReminderSent, nil)
}
