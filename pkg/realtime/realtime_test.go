package realtime

import (
	"testing"
	"time"
)

func TestHubFanOut(t *testing.T) {
	h := NewHub(4)
	id1, ch1 := h.Register()
	_, ch2 := h.Register()
	if h.Size() != 2 {
		t.Fatalf("expected 2 listeners, got %d", h.Size())
	}

	h.Broadcast(NewEvent(EventIndexBuilt, map[string]any{"table": "reports"}))
	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Type != EventIndexBuilt || ev.Data["table"] != "reports" || ev.ID == "" {
				t.Errorf("listener %d: unexpected event %+v", i, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("listener %d: no event", i)
		}
	}

	h.Unregister(id1)
	h.Unregister(id1)
	if _, ok := <-ch1; ok {
		t.Error("unregistered channel should be closed")
	}
	if h.Size() != 1 {
		t.Errorf("expected 1 listener, got %d", h.Size())
	}
}

func TestHubDropsForSlowListener(t *testing.T) {
	h := NewHub(1)
	_, ch := h.Register()
	h.Broadcast(NewEvent(EventDatabaseSwitched, nil))
	h.Broadcast(NewEvent(EventSwitchFailed, nil))

	ev := <-ch
	if ev.Type != EventDatabaseSwitched {
		t.Errorf("expected the first event, got %s", ev.Type)
	}
	select {
	case ev := <-ch:
		t.Errorf("second event should have been dropped, got %s", ev.Type)
	default:
	}

	h.Close()
	if _, ok := <-ch; ok || h.Size() != 0 {
		t.Error("Close should release every listener")
	}
}
