package events

import (
	"testing"
	"time"

	"github.com/rickgao/fmp-data/internal/model"
)

func jobEvent(entity string, status model.JobStatus) model.JobEvent {
	return model.JobEvent{
		From: model.StatusRunning,
		Job:  model.ImportJob{RunID: "run-1", Entity: entity, Status: status},
		At:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestHub_FanOut(t *testing.T) {
	h := NewHub(4, nil)
	a, unsubA := h.Subscribe()
	b, unsubB := h.Subscribe()
	defer unsubA()
	defer unsubB()

	h.Publish(jobEvent("symbols", model.StatusSucceeded))

	for name, ch := range map[string]<-chan model.JobEvent{"a": a, "b": b} {
		select {
		case ev := <-ch:
			if ev.Job.Entity != "symbols" || ev.Job.Status != model.StatusSucceeded {
				t.Errorf("subscriber %s got %+v", name, ev)
			}
		default:
			t.Errorf("subscriber %s received nothing", name)
		}
	}

	stats := h.Stats()
	if stats.Subscribers != 2 || stats.Published != 1 || stats.Delivered != 2 || stats.Dropped != 0 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestHub_SlowSubscriberDrops(t *testing.T) {
	h := NewHub(2, nil)
	ch, unsub := h.Subscribe()
	defer unsub()

	for i := 0; i < 5; i++ {
		h.Publish(jobEvent("daily_chart", model.StatusRunning))
	}

	if got := len(ch); got != 2 {
		t.Errorf("buffered = %d, want 2", got)
	}
	if got := h.Stats().Dropped; got != 3 {
		t.Errorf("Dropped = %d, want 3", got)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub(1, nil)
	ch, unsub := h.Subscribe()

	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Error("channel open after unsubscribe")
	}
	if got := h.Stats().Subscribers; got != 0 {
		t.Errorf("Subscribers = %d, want 0", got)
	}

	// Publishing with no subscribers is fine.
	h.Publish(jobEvent("x", model.StatusPending))
}

func TestHub_Close(t *testing.T) {
	h := NewHub(1, nil)
	ch, unsub := h.Subscribe()

	h.Close()
	if _, ok := <-ch; ok {
		t.Error("channel open after Close")
	}
	unsub()

	late, _ := h.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscription after Close should be closed")
	}
	h.Publish(jobEvent("x", model.StatusPending))
	if got := h.Stats().Published; got != 0 {
		t.Errorf("Published = %d after Close, want 0", got)
	}
}
