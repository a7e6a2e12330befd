package jobs

import (
	"errors"
	"testing"

	"channel-analytics/internal/domain"
)

// TestEventBusSince verifies incremental event reads by sequence.
func TestEventBusSince(t *testing.T) {
	bus := NewEventBus(3)
	bus.Publish(Event{Type: EventTypeStatus, Message: "1"})
	bus.Publish(Event{Type: EventTypeStatus, Message: "2"})
	bus.Publish(Event{Type: EventTypeStatus, Message: "3"})

	events := bus.Since(1)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Seq != 2 || events[1].Seq != 3 {
		t.Fatalf("unexpected seqs: %+v", events)
	}
}

// TestEventBusCapsHistory verifies buffer limit trimming behavior.
func TestEventBusCapsHistory(t *testing.T) {
	bus := NewEventBus(2)
	bus.Publish(Event{Message: "1"})
	bus.Publish(Event{Message: "2"})
	bus.Publish(Event{Message: "3"})

	events := bus.Since(0)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Message != "2" || events[1].Message != "3" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

// TestJobEventsComplete verifies a completed job yields status and result events.
func TestJobEventsComplete(t *testing.T) {
	job := domain.Job{
		ID:            "J1",
		OverallStatus: domain.OverallStatusComplete,
		Tasks: []domain.TaskStatus{
			{TaskNumber: 1, Status: domain.TaskStateDone, ResultLink: "https://sheet/1"},
			{TaskNumber: 2, Status: domain.TaskStateFailed, Error: "quota"},
		},
	}

	events := JobEvents(job, nil)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Type != EventTypeStatus || len(events[0].Tasks) != 2 {
		t.Fatalf("unexpected status event: %+v", events[0])
	}
	if events[1].Type != EventTypeResult || len(events[1].ResultLinks) != 1 || events[1].ResultLinks[0] != "https://sheet/1" {
		t.Fatalf("unexpected result event: %+v", events[1])
	}
}

// TestJobEventsError verifies a failure yields a single error event.
func TestJobEventsError(t *testing.T) {
	events := JobEvents(domain.Job{ID: "J1"}, errors.New("status: unexpected status 502 Bad Gateway"))
	if len(events) != 1 || events[0].Type != EventTypeError || events[0].Message == "" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

// TestAuthEvent verifies auth snapshots map to auth events.
func TestAuthEvent(t *testing.T) {
	event := AuthEvent(domain.AuthSnapshot{State: domain.AuthStateUnauthenticated, Reason: "session expired"})
	if event.Type != EventTypeAuth || event.AuthState != domain.AuthStateUnauthenticated || event.Message != "session expired" {
		t.Fatalf("unexpected event: %+v", event)
	}
}
