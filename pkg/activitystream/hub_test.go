package activitystream

import (
	"testing"
)

func TestHub_PublishStateWithNoSubscribersDoesNotBlock(t *testing.T) {
	hub := NewHub()
	hub.PublishState(Snapshot{OrchestratorState: "Idle"})
	if hub.Subscribers() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", hub.Subscribers())
	}
}

func TestHub_LateSubscriberGetsLastSnapshotFirst(t *testing.T) {
	hub := NewHub()
	hub.PublishState(Snapshot{OrchestratorState: "Executing"})

	ch, unsubscribe := hub.subscribe()
	defer unsubscribe()

	select {
	case ev := <-ch:
		if ev.name != "state" {
			t.Fatalf("expected state event first, got %q", ev.name)
		}
	default:
		t.Fatal("expected a queued state event for the late subscriber")
	}
}

func TestHub_BroadcastsToAllSubscribers(t *testing.T) {
	hub := NewHub()
	ch1, unsub1 := hub.subscribe()
	defer unsub1()
	ch2, unsub2 := hub.subscribe()
	defer unsub2()

	hub.PublishUpdate(Update{Metrics: Metrics{TasksTotal: 3}})

	for _, ch := range []chan event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.name != "update" {
				t.Fatalf("expected update event, got %q", ev.name)
			}
		default:
			t.Fatal("expected both subscribers to receive the update")
		}
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	ch, unsubscribe := hub.subscribe()
	unsubscribe()

	hub.PublishOplog(OplogEntry{ID: "op1"})

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}
