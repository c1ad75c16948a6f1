package ws

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestHubSubscribeAndPublish(t *testing.T) {
	hub := NewHub()
	client := NewClient(nil)

	hub.Subscribe(UserChannel("u-1"), client)
	hub.Publish(UserChannel("u-1"), []byte(`{"event":"payment_reconciled"}`))

	select {
	case msg := <-client.out:
		if string(msg) != `{"event":"payment_reconciled"}` {
			t.Fatalf("unexpected payload: %s", string(msg))
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for message")
	}

	hub.UnsubscribeAll(client)
	if hub.SubscriberCount(UserChannel("u-1")) != 0 {
		t.Fatalf("expected no subscribers after unsubscribe")
	}
}

func TestHubDoesNotCrossUsers(t *testing.T) {
	hub := NewHub()
	client := NewClient(nil)
	hub.Subscribe(UserChannel("u-1"), client)

	hub.Publish(UserChannel("u-2"), []byte(`{}`))

	select {
	case msg := <-client.out:
		t.Fatalf("unexpected delivery: %s", string(msg))
	default:
	}
}

func TestClosedClientIgnoresSends(t *testing.T) {
	client := NewClient(nil)
	client.close()
	client.send([]byte(`{}`))
	client.close()
}

type fakeEventSource struct {
	latest int64
	events []UserEvent
}

func (f *fakeEventSource) LatestEventID(context.Context) (int64, error) { return f.latest, nil }

func (f *fakeEventSource) ListUserEventsSince(_ context.Context, lastID int64, _ int32) ([]UserEvent, error) {
	var out []UserEvent
	for _, ev := range f.events {
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func TestNotifierRoutesEventsToOwner(t *testing.T) {
	hub := NewHub()
	owner := NewClient(nil)
	other := NewClient(nil)
	hub.Subscribe(UserChannel("u-1"), owner)
	hub.Subscribe(UserChannel("u-2"), other)

	src := &fakeEventSource{events: []UserEvent{
		{ID: 1, Topic: "payment.reconciled", UserID: "u-1", Payload: json.RawMessage(`{"reference":"LOAN_1_AB","status":"success"}`), RecordedAt: time.Now()},
		{ID: 2, Topic: "something.else", UserID: "u-2", Payload: json.RawMessage(`{}`)},
	}}
	n := NewNotifier(src, hub, nil, time.Second)

	if err := n.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if n.lastID != 2 {
		t.Fatalf("expected cursor 2, got %d", n.lastID)
	}

	select {
	case msg := <-owner.out:
		if !strings.Contains(string(msg), `"payment_reconciled"`) || !strings.Contains(string(msg), "LOAN_1_AB") {
			t.Fatalf("unexpected payload: %s", string(msg))
		}
	default:
		t.Fatalf("owner did not receive event")
	}
	select {
	case msg := <-other.out:
		t.Fatalf("unknown topic must not be forwarded: %s", string(msg))
	default:
	}

	if err := n.tick(context.Background()); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	select {
	case msg := <-owner.out:
		t.Fatalf("event replayed: %s", string(msg))
	default:
	}
}

func drain(c *Client) []string {
	var got []string
	for {
		select {
		case msg := <-c.out:
			got = append(got, string(msg))
		default:
			return got
		}
	}
}

func reconciled(id int64, ref string) UserEvent {
	return UserEvent{ID: id, Topic: "payment.reconciled", UserID: "u-1", Payload: json.RawMessage(`{"reference":"` + ref + `"}`), RecordedAt: time.Now()}
}

func TestNotifierDeliversLateCommittedLowerID(t *testing.T) {
	hub := NewHub()
	owner := NewClient(nil)
	hub.Subscribe(UserChannel("u-1"), owner)

	// Id 2 was assigned before id 3 but commits after it.
	src := &fakeEventSource{events: []UserEvent{reconciled(1, "REF_1"), reconciled(3, "REF_3")}}
	n := NewNotifier(src, hub, nil, time.Second)

	if err := n.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := drain(owner); len(got) != 2 {
		t.Fatalf("expected 2 events, got %v", got)
	}

	src.events = append(src.events, reconciled(2, "REF_2"))
	if err := n.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	got := drain(owner)
	if len(got) != 1 || !strings.Contains(got[0], "REF_2") {
		t.Fatalf("expected only the late event, got %v", got)
	}

	if err := n.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := drain(owner); len(got) != 0 {
		t.Fatalf("events replayed: %v", got)
	}
}

func TestNotifierSkipsEventsAtOrBelowStartup(t *testing.T) {
	hub := NewHub()
	owner := NewClient(nil)
	hub.Subscribe(UserChannel("u-1"), owner)

	src := &fakeEventSource{latest: 5, events: []UserEvent{reconciled(4, "OLD"), reconciled(6, "NEW")}}
	n := NewNotifier(src, hub, nil, time.Second)
	n.floor, n.lastID = 5, 5

	if err := n.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	got := drain(owner)
	if len(got) != 1 || !strings.Contains(got[0], "NEW") {
		t.Fatalf("expected only the post-startup event, got %v", got)
	}
}

func TestNotifierForgetsIDsBelowWindow(t *testing.T) {
	hub := NewHub()
	src := &fakeEventSource{}
	for id := int64(1); id <= 10; id++ {
		src.events = append(src.events, reconciled(id, "REF"))
	}
	n := NewNotifier(src, hub, nil, time.Second)
	n.lookback = 3

	if err := n.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if n.lastID != 10 {
		t.Fatalf("expected cursor 10, got %d", n.lastID)
	}
	for id := range n.delivered {
		if id <= 7 {
			t.Fatalf("id %d kept below window start 7", id)
		}
	}
	if len(n.delivered) != 3 {
		t.Fatalf("expected 3 ids inside the window, got %d", len(n.delivered))
	}
}
