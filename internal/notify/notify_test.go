package notify

import (
	"context"
	"testing"
	"time"
)

func TestPublishWithoutConnectionFails(t *testing.T) {
	t.Parallel()

	n := NewNotifier(Config{Broker: "tcp://127.0.0.1:1", TopicPrefix: "radmix"})
	err := n.Publish(context.Background(), Event{
		Type:          EventPaused,
		CompositionID: "cmp-1",
		Timestamp:     time.Unix(0, 0),
	})
	if err == nil {
		t.Fatal("expected publish without a connection to fail")
	}
}

func TestIsConnectedFalseBeforeConnect(t *testing.T) {
	t.Parallel()

	n := NewNotifier(Config{Broker: "tcp://127.0.0.1:1"})
	if n.IsConnected() {
		t.Error("expected IsConnected to report false before Connect")
	}
}

func TestConnectRejectsUnresolvableBroker(t *testing.T) {
	t.Parallel()

	n := NewNotifier(Config{Broker: "tcp://radmix-unresolvable.invalid:1883"})
	err := n.Connect(context.Background())
	if err == nil {
		t.Fatal("expected Connect to fail for an unresolvable hostname")
	}
}

func TestDispatchInvokesRegisteredHooks(t *testing.T) {
	defer ClearEventHooks()

	var got Event
	AddEventHook(func(ev Event) { got = ev })

	want := Event{Type: EventSeek, CompositionID: "cmp-1", Timestamp: time.Unix(1, 0)}
	Dispatch(want)

	if got != want {
		t.Fatalf("hook received %+v, want %+v", got, want)
	}
}

func TestDispatchWithoutHooksIsNoop(t *testing.T) {
	defer ClearEventHooks()
	ClearEventHooks()

	Dispatch(Event{Type: EventPaused, CompositionID: "cmp-1"})
}
