package channels

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeChannel is a minimal Channel for manager tests. Disconnect closes the
// receive stream, per the Channel contract.
type fakeChannel struct {
	name      string
	messages  chan *Message
	closeOnce sync.Once
	connected bool
}

func newFakeChannel(name string) *fakeChannel {
	return &fakeChannel{name: name, messages: make(chan *Message, 8)}
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Connect(context.Context) error {
	f.connected = true
	return nil
}

func (f *fakeChannel) Disconnect() error {
	f.connected = false
	f.closeOnce.Do(func() { close(f.messages) })
	return nil
}

func (f *fakeChannel) Send(context.Context, string, *OutgoingMessage) error { return nil }
func (f *fakeChannel) Receive() <-chan *Message                             { return f.messages }
func (f *fakeChannel) IsConnected() bool                                    { return f.connected }
func (f *fakeChannel) Health() HealthStatus                                 { return HealthStatus{Connected: f.connected} }

func TestManager_ForwardsMessages(t *testing.T) {
	ch := newFakeChannel("fake")
	m := NewManager(nil)
	if err := m.Register(ch); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(m.Stop)

	ch.messages <- &Message{ID: "1", Channel: "fake", Content: "hi"}

	select {
	case msg := <-m.Messages():
		if msg.ID != "1" {
			t.Errorf("unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not forwarded")
	}
}

func TestManager_StopReturnsWhileIdle(t *testing.T) {
	// An idle listener blocks on Receive; Stop must still return because
	// disconnecting the channel closes its stream.
	ch := newFakeChannel("fake")
	m := NewManager(nil)
	if err := m.Register(ch); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return; idle listener has no exit path")
	}

	// The aggregated stream ends after Stop.
	if _, open := <-m.Messages(); open {
		t.Error("aggregated stream still open after Stop")
	}
}

func TestManager_RegisterDuplicate(t *testing.T) {
	m := NewManager(nil)
	if err := m.Register(newFakeChannel("fake")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := m.Register(newFakeChannel("fake")); err == nil {
		t.Error("expected error for duplicate channel name")
	}
}
