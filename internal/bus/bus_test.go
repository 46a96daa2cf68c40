package bus

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"switchboard/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPublishSubscribe(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	b.Publish(domain.InboundMessage{Channel: "cli", UserID: "u1", Content: "hello"})

	select {
	case msg := <-b.Subscribe():
		if msg.Content != "hello" || msg.UserID != "u1" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestSendOutbound_RoutesByChannel(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	got := make(chan domain.OutboundMessage, 1)
	b.OnOutbound("telegram", func(msg domain.OutboundMessage) {
		got <- msg
	})

	b.SendOutbound(domain.OutboundMessage{Channel: "telegram", ChatID: "42", Content: "hi"})

	select {
	case msg := <-got:
		if msg.ChatID != "42" || msg.Content != "hi" {
			t.Fatalf("unexpected outbound: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("handler never invoked")
	}
}

func TestSendOutbound_UnknownChannelDropped(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	// Must not panic or block.
	b.SendOutbound(domain.OutboundMessage{Channel: "nowhere", Content: "lost"})
}

func TestPublish_AfterCloseIsNoop(t *testing.T) {
	b := New(10, testLogger())
	b.Close()

	// Must not panic on a closed bus.
	b.Publish(domain.InboundMessage{Channel: "cli", Content: "late"})
}

func TestClose_Idempotent(t *testing.T) {
	b := New(10, testLogger())
	b.Close()
	b.Close()
}

func TestClose_UnblocksSubscriber(t *testing.T) {
	b := New(10, testLogger())

	done := make(chan struct{})
	go func() {
		for range b.Subscribe() {
		}
		close(done)
	}()

	b.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscriber not released on close")
	}
}
