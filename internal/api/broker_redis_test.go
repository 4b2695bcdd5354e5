package api

import (
	"io"
	"testing"
)

type fakePubSub struct {
	closed bool
}

func (f *fakePubSub) Close() error {
	f.closed = true
	return nil
}

func TestRedisBrokerUnsubscribeLeavesChannelOpen(t *testing.T) {
	b := &RedisBroker{subs: map[chan SSEEvent]io.Closer{}}
	ch := make(chan SSEEvent, 1)
	ps := &fakePubSub{}
	b.subs[ch] = ps

	b.Unsubscribe("p1", ch)
	if !ps.closed {
		t.Fatal("pubsub not closed on unsubscribe")
	}
	if _, ok := b.subs[ch]; ok {
		t.Fatal("channel still tracked after unsubscribe")
	}
	// the channel must stay open: only the reader goroutine closes it,
	// so a send racing the unsubscribe cannot panic
	select {
	case ch <- SSEEvent{Type: "optimization.started"}:
	default:
		t.Fatal("channel unusable after unsubscribe")
	}

	// unknown channels are a no-op
	b.Unsubscribe("p1", make(chan SSEEvent))
}
