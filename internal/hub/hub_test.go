package hub

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atikulmunna/flowscope/internal/model"
	"github.com/atikulmunna/flowscope/internal/normalize"
)

func live(offset int, value string) model.LiveMessage {
	return model.LiveMessage{Topic: "orders", Offset: fmt.Sprint(offset), Value: value}
}

func recv(t *testing.T, ch <-chan model.ParsedMessage) model.ParsedMessage {
	t.Helper()
	select {
	case m, ok := <-ch:
		require.True(t, ok, "channel closed")
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	return model.ParsedMessage{}
}

func TestHubBroadcast(t *testing.T) {
	input := make(chan model.LiveMessage, 10)
	h := New(input, normalize.New(nil), Options{})

	sub1 := h.Subscribe()
	sub2 := h.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Start(ctx)

	input <- live(1, `{"flowId":"f1","level":"ERROR"}`)

	for _, sub := range []<-chan model.ParsedMessage{sub1, sub2} {
		m := recv(t, sub)
		assert.Equal(t, "f1", m.FlowID)
		assert.Equal(t, "ERROR", m.Level)
	}
}

func TestHubFiltersUnknownLevel(t *testing.T) {
	input := make(chan model.LiveMessage, 10)
	h := New(input, normalize.New(nil), Options{})
	sub := h.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Start(ctx)

	input <- live(1, `{"flowId":"noise","level":"UNKNOWN"}`)
	input <- live(2, `{"flowId":"kept","level":"INFO"}`)

	assert.Equal(t, "kept", recv(t, sub).FlowID)
	assert.Equal(t, int64(1), h.Filtered())
}

func TestHubBacklogReplay(t *testing.T) {
	input := make(chan model.LiveMessage, 10)
	h := New(input, normalize.New(nil), Options{History: 5, Backlog: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Start(ctx)

	for i := 0; i < 7; i++ {
		input <- live(i, fmt.Sprintf(`{"flowId":"f%d"}`, i))
	}
	assert.Eventually(t, func() bool {
		hist := h.History()
		return len(hist) == 5 && hist[4].FlowID == "f6"
	}, time.Second, 10*time.Millisecond)

	hist := h.History()
	assert.Equal(t, "f2", hist[0].FlowID)
	assert.Equal(t, "f6", hist[4].FlowID)

	late := h.Subscribe()
	assert.Equal(t, "f5", recv(t, late).FlowID)
	assert.Equal(t, "f6", recv(t, late).FlowID)
}

func TestHubUnsubscribe(t *testing.T) {
	h := New(make(chan model.LiveMessage), normalize.New(nil), Options{})
	sub := h.Subscribe()
	h.Unsubscribe(sub)

	_, ok := <-sub
	assert.False(t, ok)
	h.Unsubscribe(sub) // second call is a no-op
}

func TestHubClosesSubscribersWhenInputEnds(t *testing.T) {
	input := make(chan model.LiveMessage, 1)
	h := New(input, normalize.New(nil), Options{})
	sub := h.Subscribe()

	input <- live(1, `{"flowId":"last"}`)
	close(input)
	h.Start(context.Background())

	assert.Equal(t, "last", recv(t, sub).FlowID)
	_, ok := <-sub
	assert.False(t, ok)

	select {
	case <-h.Done():
	default:
		t.Fatal("Done not closed")
	}

	// Subscribing after the hub stopped still yields the backlog.
	after := h.Subscribe()
	assert.Equal(t, "last", recv(t, after).FlowID)
	_, ok = <-after
	assert.False(t, ok)
}

func TestHubObserver(t *testing.T) {
	input := make(chan model.LiveMessage, 2)
	seen := make(chan string, 2)
	h := New(input, normalize.New(nil), Options{Observer: func(m model.ParsedMessage) { seen <- m.FlowID }})

	input <- live(1, `{"flowId":"a"}`)
	input <- live(2, `{"flowId":"b","level":"unknown"}`)
	close(input)
	h.Start(context.Background())

	assert.Equal(t, "a", <-seen)
	assert.Empty(t, seen)
}

func TestHubSlowConsumer(t *testing.T) {
	input := make(chan model.LiveMessage, 10)
	h := New(input, normalize.New(nil), Options{})

	// Subscribe but never read, simulating a slow consumer.
	_ = h.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Start(ctx)

	// Fill beyond the subscriber buffer.
	for i := 0; i < subscriberBuffer+100; i++ {
		input <- live(i, "line")
	}

	assert.Eventually(t, func() bool { return h.Dropped() > 0 }, 2*time.Second, 10*time.Millisecond)
}
