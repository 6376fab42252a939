package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/atikulmunna/flowscope/internal/model"
	"github.com/atikulmunna/flowscope/internal/normalize"
)

const subscriberBuffer = 1024

// Options tunes a Hub. Zero values fall back to the defaults below.
type Options struct {
	History int // messages kept for late subscribers and flow queries
	Backlog int // messages replayed to each new subscriber
	Logger  *zap.Logger
	// Observer sees every surviving message before it is broadcast. It
	// must not block.
	Observer func(model.ParsedMessage)
}

const (
	DefaultHistory = 500
	DefaultBacklog = 100
)

// Hub receives live messages, normalizes them, and broadcasts the results
// to all subscribers. Messages whose level is "unknown" are filtered out.
type Hub struct {
	input      <-chan model.LiveMessage
	normalizer *normalize.Normalizer
	opts       Options
	logger     *zap.Logger

	mu          sync.RWMutex
	subscribers []chan model.ParsedMessage
	history     []model.ParsedMessage
	closed      bool

	dropped  atomic.Int64
	filtered atomic.Int64
	dropLog  *rate.Limiter // throttles slow-consumer warnings
	done     chan struct{}
}

// New creates a Hub that reads from input and normalizes with n.
func New(input <-chan model.LiveMessage, n *normalize.Normalizer, opts Options) *Hub {
	if opts.History <= 0 {
		opts.History = DefaultHistory
	}
	if opts.Backlog <= 0 {
		opts.Backlog = DefaultBacklog
	}
	if opts.Backlog > opts.History {
		opts.Backlog = opts.History
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Hub{
		input:      input,
		normalizer: n,
		opts:       opts,
		logger:     opts.Logger,
		dropLog:    rate.NewLimiter(rate.Every(time.Second), 1),
		done:       make(chan struct{}),
	}
}

// Subscribe returns a buffered channel that first replays the most recent
// messages and then receives every new one. Each subscriber gets its own
// copy. The channel is closed when the hub stops.
func (h *Hub) Subscribe() <-chan model.ParsedMessage {
	ch := make(chan model.ParsedMessage, max(subscriberBuffer, h.opts.Backlog))

	h.mu.Lock()
	defer h.mu.Unlock()

	start := len(h.history) - h.opts.Backlog
	if start < 0 {
		start = 0
	}
	for _, m := range h.history[start:] {
		ch <- m
	}
	if h.closed {
		close(ch)
		return ch
	}
	h.subscribers = append(h.subscribers, ch)
	return ch
}

// Unsubscribe detaches ch and closes it. Unknown channels are ignored.
func (h *Hub) Unsubscribe(ch <-chan model.ParsedMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, sub := range h.subscribers {
		if sub == ch {
			h.subscribers = append(h.subscribers[:i], h.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

// History returns a copy of the retained messages, oldest first.
func (h *Hub) History() []model.ParsedMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]model.ParsedMessage(nil), h.history...)
}

// Dropped returns the total number of messages dropped due to slow consumers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Filtered returns how many messages were discarded for an unknown level.
func (h *Hub) Filtered() int64 { return h.filtered.Load() }

// Done is closed once Start has returned.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Start begins reading from the input channel, normalizing, and broadcasting.
// Blocks until the context is cancelled or the input channel is closed.
func (h *Hub) Start(ctx context.Context) {
	defer close(h.done)
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-h.input:
			if !ok {
				return
			}
			msg, keep := h.normalizer.Live(raw)
			if !keep {
				h.filtered.Add(1)
				continue
			}
			if h.opts.Observer != nil {
				h.opts.Observer(msg)
			}
			h.broadcast(msg)
		}
	}
}

// broadcast records msg and sends it to all subscribers.
// If a subscriber's channel is full, the message is dropped for that
// subscriber. Drop warnings are logged at most once per second.
func (h *Hub) broadcast(msg model.ParsedMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.history = append(h.history, msg)
	if over := len(h.history) - h.opts.History; over > 0 {
		h.history = append(h.history[:0], h.history[over:]...)
	}

	for _, ch := range h.subscribers {
		select {
		case ch <- msg:
		default:
			total := h.dropped.Add(1)
			if !h.dropLog.Allow() {
				continue
			}
			h.logger.Warn("dropped message for slow consumer",
				zap.String("flow_id", msg.FlowID),
				zap.Int64("total_dropped", total))
		}
	}
}

// closeAll closes all subscriber channels.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		close(ch)
	}
	h.subscribers = nil
	h.closed = true
}
