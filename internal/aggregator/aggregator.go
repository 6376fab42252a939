package aggregator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/atikulmunna/flowscope/internal/model"
)

const epsWindow = 5 * time.Second

// Stats holds a point-in-time snapshot of aggregated metrics.
type Stats struct {
	Uptime          string           `json:"uptime"`
	TotalEvents     int64            `json:"total_events"`
	EPS             float64          `json:"eps"`
	LevelCounts     map[string]int64 `json:"level_counts"`
	SourceCounts    map[string]int64 `json:"source_counts"`
	DistinctFlows   int              `json:"distinct_flows"`
	DroppedMessages int64            `json:"dropped_messages"`
	ActiveSessions  int              `json:"active_sessions"`
}

// Aggregator consumes normalized messages and computes time-windowed metrics.
type Aggregator struct {
	mu           sync.RWMutex
	startTime    time.Time
	totalEvents  int64
	levelCounts  map[string]int64
	sourceCounts map[string]int64
	flows        map[string]struct{}
	window       []time.Time // receive times for EPS calculation
	dropped      func() int64
	sessions     func() int
	entries      chan model.ParsedMessage
}

// New creates an Aggregator. droppedFn and sessionsFn provide live values
// from the session registry; either may be nil.
func New(droppedFn func() int64, sessionsFn func() int) *Aggregator {
	if droppedFn == nil {
		droppedFn = func() int64 { return 0 }
	}
	if sessionsFn == nil {
		sessionsFn = func() int { return 0 }
	}
	return &Aggregator{
		startTime:    time.Now(),
		levelCounts:  make(map[string]int64),
		sourceCounts: make(map[string]int64),
		flows:        make(map[string]struct{}),
		dropped:      droppedFn,
		sessions:     sessionsFn,
		entries:      make(chan model.ParsedMessage, 4096),
	}
}

// Observe queues msg for counting without blocking. It has the shape of a
// hub observer. Messages that arrive while the queue is full are not
// counted.
func (a *Aggregator) Observe(msg model.ParsedMessage) {
	select {
	case a.entries <- msg:
	default:
	}
}

// Snapshot returns the current metrics.
func (a *Aggregator) Snapshot() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	levels := make(map[string]int64, len(a.levelCounts))
	for k, v := range a.levelCounts {
		levels[k] = v
	}
	sources := make(map[string]int64, len(a.sourceCounts))
	for k, v := range a.sourceCounts {
		sources[k] = v
	}

	cutoff := time.Now().Add(-epsWindow)
	var recent int
	for _, t := range a.window {
		if t.After(cutoff) {
			recent++
		}
	}

	return Stats{
		Uptime:          time.Since(a.startTime).Truncate(time.Second).String(),
		TotalEvents:     a.totalEvents,
		EPS:             float64(recent) / epsWindow.Seconds(),
		LevelCounts:     levels,
		SourceCounts:    sources,
		DistinctFlows:   len(a.flows),
		DroppedMessages: a.dropped(),
		ActiveSessions:  a.sessions(),
	}
}

// Start begins consuming observed messages and updating metrics. Blocks
// until the context is cancelled.
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.entries:
			a.record(msg)
		case <-ticker.C:
			a.prune()
		}
	}
}

func (a *Aggregator) record(msg model.ParsedMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalEvents++
	level := strings.ToUpper(msg.Level)
	if level == "" {
		level = "NONE"
	}
	a.levelCounts[level]++
	a.sourceCounts[string(msg.FlowIDSource)]++
	if msg.FlowID != model.UnknownFlowID {
		a.flows[msg.FlowID] = struct{}{}
	}
	a.window = append(a.window, time.Now())
}

// prune removes timestamps that fell out of the EPS window.
func (a *Aggregator) prune() {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().Add(-epsWindow)
	i := 0
	for _, t := range a.window {
		if t.After(cutoff) {
			a.window[i] = t
			i++
		}
	}
	a.window = a.window[:i]
}
