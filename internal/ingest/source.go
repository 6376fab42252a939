// Package ingest adapts transports (Kafka, GraphQL subscriptions) into a
// stream of model.LiveMessage values.
package ingest

import (
	"context"
	"errors"
	"strings"

	"github.com/atikulmunna/flowscope/internal/model"
)

// Source delivers live messages in arrival order until ctx is cancelled,
// the transport ends, or Close is called. Run returns nil on a clean stop.
type Source interface {
	Run(ctx context.Context, out chan<- model.LiveMessage) error
	Close() error
}

//nolint:stylecheck // capitalised: returned verbatim to API clients
var (
	ErrInvalidBrokers = errors.New("Invalid broker configuration")
	ErrNoTopics       = errors.New("No valid topics provided")
)

// ParseList splits a comma-separated list, trimming entries and dropping
// empty ones.
func ParseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// deliver sends msg unless ctx ends first.
func deliver(ctx context.Context, out chan<- model.LiveMessage, msg model.LiveMessage) bool {
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
