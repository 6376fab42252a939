// Package session tracks live ingestion sessions. A session couples one
// ingest.Source to a hub.Hub that normalizes and fans out its messages.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atikulmunna/flowscope/internal/hub"
	"github.com/atikulmunna/flowscope/internal/ingest"
	"github.com/atikulmunna/flowscope/internal/model"
	"github.com/atikulmunna/flowscope/internal/normalize"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExists   = errors.New("session already exists")
)

// Kind names the transport behind a session.
type Kind string

const (
	KindKafka   Kind = "kafka"
	KindGraphQL Kind = "graphql"
)

// Info describes what a session is connected to.
type Info struct {
	Kind     Kind     `json:"kind"`
	Broker   string   `json:"broker,omitempty"`
	Topics   []string `json:"topics,omitempty"`
	Endpoint string   `json:"endpoint,omitempty"`
}

// Session is one running source and its hub.
type Session struct {
	ID      string
	Info    Info
	Hub     *hub.Hub
	Started time.Time

	source ingest.Source
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Done is closed when the source and hub have both stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the source's terminal error, if any. Valid after Done.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Session) stop(ctx context.Context) error {
	s.cancel()
	closeErr := s.source.Close()
	select {
	case <-s.done:
		return closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Registry owns every live session.
type Registry struct {
	normalizer *normalize.Normalizer
	hubOpts    hub.Options
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry. Every hub it creates uses n and
// opts.
func NewRegistry(n *normalize.Normalizer, opts hub.Options, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &Registry{
		normalizer: n,
		hubOpts:    opts,
		logger:     logger,
		sessions:   make(map[string]*Session),
	}
}

// Create registers and starts a session. An empty id is replaced by a
// random UUID.
func (r *Registry) Create(id string, info Info, src ingest.Source) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	r.mu.Lock()
	if _, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return nil, ErrExists
	}
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan model.LiveMessage, 64)
	s := &Session{
		ID:      id,
		Info:    info,
		Hub:     hub.New(in, r.normalizer, r.hubOpts),
		Started: time.Now(),
		source:  src,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	r.sessions[id] = s
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(in)
		return src.Run(gctx, in)
	})
	g.Go(func() error {
		s.Hub.Start(gctx)
		return nil
	})
	go func() {
		s.err = g.Wait()
		if s.err != nil {
			r.logger.Error("session source failed", zap.String("session", id), zap.Error(s.err))
		} else {
			r.logger.Info("session ended", zap.String("session", id))
		}
		close(s.done)
	}()

	r.logger.Info("session started", zap.String("session", id), zap.String("kind", string(info.Kind)))
	return s, nil
}

// Lookup returns the session with the given id.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Dispose stops and removes one session, waiting for it until ctx ends.
// It returns the removed session so callers can read its final history.
func (r *Registry) Dispose(ctx context.Context, id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	if err := s.stop(ctx); err != nil {
		r.logger.Warn("stopping session", zap.String("session", id), zap.Error(err))
		return s, err
	}
	return s, nil
}

// DisposeAll stops every session concurrently. Sessions are removed from
// the registry even when stopping them fails or ctx expires.
func (r *Registry) DisposeAll(ctx context.Context) error {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var g errgroup.Group
	for _, s := range all {
		s := s
		g.Go(func() error {
			if err := s.stop(ctx); err != nil {
				r.logger.Warn("stopping session", zap.String("session", s.ID), zap.Error(err))
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// IDs returns the registered session ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dropped sums slow-consumer drops across all sessions.
func (r *Registry) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, s := range r.sessions {
		total += s.Hub.Dropped()
	}
	return total
}
