package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atikulmunna/flowscope/internal/hub"
	"github.com/atikulmunna/flowscope/internal/model"
	"github.com/atikulmunna/flowscope/internal/normalize"
)

// fakeSource emits its messages, then blocks until cancelled or closed.
type fakeSource struct {
	msgs   []model.LiveMessage
	err    error // returned right after emitting, when set
	once   sync.Once
	closed chan struct{}
}

func newFakeSource(msgs ...model.LiveMessage) *fakeSource {
	return &fakeSource{msgs: msgs, closed: make(chan struct{})}
}

func (f *fakeSource) Run(ctx context.Context, out chan<- model.LiveMessage) error {
	for _, m := range f.msgs {
		select {
		case out <- m:
		case <-ctx.Done():
			return nil
		}
	}
	if f.err != nil {
		return f.err
	}
	select {
	case <-ctx.Done():
	case <-f.closed:
	}
	return nil
}

func (f *fakeSource) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func newRegistry() *Registry {
	return NewRegistry(normalize.New(nil), hub.Options{}, zap.NewNop())
}

func TestRegistryCreateLookupDispose(t *testing.T) {
	r := newRegistry()
	src := newFakeSource(model.LiveMessage{Topic: "t", Offset: "0", Value: `{"flowId":"f1"}`})

	s, err := r.Create("c1", Info{Kind: KindKafka, Broker: "b:9092", Topics: []string{"t"}}, src)
	require.NoError(t, err)
	assert.Equal(t, "c1", s.ID)
	assert.Equal(t, 1, r.Len())

	got, ok := r.Lookup("c1")
	require.True(t, ok)
	assert.Same(t, s, got)

	assert.Eventually(t, func() bool { return len(s.Hub.History()) == 1 }, time.Second, 10*time.Millisecond)

	disposed, err := r.Dispose(context.Background(), "c1")
	require.NoError(t, err)
	assert.Same(t, s, disposed)
	assert.Equal(t, 0, r.Len())
	<-s.Done()
	assert.NoError(t, s.Err())
	assert.Equal(t, "f1", disposed.Hub.History()[0].FlowID)
}

func TestRegistryCreateGeneratesID(t *testing.T) {
	r := newRegistry()
	s, err := r.Create("", Info{Kind: KindGraphQL}, newFakeSource())
	require.NoError(t, err)
	assert.Len(t, s.ID, 36)
	require.NoError(t, r.DisposeAll(context.Background()))
}

func TestRegistryDuplicateID(t *testing.T) {
	r := newRegistry()
	_, err := r.Create("dup", Info{}, newFakeSource())
	require.NoError(t, err)
	_, err = r.Create("dup", Info{}, newFakeSource())
	assert.ErrorIs(t, err, ErrExists)
	require.NoError(t, r.DisposeAll(context.Background()))
}

func TestRegistryDisposeUnknown(t *testing.T) {
	_, err := newRegistry().Dispose(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "session not found")
}

func TestRegistryDisposeAll(t *testing.T) {
	r := newRegistry()
	var sessions []*Session
	for _, id := range []string{"b", "a", "c"} {
		s, err := r.Create(id, Info{}, newFakeSource())
		require.NoError(t, err)
		sessions = append(sessions, s)
	}
	assert.Equal(t, []string{"a", "b", "c"}, r.IDs())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.DisposeAll(ctx))
	assert.Equal(t, 0, r.Len())
	for _, s := range sessions {
		<-s.Done()
	}
}

func TestSessionSourceError(t *testing.T) {
	r := newRegistry()
	src := newFakeSource()
	src.err = errors.New("broker unreachable")

	s, err := r.Create("e", Info{}, src)
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
	}
	assert.EqualError(t, s.Err(), "broker unreachable")

	// The hub closed its subscribers when the source failed.
	_, ok := <-s.Hub.Subscribe()
	assert.False(t, ok)
}

func TestRegistryDropped(t *testing.T) {
	r := newRegistry()
	_, err := r.Create("d", Info{}, newFakeSource())
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.Dropped())
	require.NoError(t, r.DisposeAll(context.Background()))
}
