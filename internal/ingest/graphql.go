package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/atikulmunna/flowscope/internal/model"
)

// Subprotocol spoken by GraphQLSource.
const GraphQLSubprotocol = "graphql-transport-ws"

// TopicGraphQL is the topic assigned to subscription events.
const TopicGraphQL = "graphql"

const subscriptionID = "1"

// Message types of the graphql-transport-ws protocol.
const (
	gqlConnectionInit = "connection_init"
	gqlConnectionAck  = "connection_ack"
	gqlPing           = "ping"
	gqlPong           = "pong"
	gqlSubscribe      = "subscribe"
	gqlNext           = "next"
	gqlError          = "error"
	gqlComplete       = "complete"
)

// ErrMissingSubscription is returned when the endpoint or query is blank.
//nolint:stylecheck // capitalised: returned verbatim to API clients
var ErrMissingSubscription = errors.New("Please provide both endpoint and subscription query")

// GraphQLConfig describes one subscription.
type GraphQLConfig struct {
	Endpoint         string
	Query            string
	Variables        json.RawMessage
	HandshakeTimeout time.Duration
}

type gqlMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Query     string          `json:"query"`
	Variables json.RawMessage `json:"variables,omitempty"`
}

// GraphQLSource runs one subscription over a WebSocket. Each "next"
// payload becomes a LiveMessage whose offset is its sequence number.
type GraphQLSource struct {
	cfg    GraphQLConfig
	dialer *websocket.Dialer
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

var _ Source = (*GraphQLSource)(nil)

// NewGraphQLSource validates cfg. The connection is opened by Run.
func NewGraphQLSource(cfg GraphQLConfig, logger *zap.Logger) (*GraphQLSource, error) {
	if cfg.Endpoint == "" || cfg.Query == "" {
		return nil, ErrMissingSubscription
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphQLSource{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Subprotocols:     []string{GraphQLSubprotocol},
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: logger,
		now:    time.Now,
	}, nil
}

// Run dials, subscribes and streams events. It returns nil when the server
// completes the subscription or the source is closed, and an error for
// protocol failures and "error" messages.
func (g *GraphQLSource) Run(ctx context.Context, out chan<- model.LiveMessage) error {
	conn, _, err := g.dialer.DialContext(ctx, g.cfg.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", g.cfg.Endpoint, err)
	}
	if !g.attach(conn) {
		conn.Close()
		return nil
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			g.Close()
		case <-stop:
		}
	}()

	if err := g.handshake(conn); err != nil {
		g.Close()
		return err
	}
	g.logger.Info("graphql subscription started", zap.String("endpoint", g.cfg.Endpoint))

	var seq int64
	for {
		msg, err := g.read(conn)
		if err != nil {
			if g.isClosed() {
				return nil
			}
			g.Close()
			return fmt.Errorf("read subscription: %w", err)
		}

		switch msg.Type {
		case gqlNext:
			if msg.ID != subscriptionID {
				continue
			}
			live := model.LiveMessage{
				Topic:     TopicGraphQL,
				Offset:    strconv.FormatInt(seq, 10),
				Value:     string(msg.Payload),
				Headers:   map[string]string{},
				Timestamp: g.now().UnixMilli(),
			}
			seq++
			if !deliver(ctx, out, live) {
				return nil
			}
		case gqlPing:
			if err := g.write(conn, gqlMessage{Type: gqlPong}); err != nil {
				g.Close()
				return fmt.Errorf("write pong: %w", err)
			}
		case gqlError:
			g.Close()
			return fmt.Errorf("subscription error: %s", msg.Payload)
		case gqlComplete:
			g.logger.Info("graphql subscription completed", zap.String("endpoint", g.cfg.Endpoint))
			g.Close()
			return nil
		}
	}
}

// Close ends the subscription and the connection. It is safe to call more
// than once.
func (g *GraphQLSource) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	if g.conn == nil {
		return nil
	}
	// Best effort; the peer may already be gone.
	_ = g.writeLocked(g.conn, gqlMessage{ID: subscriptionID, Type: gqlComplete})
	return g.conn.Close()
}

func (g *GraphQLSource) attach(conn *websocket.Conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.conn = conn
	return true
}

func (g *GraphQLSource) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

func (g *GraphQLSource) handshake(conn *websocket.Conn) error {
	if err := g.write(conn, gqlMessage{Type: gqlConnectionInit, Payload: json.RawMessage(`{}`)}); err != nil {
		return fmt.Errorf("connection_init: %w", err)
	}

	if err := conn.SetReadDeadline(g.now().Add(g.cfg.HandshakeTimeout)); err != nil {
		return err
	}
	for {
		msg, err := g.read(conn)
		if err != nil {
			return fmt.Errorf("waiting for connection_ack: %w", err)
		}
		if msg.Type == gqlPing {
			if err := g.write(conn, gqlMessage{Type: gqlPong}); err != nil {
				return err
			}
			continue
		}
		if msg.Type != gqlConnectionAck {
			return fmt.Errorf("expected %s, got %q", gqlConnectionAck, msg.Type)
		}
		break
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return err
	}

	payload, err := json.Marshal(subscribePayload{Query: g.cfg.Query, Variables: g.cfg.Variables})
	if err != nil {
		return err
	}
	return g.write(conn, gqlMessage{ID: subscriptionID, Type: gqlSubscribe, Payload: payload})
}

func (g *GraphQLSource) read(conn *websocket.Conn) (gqlMessage, error) {
	var msg gqlMessage
	_, data, err := conn.ReadMessage()
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("decode %q: %w", data, err)
	}
	return msg, nil
}

// write serializes writes; gorilla connections allow one writer at a time.
func (g *GraphQLSource) write(conn *websocket.Conn, msg gqlMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.writeLocked(conn, msg)
}

func (g *GraphQLSource) writeLocked(conn *websocket.Conn, msg gqlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
