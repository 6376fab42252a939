package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/atikulmunna/flowscope/internal/ingest"
	"github.com/atikulmunna/flowscope/internal/model"
	"github.com/atikulmunna/flowscope/internal/session"
	"github.com/atikulmunna/flowscope/internal/store"
)

//nolint:stylecheck // capitalised: returned verbatim to API clients
var (
	errMissingConnectFields = errors.New("Missing required fields: broker, topics, consumerId")
	errMissingConsumerID    = errors.New("Missing consumerId")
	errConsumerNotFound     = errors.New("Consumer not found")
	errNoSession            = errors.New("No saved session")
	errNoKafkaOpener        = errors.New("Kafka consumer not configured")
	errNoProducer           = errors.New("Kafka producer not configured")
)

type connectRequest struct {
	Broker     string `json:"broker"`
	Topics     string `json:"topics"`
	ConsumerID string `json:"consumerId"`
}

// streamEvent is one SSE payload: a message tagged with its event type.
type streamEvent struct {
	Type string `json:"type"`
	model.ParsedMessage
}

func (s *Server) handleKafkaConnect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Broker == "" || req.Topics == "" || req.ConsumerID == "" {
		errorJSON(c, http.StatusBadRequest, errMissingConnectFields)
		return
	}

	// One active consumer at a time.
	ctx, cancel := context.WithTimeout(c.Request.Context(), disposeTimeout)
	if err := s.opts.Registry.DisposeAll(ctx); err != nil {
		s.logger.Warn("stopping previous consumers", zap.Error(err))
	}
	cancel()

	brokers := ingest.ParseList(req.Broker)
	if len(brokers) == 0 {
		errorJSON(c, http.StatusBadRequest, ingest.ErrInvalidBrokers)
		return
	}
	topics := ingest.ParseList(req.Topics)
	if len(topics) == 0 {
		errorJSON(c, http.StatusBadRequest, ingest.ErrNoTopics)
		return
	}
	if s.opts.OpenKafka == nil {
		errorJSON(c, http.StatusInternalServerError, errNoKafkaOpener)
		return
	}

	src, err := s.opts.OpenKafka(brokers, topics, req.ConsumerID)
	if err != nil {
		s.logger.Error("kafka connect failed", zap.Strings("brokers", brokers), zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}

	info := session.Info{Kind: session.KindKafka, Broker: req.Broker, Topics: topics}
	if _, err := s.opts.Registry.Create(req.ConsumerID, info, src); err != nil {
		_ = src.Close()
		errorJSON(c, http.StatusInternalServerError, fmt.Errorf("Failed to connect to Kafka: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "consumerId": req.ConsumerID})
}

func (s *Server) handleKafkaDisconnect(c *gin.Context) {
	id := c.Query("consumerId")
	if id == "" {
		errorJSON(c, http.StatusBadRequest, errMissingConsumerID)
		return
	}
	sess, err := s.opts.Registry.Dispose(c.Request.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		errorJSON(c, http.StatusNotFound, errConsumerNotFound)
		return
	}
	if err != nil {
		s.logger.Warn("consumer did not stop cleanly", zap.String("consumer", id), zap.Error(err))
	}
	s.persistSession(sess)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// persistSession stores the session's retained messages as the last live
// session.
func (s *Server) persistSession(sess *session.Session) {
	if s.opts.Store == nil || sess == nil {
		return
	}
	err := s.opts.Store.SaveSession(store.Session{
		Broker:   sess.Info.Broker,
		Topics:   sess.Info.Topics,
		Messages: sess.Hub.History(),
	})
	if err != nil {
		s.logger.Warn("saving session", zap.String("session", sess.ID), zap.Error(err))
	}
}

func (s *Server) handleLastSession(c *gin.Context) {
	if s.opts.Store == nil {
		errorJSON(c, http.StatusNotFound, errNoSession)
		return
	}
	sess, ok := s.opts.Store.LoadSession()
	if !ok {
		errorJSON(c, http.StatusNotFound, errNoSession)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// handleKafkaMessages streams a session's messages as server-sent events.
// The first event confirms the stream; each following event is a
// normalized message.
func (s *Server) handleKafkaMessages(c *gin.Context) {
	id := c.Query("consumerId")
	if id == "" {
		errorJSON(c, http.StatusBadRequest, errMissingConsumerID)
		return
	}
	sess, ok := s.opts.Registry.Lookup(id)
	if !ok {
		errorJSON(c, http.StatusNotFound, errConsumerNotFound)
		return
	}

	sub := sess.Hub.Subscribe()
	defer sess.Hub.Unsubscribe(sub)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Headers", "Cache-Control")

	c.SSEvent("message", gin.H{"type": "connection-test", "consumerId": id})
	c.Writer.Flush()

	done := c.Request.Context().Done()
	for {
		select {
		case <-done:
			return
		case msg, ok := <-sub:
			if !ok {
				return
			}
			c.SSEvent("message", streamEvent{Type: "message", ParsedMessage: msg})
			c.Writer.Flush()
		}
	}
}

func (s *Server) handleKafkaProduce(c *gin.Context) {
	if s.opts.Producer == nil {
		errorJSON(c, http.StatusInternalServerError, errNoProducer)
		return
	}
	var req ingest.ProduceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, ingest.ErrMissingProduceFields)
		return
	}
	res, err := s.opts.Producer.Send(req)
	switch {
	case errors.Is(err, ingest.ErrMissingProduceFields), errors.Is(err, ingest.ErrInvalidBrokers):
		errorJSON(c, http.StatusBadRequest, err)
	case err != nil:
		s.logger.Error("produce failed", zap.String("topic", req.Topic), zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, err)
	default:
		c.JSON(http.StatusOK, res)
	}
}
