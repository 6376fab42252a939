package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/atikulmunna/flowscope/internal/ingest"
	"github.com/atikulmunna/flowscope/internal/session"
)

//nolint:stylecheck // capitalised: returned verbatim to API clients
var (
	errMissingSessionID = errors.New("Missing sessionId")
	errNoGraphQLOpener  = errors.New("GraphQL source not configured")
)

type subscribeRequest struct {
	Endpoint  string          `json:"endpoint"`
	Query     string          `json:"query"`
	Variables json.RawMessage `json:"variables"`
	SessionID string          `json:"sessionId"`
}

func (s *Server) handleGraphQLSubscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, ingest.ErrMissingSubscription)
		return
	}
	if req.Endpoint == "" || req.Query == "" {
		errorJSON(c, http.StatusBadRequest, ingest.ErrMissingSubscription)
		return
	}
	if s.opts.OpenGQL == nil {
		errorJSON(c, http.StatusInternalServerError, errNoGraphQLOpener)
		return
	}

	src, err := s.opts.OpenGQL(req.Endpoint, req.Query, req.Variables)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	sess, err := s.opts.Registry.Create(req.SessionID, session.Info{Kind: session.KindGraphQL, Endpoint: req.Endpoint}, src)
	if errors.Is(err, session.ErrExists) {
		_ = src.Close()
		errorJSON(c, http.StatusConflict, err)
		return
	}
	if err != nil {
		_ = src.Close()
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sessionId": sess.ID})
}

func (s *Server) handleGraphQLUnsubscribe(c *gin.Context) {
	id := c.Query("sessionId")
	if id == "" {
		errorJSON(c, http.StatusBadRequest, errMissingSessionID)
		return
	}
	if _, err := s.opts.Registry.Dispose(c.Request.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			errorJSON(c, http.StatusNotFound, err)
			return
		}
		s.logger.Warn("subscription did not stop cleanly", zap.String("session", id), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type sessionSummary struct {
	ID       string       `json:"id"`
	Info     session.Info `json:"info"`
	Started  time.Time    `json:"started"`
	Messages int          `json:"messages"`
	Dropped  int64        `json:"dropped"`
	Running  bool         `json:"running"`
	Error    string       `json:"error,omitempty"`
}

func (s *Server) handleSessions(c *gin.Context) {
	out := []sessionSummary{}
	for _, id := range s.opts.Registry.IDs() {
		sess, ok := s.opts.Registry.Lookup(id)
		if !ok {
			continue
		}
		sum := sessionSummary{
			ID:       sess.ID,
			Info:     sess.Info,
			Started:  sess.Started,
			Messages: len(sess.Hub.History()),
			Dropped:  sess.Hub.Dropped(),
			Running:  true,
		}
		select {
		case <-sess.Done():
			sum.Running = false
			if err := sess.Err(); err != nil {
				sum.Error = err.Error()
			}
		default:
		}
		out = append(out, sum)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (s *Server) handleSessionFlows(c *gin.Context) {
	sess, ok := s.opts.Registry.Lookup(c.Param("id"))
	if !ok {
		errorJSON(c, http.StatusNotFound, session.ErrNotFound)
		return
	}
	view, err := buildView(c, sess.Hub.History())
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
