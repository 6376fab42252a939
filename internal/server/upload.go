package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/atikulmunna/flowscope/internal/model"
	"github.com/atikulmunna/flowscope/internal/parser"
)

// DefaultMaxUploadBytes caps an upload body when Options.MaxUploadBytes is
// zero.
const DefaultMaxUploadBytes = 64 << 20

//nolint:stylecheck // capitalised: returned verbatim to API clients
var errNoDocument = errors.New("No saved document")

type documentResponse struct {
	FileName string `json:"fileName"`
	Entries  int    `json:"entries"`
	Error    string `json:"error,omitempty"`
	flowView
}

// handleUpload parses the request body as a Splunk export. A partial parse
// still succeeds and reports its summary in "error". Bodies over the size
// cap are rejected before anything is parsed or saved.
func (s *Server) handleUpload(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		name = "upload.json"
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		errorJSON(c, http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", tooLarge.Limit))
		return
	}
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	entries, err := parser.ParseDocument(string(body))
	var partial *parser.PartialError
	if err != nil && !errors.As(err, &partial) {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	if s.opts.Store != nil {
		if serr := s.opts.Store.SaveDocument(name, entries); serr != nil {
			s.logger.Warn("saving uploaded document", zap.String("file", name), zap.Error(serr))
		}
	}

	resp, verr := s.documentView(c, name, entries)
	if verr != nil {
		errorJSON(c, http.StatusBadRequest, verr)
		return
	}
	if partial != nil {
		resp.Error = partial.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleLastDocument(c *gin.Context) {
	if s.opts.Store == nil {
		errorJSON(c, http.StatusNotFound, errNoDocument)
		return
	}
	name, entries, ok := s.opts.Store.LoadDocument()
	if !ok {
		errorJSON(c, http.StatusNotFound, errNoDocument)
		return
	}
	resp, err := s.documentView(c, name, entries)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleClearDocument(c *gin.Context) {
	if s.opts.Store != nil {
		if err := s.opts.Store.ClearDocument(); err != nil {
			errorJSON(c, http.StatusInternalServerError, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) documentView(c *gin.Context, name string, entries []model.RawLogEntry) (documentResponse, error) {
	view, err := buildView(c, s.opts.Normalizer.Entries(entries))
	if err != nil {
		return documentResponse{}, err
	}
	return documentResponse{FileName: name, Entries: len(entries), flowView: view}, nil
}
