package model

import (
	"time"

	"github.com/atikulmunna/flowscope/internal/jsonval"
)

// FlowIDSource names the strategy that produced a flow ID.
type FlowIDSource string

const (
	SourceHeader      FlowIDSource = "header"
	SourceJSONContent FlowIDSource = "json-content"
	SourceKey         FlowIDSource = "key"
	SourceSplunk      FlowIDSource = "splunk"
	SourceNone        FlowIDSource = "none"
)

// UnknownFlowID stands in for "no identifier could be derived".
const UnknownFlowID = "unknown"

// RawLogEntry is one record of an uploaded document, before normalization.
type RawLogEntry struct {
	Preview bool          `json:"preview"`
	Result  jsonval.Value `json:"result"` // always an object
}

// LiveMessage is what a live ingestion source hands to the pipeline.
type LiveMessage struct {
	Topic     string            `json:"topic"`
	Partition int32             `json:"partition"`
	Offset    string            `json:"offset"`
	Key       *string           `json:"key"`
	Value     string            `json:"value"`
	Headers   map[string]string `json:"headers"`
	Timestamp int64             `json:"timestamp"` // epoch millis
}

// ParsedMessage is the normalized, display-ready form of a message.
type ParsedMessage struct {
	ID           string       `json:"id"`
	FlowID       string       `json:"flowId"`
	Timestamp    time.Time    `json:"timestamp"`
	Topic        string       `json:"topic"`
	Partition    int32        `json:"partition"`
	Offset       string       `json:"offset"`
	Key          *string      `json:"key"`
	Value        string       `json:"value"` // pretty-printed when the payload is JSON
	FlowIDSource FlowIDSource `json:"flowIdSource"`

	ContainerName     string `json:"containerName,omitempty"`
	Level             string `json:"level,omitempty"`
	RawMessage        string `json:"rawMessage,omitempty"`
	StructuredMessage string `json:"structuredMessage,omitempty"`
	CommandName       string `json:"commandName,omitempty"`
	Success           *bool  `json:"success,omitempty"` // nil means no verdict
	ErrorMessage      string `json:"errorMessage,omitempty"`
	SourceService     string `json:"sourceService,omitempty"`
}

// FlowGroup holds the messages sharing one flow ID.
type FlowGroup struct {
	FlowID   string          `json:"flowId"`
	Messages []ParsedMessage `json:"messages"`
	First    time.Time       `json:"firstMessage"`
	Last     time.Time       `json:"lastMessage"`
}

// RawLine is a single line read from a tailed file.
type RawLine struct {
	Text   string
	Source string // originating file path
	Start  int64  // byte offset of the line in Source
	End    int64  // byte offset just past the line's newline
}
