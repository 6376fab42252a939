// Package normalize turns raw entries and live messages into
// ParsedMessages.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/atikulmunna/flowscope/internal/extract"
	"github.com/atikulmunna/flowscope/internal/jsonval"
	"github.com/atikulmunna/flowscope/internal/model"
)

// TopicUpload is the topic assigned to uploaded entries.
const TopicUpload = "splunk-json"

// Normalizer builds ParsedMessages. The clock supplies timestamps for
// records that carry none.
type Normalizer struct {
	now func() time.Time
}

// New returns a Normalizer. A nil clock means time.Now.
func New(clock func() time.Time) *Normalizer {
	if clock == nil {
		clock = time.Now
	}
	return &Normalizer{now: clock}
}

// Entry normalizes the index-th entry of an uploaded document. It reports
// false when the entry's level is "unknown".
//
// The flow ID is suffixed with the index, so each uploaded line is its own
// flow unless grouping is done on the unsuffixed ID elsewhere.
func (n *Normalizer) Entry(entry model.RawLogEntry, index int) (model.ParsedMessage, bool) {
	result := entry.Result
	if !result.IsObject() {
		result = jsonval.ObjectValue()
	}
	structured := result.Get("structured")
	if !structured.IsObject() {
		structured = jsonval.ObjectValue()
	}

	level, _ := extract.Level(result, structured)
	if extract.IsUnknownLevel(level) {
		return model.ParsedMessage{}, false
	}

	raw := result.Get("_raw")
	rawText, rawIsString := raw.Str()
	var value string
	switch {
	case rawIsString && rawText != "":
		value = extract.FormatValue(rawText)
	case raw.Truthy():
		rawText = raw.Compact()
		value = rawText
	default:
		rawText = result.Compact()
		value = extract.FormatValue(rawText)
	}

	flowID, _ := extract.FlowID(extract.Record{Fields: structured, Raw: rawText})
	cmd := extract.CommandAndError(rawText, structured)
	msgText, _ := extract.Message(result, structured)

	msg := model.ParsedMessage{
		ID:                fmt.Sprintf("json-%d", index),
		FlowID:            fmt.Sprintf("%s-%d", flowID, index),
		Timestamp:         n.timestamp(result.Get("@timestamp")),
		Topic:             TopicUpload,
		Partition:         0,
		Offset:            strconv.Itoa(index),
		Value:             value,
		FlowIDSource:      model.SourceSplunk,
		ContainerName:     containerName(result),
		Level:             level,
		StructuredMessage: msgText,
		CommandName:       cmd.Name,
		Success:           cmd.Success,
		ErrorMessage:      cmd.ErrorMessage,
	}
	if cmd.Name != "" {
		msg.Key = &cmd.Name
	}
	if rawIsString && rawText != "" {
		msg.RawMessage = rawText
	}
	if rawObj, ok := jsonval.ParseObject(rawText); ok {
		msg.SourceService = extract.SourceService(rawObj)
	}
	return msg, true
}

// Entries normalizes a whole document, dropping unknown-level entries.
// Indices refer to positions in entries, so they stay stable when some
// entries are dropped.
func (n *Normalizer) Entries(entries []model.RawLogEntry) []model.ParsedMessage {
	out := make([]model.ParsedMessage, 0, len(entries))
	for i, e := range entries {
		if msg, ok := n.Entry(e, i); ok {
			out = append(out, msg)
		}
	}
	return out
}

// Live normalizes a message from a transport. Flow IDs are not suffixed:
// correlating one request across topics is the point of the live view.
func (n *Normalizer) Live(in model.LiveMessage) (model.ParsedMessage, bool) {
	payload, isObject := jsonval.ParseObject(in.Value)
	structured := payload.Get("structured")

	level, _ := extract.Level(payload, structured)
	if extract.IsUnknownLevel(level) {
		return model.ParsedMessage{}, false
	}

	rec := extract.Record{Live: true, Headers: in.Headers, Key: in.Key, Fields: payload}
	if !isObject {
		rec.Raw = in.Value
	}
	flowID, source := extract.FlowID(rec)

	ts := n.now()
	if in.Timestamp > 0 {
		ts = time.UnixMilli(in.Timestamp).UTC()
	}

	cmd := extract.CommandInfo(payload.Get("resource"))
	msgText, _ := extract.Message(payload, structured)

	return model.ParsedMessage{
		ID:                fmt.Sprintf("%s-%d-%s", in.Topic, in.Partition, in.Offset),
		FlowID:            flowID,
		Timestamp:         ts,
		Topic:             in.Topic,
		Partition:         in.Partition,
		Offset:            in.Offset,
		Key:               in.Key,
		Value:             extract.FormatValue(in.Value),
		FlowIDSource:      source,
		ContainerName:     containerName(payload),
		Level:             level,
		RawMessage:        in.Value,
		StructuredMessage: msgText,
		CommandName:       cmd.Name,
		Success:           cmd.Success,
		ErrorMessage:      cmd.ErrorMessage,
		SourceService:     extract.SourceService(payload),
	}, true
}

func containerName(v jsonval.Value) string {
	if s, ok := v.Get("kubernetes.container_name").Text(); ok {
		return s
	}
	s, _ := v.Path("kubernetes", "container_name").Text()
	return s
}

// Layouts accepted for @timestamp, most common first.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// timestamp reads an ISO-8601 string or epoch milliseconds, falling back
// to the clock.
func (n *Normalizer) timestamp(v jsonval.Value) time.Time {
	if ms, ok := v.Num(); ok && ms > 0 {
		return time.UnixMilli(int64(ms)).UTC()
	}
	if s, ok := v.Str(); ok {
		s = strings.TrimSpace(s)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return n.now()
}
