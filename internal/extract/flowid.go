// Package extract derives correlation and display fields from messages.
// Every function here is total: missing or malformed input degrades to a
// zero value or the "unknown" sentinel.
package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/atikulmunna/flowscope/internal/jsonval"
	"github.com/atikulmunna/flowscope/internal/model"
)

// maxDepth bounds the recursive field search.
const maxDepth = 64

var (
	flowIDPattern    = regexp.MustCompile(`(?i)Flow ID:?\s*([a-f0-9-]{36})`)
	flowIDAltPattern = regexp.MustCompile(`(?i)flowId[=:]\s*([a-f0-9-]{36})`)

	// Key spellings accepted for a flow ID field, in lookup order.
	flowIDKeys = []string{"flowId", "flowid", "flow-id", "flow_id"}
	// Header names tried verbatim before the normalized scan.
	flowIDHeaders = []string{"flowId", "flowid", "flow-id"}

	separators = strings.NewReplacer("-", "", "_", "")
)

// Record is the input to FlowID.
type Record struct {
	// Live marks records from a transport (Kafka, GraphQL). Only live
	// records consult Headers and Key.
	Live    bool
	Headers map[string]string
	Key     *string

	// Fields is the structured form of the record: result.structured for
	// uploads, the decoded payload for live messages.
	Fields jsonval.Value
	// Raw is unparsed payload text that is searched when Fields has no
	// answer. Leave it empty when Fields was decoded from the same text.
	Raw string
}

// FlowID returns the best correlation identifier for r and the strategy
// that produced it. It returns model.UnknownFlowID and model.SourceNone
// when nothing matches.
func FlowID(r Record) (string, model.FlowIDSource) {
	if r.Live {
		if id, ok := fromHeaders(r.Headers); ok {
			return id, model.SourceHeader
		}
	}

	if id, ok := fromObject(r.Fields); ok {
		return id, model.SourceJSONContent
	}
	if id, ok := fromMessage(r.Fields); ok {
		return id, model.SourceJSONContent
	}

	if strings.TrimSpace(r.Raw) != "" {
		if raw, err := jsonval.Parse(r.Raw); err == nil {
			if id, ok := fromObject(raw); ok {
				return id, model.SourceJSONContent
			}
			if id, ok := fromMessage(raw); ok {
				return id, model.SourceJSONContent
			}
		}
	}

	if r.Live && r.Key != nil && *r.Key != "" {
		return *r.Key, model.SourceKey
	}
	return model.UnknownFlowID, model.SourceNone
}

// FromMessageText applies the two free-text patterns to s.
func FromMessageText(s string) (string, bool) {
	if m := flowIDPattern.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	if m := flowIDAltPattern.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	return "", false
}

func fromHeaders(headers map[string]string) (string, bool) {
	if len(headers) == 0 {
		return "", false
	}
	for _, name := range flowIDHeaders {
		if v := headers[name]; v != "" {
			return v, true
		}
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if headerKey(name) == "flowid" && headers[name] != "" {
			return headers[name], true
		}
	}
	return "", false
}

func headerKey(name string) string {
	return separators.Replace(strings.ToLower(name))
}

// fromObject checks the root spellings, then resource, then every other
// nested container depth-first.
func fromObject(v jsonval.Value) (string, bool) {
	if !v.IsObject() {
		return "", false
	}
	if id, ok := direct(v); ok {
		return id, true
	}
	if id, ok := direct(v.Get("resource")); ok {
		return id, true
	}
	return search(v, 0)
}

func direct(v jsonval.Value) (string, bool) {
	if !v.IsObject() {
		return "", false
	}
	for _, k := range flowIDKeys {
		if id, ok := v.Get(k).Text(); ok {
			return id, true
		}
	}
	return "", false
}

func search(v jsonval.Value, depth int) (string, bool) {
	if depth >= maxDepth {
		return "", false
	}
	var children []jsonval.Value
	switch v.Kind() {
	case jsonval.Object:
		for _, m := range v.Members() {
			if m.Key != "resource" {
				children = append(children, m.Value)
			}
		}
	case jsonval.Array:
		children = v.Elements()
	}

	for _, child := range children {
		if child.IsObject() {
			if id, ok := direct(child); ok {
				return id, true
			}
			if id, ok := direct(child.Get("resource")); ok {
				return id, true
			}
		}
		if id, ok := search(child, depth+1); ok {
			return id, true
		}
	}
	return "", false
}

// fromMessage looks at a "message" string: the free-text patterns first,
// then the message itself when it holds a JSON object.
func fromMessage(v jsonval.Value) (string, bool) {
	msg, ok := v.Get("message").Str()
	if !ok || msg == "" {
		return "", false
	}
	if id, ok := FromMessageText(msg); ok {
		return id, true
	}
	if nested, ok := jsonval.ParseObject(msg); ok {
		return fromObject(nested)
	}
	return "", false
}
