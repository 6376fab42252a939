// Package flow groups normalized messages by flow ID and filters them.
package flow

import (
	"sort"
	"strings"

	"github.com/atikulmunna/flowscope/internal/extract"
	"github.com/atikulmunna/flowscope/internal/model"
)

// Order selects the sort direction of messages inside a group.
type Order int

const (
	Descending Order = iota // newest first
	Ascending
)

// ParseOrder maps "asc" to Ascending and anything else to Descending.
func ParseOrder(s string) Order {
	if strings.EqualFold(strings.TrimSpace(s), "asc") {
		return Ascending
	}
	return Descending
}

// Group buckets messages by flow ID. Groups are ordered by their latest
// message, most recent first; ties keep first-appearance order. The input
// slice is not modified.
func Group(messages []model.ParsedMessage, order Order) []model.FlowGroup {
	index := make(map[string]int)
	var groups []model.FlowGroup

	for _, m := range messages {
		i, ok := index[m.FlowID]
		if !ok {
			i = len(groups)
			index[m.FlowID] = i
			groups = append(groups, model.FlowGroup{FlowID: m.FlowID, First: m.Timestamp, Last: m.Timestamp})
		}
		g := &groups[i]
		g.Messages = append(g.Messages, m)
		if m.Timestamp.Before(g.First) {
			g.First = m.Timestamp
		}
		if m.Timestamp.After(g.Last) {
			g.Last = m.Timestamp
		}
	}

	for i := range groups {
		msgs := groups[i].Messages
		sort.SliceStable(msgs, func(a, b int) bool {
			if order == Ascending {
				return msgs[a].Timestamp.Before(msgs[b].Timestamp)
			}
			return msgs[a].Timestamp.After(msgs[b].Timestamp)
		})
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].Last.After(groups[b].Last)
	})
	return groups
}

// FilterKind selects which single attribute Criteria.Value is matched
// against.
type FilterKind string

const (
	FilterNone      FilterKind = ""
	FilterContainer FilterKind = "container"
	FilterLevel     FilterKind = "level"
)

// ParseFilterKind accepts "container", "level", and "none" or "".
func ParseFilterKind(s string) (FilterKind, bool) {
	switch k := FilterKind(strings.ToLower(strings.TrimSpace(s))); k {
	case FilterContainer, FilterLevel:
		return k, true
	case FilterNone, "none":
		return FilterNone, true
	}
	return FilterNone, false
}

// Criteria narrows a message list. An empty Value or a blank Query disables
// that step.
type Criteria struct {
	Kind  FilterKind
	Value string
	Query string
}

// Filter returns the messages matching c, in input order. Unknown-level
// messages are always excluded. Container matching is exact; level
// matching ignores case. Query is a case-insensitive substring match
// against the value, container and level.
func Filter(messages []model.ParsedMessage, c Criteria) []model.ParsedMessage {
	var query string
	if strings.TrimSpace(c.Query) != "" {
		query = strings.ToLower(c.Query)
	}
	out := make([]model.ParsedMessage, 0, len(messages))

	for _, m := range messages {
		if extract.IsUnknownLevel(m.Level) {
			continue
		}
		if c.Value != "" {
			switch c.Kind {
			case FilterContainer:
				if m.ContainerName != c.Value {
					continue
				}
			case FilterLevel:
				if !strings.EqualFold(m.Level, c.Value) {
					continue
				}
			}
		}
		if query != "" && !matches(m, query) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func matches(m model.ParsedMessage, query string) bool {
	return strings.Contains(strings.ToLower(m.Value), query) ||
		strings.Contains(strings.ToLower(m.ContainerName), query) ||
		strings.Contains(strings.ToLower(m.Level), query)
}

// Containers lists the distinct container names in first-seen order.
func Containers(messages []model.ParsedMessage) []string {
	return distinct(messages, func(m model.ParsedMessage) string { return m.ContainerName })
}

// Levels lists the distinct levels in first-seen order.
func Levels(messages []model.ParsedMessage) []string {
	return distinct(messages, func(m model.ParsedMessage) string { return m.Level })
}

func distinct(messages []model.ParsedMessage, field func(model.ParsedMessage) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range messages {
		v := field(m)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
