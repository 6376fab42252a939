package extract

import (
	"strings"

	"github.com/atikulmunna/flowscope/internal/jsonval"
)

// Command is what a resource envelope says about the command it carries.
type Command struct {
	Name         string
	Success      *bool // nil when the resource gives no verdict
	ErrorMessage string
}

// CommandInfo reads a resource object. Name is the commandId prefix before
// the first colon, or the resource type.
func CommandInfo(resource jsonval.Value) Command {
	var c Command
	if !resource.IsObject() {
		return c
	}

	if id, ok := display(resource.Get("commandId")); ok {
		c.Name, _, _ = strings.Cut(id, ":")
	} else if typ, ok := display(resource.Get("type")); ok {
		c.Name = typ
	}

	if s := resource.Get("success"); s.Exists() {
		ok := s.Truthy()
		c.Success = &ok
	}

	if payload := resource.Get("payload"); payload.Truthy() {
		if msg, ok := display(payload.Get("errorMessage")); ok {
			c.ErrorMessage = msg
		} else if msg, ok := display(payload.Get("error")); ok {
			c.ErrorMessage = msg
		}
	}
	return c
}

// CommandAndError finds the resource for an upload entry: the raw payload's
// resource first, then the resource inside a JSON structured.message.
func CommandAndError(raw string, structured jsonval.Value) Command {
	root, rawOK := jsonval.ParseObject(raw)
	if rawOK && root.Get("resource").IsObject() {
		return CommandInfo(root.Get("resource"))
	}
	if msg, ok := structured.Get("message").Str(); ok {
		if nested, ok := jsonval.ParseObject(msg); ok && nested.Get("resource").IsObject() {
			return CommandInfo(nested.Get("resource"))
		}
	}
	return CommandInfo(root.Get("resource"))
}

// SourceService names the service that emitted payload.
func SourceService(payload jsonval.Value) string {
	resource := payload.Get("resource")
	for _, v := range []jsonval.Value{
		payload.Get("sourceMicroservice"),
		resource.Get("sourceMicroservice"),
		payload.Get("hostname"),
		payload.Get("host"),
		resource.Get("host"),
	} {
		if s, ok := v.Text(); ok {
			return s
		}
	}
	return ""
}

// Level returns the severity of an entry, checking the flattened
// "structured.level" key, the nested structured.level field, then a plain
// "level" key. The result is trimmed. ok is false when no level is set.
func Level(result, structured jsonval.Value) (level string, ok bool) {
	return firstTrimmed(
		result.Get("structured.level"),
		structured.Get("level"),
		result.Get("level"),
	)
}

// Message returns the human-readable message text with the same precedence
// as Level.
func Message(result, structured jsonval.Value) (string, bool) {
	for _, v := range []jsonval.Value{
		result.Get("structured.message"),
		structured.Get("message"),
		result.Get("message"),
	} {
		if s, ok := display(v); ok {
			return s, true
		}
	}
	return "", false
}

// FormatValue pretty-prints raw when it is JSON and returns it unchanged
// otherwise.
func FormatValue(raw string) string {
	if pretty, ok := jsonval.Pretty(raw); ok {
		return pretty
	}
	return raw
}

// IsUnknownLevel reports whether level is the "unknown" marker.
func IsUnknownLevel(level string) bool {
	return level != "" && strings.EqualFold(level, "unknown")
}

func firstTrimmed(vals ...jsonval.Value) (string, bool) {
	for _, v := range vals {
		s, ok := display(v)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s, true
		}
	}
	return "", false
}

// display renders a truthy value as text. Containers render as compact
// JSON.
func display(v jsonval.Value) (string, bool) {
	if s, ok := v.Text(); ok {
		return s, true
	}
	if v.IsObject() || v.IsArray() {
		return v.Compact(), true
	}
	return "", false
}
