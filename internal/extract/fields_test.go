package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atikulmunna/flowscope/internal/jsonval"
)

func TestCommandInfo(t *testing.T) {
	c := CommandInfo(obj(t, `{"commandId":"CreateOrder:42:x","success":true,"payload":{"errorMessage":"boom","error":"other"}}`))
	assert.Equal(t, "CreateOrder", c.Name)
	require.NotNil(t, c.Success)
	assert.True(t, *c.Success)
	assert.Equal(t, "boom", c.ErrorMessage)
}

func TestCommandInfoFallbacks(t *testing.T) {
	c := CommandInfo(obj(t, `{"type":"ShipOrder","success":0,"payload":{"error":"late"}}`))
	assert.Equal(t, "ShipOrder", c.Name)
	require.NotNil(t, c.Success)
	assert.False(t, *c.Success)
	assert.Equal(t, "late", c.ErrorMessage)
}

func TestCommandInfoNoColon(t *testing.T) {
	c := CommandInfo(obj(t, `{"commandId":"Ping"}`))
	assert.Equal(t, "Ping", c.Name)
	assert.Nil(t, c.Success, "absent success is no verdict")
	assert.Empty(t, c.ErrorMessage)
}

func TestCommandInfoNullSuccessIsFalse(t *testing.T) {
	c := CommandInfo(obj(t, `{"success":null}`))
	require.NotNil(t, c.Success)
	assert.False(t, *c.Success)
}

func TestCommandInfoObjectError(t *testing.T) {
	c := CommandInfo(obj(t, `{"payload":{"error":{"code":7}}}`))
	assert.Equal(t, `{"code":7}`, c.ErrorMessage)
}

func TestCommandInfoNotObject(t *testing.T) {
	assert.Equal(t, Command{}, CommandInfo(jsonval.StringValue("x")))
	assert.Equal(t, Command{}, CommandInfo(jsonval.Value{}))
}

func TestCommandAndError(t *testing.T) {
	structured := obj(t, `{"message":"{\"resource\":{\"type\":\"FromMessage\"}}"}`)

	c := CommandAndError(`{"resource":{"commandId":"FromRaw:1"}}`, structured)
	assert.Equal(t, "FromRaw", c.Name)

	c = CommandAndError("not json", structured)
	assert.Equal(t, "FromMessage", c.Name)

	c = CommandAndError(`{"other":1}`, structured)
	assert.Equal(t, "FromMessage", c.Name)

	c = CommandAndError(`{"other":1}`, jsonval.ObjectValue())
	assert.Equal(t, Command{}, c)
}

func TestSourceService(t *testing.T) {
	assert.Equal(t, "orders", SourceService(obj(t, `{"sourceMicroservice":"orders","hostname":"h"}`)))
	assert.Equal(t, "billing", SourceService(obj(t, `{"resource":{"sourceMicroservice":"billing"},"host":"h"}`)))
	assert.Equal(t, "pod-1", SourceService(obj(t, `{"hostname":"pod-1","host":"h"}`)))
	assert.Equal(t, "h", SourceService(obj(t, `{"host":"h"}`)))
	assert.Equal(t, "rh", SourceService(obj(t, `{"resource":{"host":"rh"}}`)))
	assert.Empty(t, SourceService(jsonval.Value{}))
}

func TestLevelPrecedence(t *testing.T) {
	result := obj(t, `{"structured.level":" WARN ","level":"DEBUG","structured":{"level":"INFO"}}`)
	level, ok := Level(result, result.Get("structured"))
	assert.True(t, ok)
	assert.Equal(t, "WARN", level)

	result = obj(t, `{"level":"DEBUG","structured":{"level":"INFO"}}`)
	level, _ = Level(result, result.Get("structured"))
	assert.Equal(t, "INFO", level)

	result = obj(t, `{"level":"DEBUG","structured":{"level":"   "}}`)
	level, _ = Level(result, result.Get("structured"))
	assert.Equal(t, "DEBUG", level)
}

func TestLevelAbsent(t *testing.T) {
	level, ok := Level(jsonval.ObjectValue(), jsonval.Value{})
	assert.False(t, ok)
	assert.Empty(t, level)
	assert.False(t, IsUnknownLevel(level))
}

func TestIsUnknownLevel(t *testing.T) {
	for _, l := range []string{"unknown", "UNKNOWN", "Unknown"} {
		assert.True(t, IsUnknownLevel(l), l)
	}
	for _, l := range []string{"", "INFO", "unknowns"} {
		assert.False(t, IsUnknownLevel(l), l)
	}
}

func TestMessage(t *testing.T) {
	result := obj(t, `{"structured.message":"flat","message":"root","structured":{"message":"nested"}}`)
	msg, ok := Message(result, result.Get("structured"))
	assert.True(t, ok)
	assert.Equal(t, "flat", msg)

	result = obj(t, `{"message":"root","structured":{"message":"nested"}}`)
	msg, _ = Message(result, result.Get("structured"))
	assert.Equal(t, "nested", msg)

	result = obj(t, `{"message":"root"}`)
	msg, _ = Message(result, result.Get("structured"))
	assert.Equal(t, "root", msg)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "{\n  \"a\": 1,\n  \"b\": [\n    true\n  ]\n}", FormatValue(`{"a":1,"b":[true]}`))
	assert.Equal(t, "plain text", FormatValue("plain text"))
	assert.Equal(t, "", FormatValue(""))
	assert.Equal(t, `"s"`, FormatValue(`"s"`))
}
