package output

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atikulmunna/flowscope/internal/model"
)

func sample() model.ParsedMessage {
	ok := false
	return model.ParsedMessage{
		ID:                "json-0",
		FlowID:            "flow-1",
		Timestamp:         time.Date(2026, 2, 17, 12, 0, 0, 0, time.UTC),
		Topic:             "splunk-json",
		Value:             "{\n  \"a\": 1\n}",
		FlowIDSource:      model.SourceSplunk,
		ContainerName:     "orders-api",
		Level:             "ERROR",
		StructuredMessage: "something <broke>",
		CommandName:       "CreateOrder",
		Success:           &ok,
		ErrorMessage:      "timeout",
	}
}

func TestJSONRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONRenderer(&buf)

	require.NoError(t, r.RenderMessage(sample()))
	assert.Contains(t, buf.String(), "something <broke>")

	var got model.ParsedMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "ERROR", got.Level)
	assert.Equal(t, "flow-1", got.FlowID)
	assert.Equal(t, "orders-api", got.ContainerName)
	require.NotNil(t, got.Success)
	assert.False(t, *got.Success)
}

func TestJSONRendererGroups(t *testing.T) {
	var buf bytes.Buffer
	m := sample()
	groups := []model.FlowGroup{
		{FlowID: "a", Messages: []model.ParsedMessage{m}, First: m.Timestamp, Last: m.Timestamp},
		{FlowID: "b", Messages: []model.ParsedMessage{m}, First: m.Timestamp, Last: m.Timestamp},
	}
	require.NoError(t, NewJSONRenderer(&buf).RenderGroups(groups))

	sc := bufio.NewScanner(&buf)
	var ids []string
	for sc.Scan() {
		var g model.FlowGroup
		require.NoError(t, json.Unmarshal(sc.Bytes(), &g))
		ids = append(ids, g.FlowID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestTextRendererMessage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTextRenderer(&buf).RenderMessage(sample()))

	out := buf.String()
	for _, want := range []string{"12:00:00", "ERROR", "flow-1", "orders-api", "CreateOrder", "failed", "something <broke>", "error: timeout"} {
		assert.Contains(t, out, want)
	}
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestTextRendererGroups(t *testing.T) {
	var buf bytes.Buffer
	m := sample()
	m.StructuredMessage = ""
	m.ErrorMessage = ""
	m.Success = nil
	groups := []model.FlowGroup{{FlowID: "flow-1", Messages: []model.ParsedMessage{m, m}, First: m.Timestamp, Last: m.Timestamp}}

	require.NoError(t, NewTextRenderer(&buf).RenderGroups(groups))
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "2 message(s)")
	assert.True(t, strings.HasPrefix(lines[1], "  "))
	// Only the first line of a pretty-printed value is shown.
	assert.Contains(t, lines[1], "{")
	assert.NotContains(t, lines[1], `"a"`)
}

func TestPreviewTruncates(t *testing.T) {
	m := model.ParsedMessage{Value: strings.Repeat("x", previewWidth+10)}
	p := preview(m)
	assert.Equal(t, previewWidth+3, len(p))
	assert.True(t, strings.HasSuffix(p, "..."))
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	r, err := New("json", &buf)
	require.NoError(t, err)
	assert.IsType(t, &JSONRenderer{}, r)

	r, err = New("", &buf)
	require.NoError(t, err)
	assert.IsType(t, &TextRenderer{}, r)

	_, err = New("yaml", &buf)
	assert.Error(t, err)
}
