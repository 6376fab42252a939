package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atikulmunna/flowscope/internal/jsonval"
	"github.com/atikulmunna/flowscope/internal/model"
)

func obj(t *testing.T, text string) jsonval.Value {
	t.Helper()
	v, err := jsonval.Parse(text)
	require.NoError(t, err)
	return v
}

func strPtr(s string) *string { return &s }

func TestFlowIDHeaderBeatsRoot(t *testing.T) {
	fields := obj(t, `{"flowId":"R"}`)

	id, src := FlowID(Record{Live: true, Headers: map[string]string{"flowId": "H"}, Fields: fields})
	assert.Equal(t, "H", id)
	assert.Equal(t, model.SourceHeader, src)

	// Uploads never consult headers.
	id, src = FlowID(Record{Headers: map[string]string{"flowId": "H"}, Fields: fields})
	assert.Equal(t, "R", id)
	assert.Equal(t, model.SourceJSONContent, src)
}

func TestFlowIDHeaderSpellings(t *testing.T) {
	cases := map[string]map[string]string{
		"exact":      {"flowId": "a"},
		"lower":      {"flowid": "a"},
		"dashed":     {"flow-id": "a"},
		"upper":      {"FLOW-ID": "a"},
		"underscore": {"Flow_Id": "a"},
		"empty skip": {"flowId": "", "flow_id": "a"},
	}
	for name, headers := range cases {
		t.Run(name, func(t *testing.T) {
			id, src := FlowID(Record{Live: true, Headers: headers})
			assert.Equal(t, "a", id)
			assert.Equal(t, model.SourceHeader, src)
		})
	}
}

func TestFlowIDHeaderExactWins(t *testing.T) {
	id, _ := FlowID(Record{Live: true, Headers: map[string]string{"FLOWID": "x", "flow-id": "y"}})
	assert.Equal(t, "y", id)

	id, _ = FlowID(Record{Live: true, Headers: map[string]string{"FLOW_ID": "x", "Flow-Id": "y"}})
	assert.Equal(t, "x", id, "normalized names are tried in sorted order")
}

func TestFlowIDRootSpellings(t *testing.T) {
	for _, key := range []string{"flowId", "flowid", "flow-id", "flow_id"} {
		id, src := FlowID(Record{Fields: obj(t, `{"`+key+`":"v"}`)})
		assert.Equal(t, "v", id, key)
		assert.Equal(t, model.SourceJSONContent, src)
	}
}

func TestFlowIDRootBeforeResource(t *testing.T) {
	id, _ := FlowID(Record{Fields: obj(t, `{"resource":{"flowId":"res"},"flowId":"root"}`)})
	assert.Equal(t, "root", id)
}

func TestFlowIDResource(t *testing.T) {
	id, src := FlowID(Record{Live: true, Fields: obj(t, `{"resource":{"flowId":"xyz"}}`)})
	assert.Equal(t, "xyz", id)
	assert.Equal(t, model.SourceJSONContent, src)
}

func TestFlowIDNumericValue(t *testing.T) {
	id, _ := FlowID(Record{Fields: obj(t, `{"flowId":12345}`)})
	assert.Equal(t, "12345", id)
}

func TestFlowIDFalsyValuesSkipped(t *testing.T) {
	id, src := FlowID(Record{Fields: obj(t, `{"flowId":"","flowid":0,"flow-id":null,"flow_id":false}`)})
	assert.Equal(t, model.UnknownFlowID, id)
	assert.Equal(t, model.SourceNone, src)
}

func TestFlowIDRecursiveInsertionOrder(t *testing.T) {
	fields := obj(t, `{"b":{"deep":{"flowId":"first"}},"a":{"flowId":"second"}}`)
	id, _ := FlowID(Record{Fields: fields})
	assert.Equal(t, "first", id)
}

func TestFlowIDRecursiveArrays(t *testing.T) {
	id, _ := FlowID(Record{Fields: obj(t, `{"events":[{"x":1},{"meta":{"flow_id":"arr"}}]}`)})
	assert.Equal(t, "arr", id)
}

func TestFlowIDRecursiveNestedResource(t *testing.T) {
	id, _ := FlowID(Record{Fields: obj(t, `{"envelope":{"resource":{"flowId":"inner"}}}`)})
	assert.Equal(t, "inner", id)
}

func TestFlowIDDepthBound(t *testing.T) {
	text := strings.Repeat(`{"n":`, 100) + `{"flowId":"deep"}` + strings.Repeat("}", 100)
	id, _ := FlowID(Record{Fields: obj(t, text)})
	assert.Equal(t, model.UnknownFlowID, id)

	shallow := strings.Repeat(`{"n":`, 10) + `{"flowId":"deep"}` + strings.Repeat("}", 10)
	id, _ = FlowID(Record{Fields: obj(t, shallow)})
	assert.Equal(t, "deep", id)
}

func TestFlowIDMessagePatterns(t *testing.T) {
	uuid := "123e4567-e89b-12d3-a456-426614174000"
	cases := map[string]string{
		"Processing Flow ID: " + uuid + " done": uuid,
		"flow id " + uuid:                       uuid,
		"context flowId=" + uuid:                uuid,
		"context flowid: " + uuid:               uuid,
	}
	for msg, want := range cases {
		fields := jsonval.ObjectValue(jsonval.M("message", jsonval.StringValue(msg)))
		id, src := FlowID(Record{Fields: fields})
		assert.Equal(t, want, id, msg)
		assert.Equal(t, model.SourceJSONContent, src)
	}
}

func TestFlowIDMessageTooShort(t *testing.T) {
	fields := jsonval.ObjectValue(jsonval.M("message", jsonval.StringValue("Flow ID: abc")))
	id, _ := FlowID(Record{Fields: fields})
	assert.Equal(t, model.UnknownFlowID, id)
}

func TestFlowIDMessageHoldsJSON(t *testing.T) {
	fields := jsonval.ObjectValue(jsonval.M("message", jsonval.StringValue(`{"resource":{"flowId":"nested"}}`)))
	id, _ := FlowID(Record{Fields: fields})
	assert.Equal(t, "nested", id)
}

func TestFlowIDInvalidMessageJSONIgnored(t *testing.T) {
	fields := jsonval.ObjectValue(jsonval.M("message", jsonval.StringValue(`{"resource": broken`)))
	id, _ := FlowID(Record{Fields: fields, Raw: `{"flowId":"raw"}`})
	assert.Equal(t, "raw", id)
}

func TestFlowIDRawPayload(t *testing.T) {
	id, src := FlowID(Record{Fields: jsonval.ObjectValue(), Raw: `{"flowId":"f1","message":"ok"}`})
	assert.Equal(t, "f1", id)
	assert.Equal(t, model.SourceJSONContent, src)

	id, _ = FlowID(Record{Raw: "plain text"})
	assert.Equal(t, model.UnknownFlowID, id)
}

func TestFlowIDKeyFallback(t *testing.T) {
	id, src := FlowID(Record{Live: true, Key: strPtr("order-7"), Raw: "not json"})
	assert.Equal(t, "order-7", id)
	assert.Equal(t, model.SourceKey, src)

	id, src = FlowID(Record{Key: strPtr("order-7")})
	assert.Equal(t, model.UnknownFlowID, id, "uploads ignore keys")
	assert.Equal(t, model.SourceNone, src)
}

func TestFlowIDZeroRecord(t *testing.T) {
	assert.NotPanics(t, func() {
		id, src := FlowID(Record{})
		assert.Equal(t, model.UnknownFlowID, id)
		assert.Equal(t, model.SourceNone, src)
	})
}

func TestFlowIDNonObjectFields(t *testing.T) {
	id, _ := FlowID(Record{Fields: obj(t, `[{"flowId":"x"}]`)})
	assert.Equal(t, model.UnknownFlowID, id)
}
