package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	calls  atomic.Int32
	header http.Header
	body   map[string]any
}

// newServer 启动一个假的 chat completions 服务，reply 返回状态码与响应体
func newServer(t *testing.T, reply func(n int32, r *http.Request) (int, string)) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := c.calls.Add(1)
		raw, _ := io.ReadAll(r.Body)
		c.header = r.Header.Clone()
		c.body = nil
		_ = json.Unmarshal(raw, &c.body)

		status, body := reply(n, r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func envelope(content any) string {
	raw, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
		"usage":   map[string]any{"prompt_tokens": 11, "completion_tokens": 7, "total_tokens": 18},
	})
	return string(raw)
}

func newTestCaller(srv *httptest.Server, opts Options) *Caller {
	if opts.BaseDelay == 0 {
		opts.BaseDelay = time.Millisecond
	}
	return NewCaller(NewHTTPTransport(srv.URL+"/api/v1", "test-key", srv.Client()), opts)
}

var (
	userMsg    = []*schema.Message{{Role: schema.User, Content: "hello"}}
	objectSpec = map[string]any{"type": "object"}
)

func TestCall_FencedJSON(t *testing.T) {
	srv, got := newServer(t, func(int32, *http.Request) (int, string) {
		return 200, envelope("Sure! ```json\n{\"personas\":[]}\n```")
	})
	c := newTestCaller(srv, Options{Temperature: 0.7, MaxCompletionTokens: 3000})

	res, err := c.Call(context.Background(), "m1", userMsg, "personas_1", objectSpec)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"personas": []any{}}, res.Data)
	assert.Empty(t, res.Warning)
	require.NotNil(t, res.Usage)
	assert.Equal(t, 18, res.Usage.TotalTokens)

	assert.Equal(t, "Bearer test-key", got.header.Get("Authorization"))
	assert.Equal(t, "m1", got.body["model"])
	assert.Equal(t, 0.7, got.body["temperature"])
	assert.Equal(t, 3000.0, got.body["max_completion_tokens"])
	format := got.body["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	js := format["json_schema"].(map[string]any)
	assert.Equal(t, "personas_1", js["name"])
	assert.Equal(t, true, js["strict"])
	assert.Equal(t, objectSpec, js["schema"])
	assert.NotContains(t, got.body, "venice_parameters")
}

func TestCall_SanitizesStringLeaves(t *testing.T) {
	srv, _ := newServer(t, func(int32, *http.Request) (int, string) {
		return 200, envelope(`{"a": "**Bold** claim [REF1]x[/REF]", "n": 3, "list": ["*x*"]}`)
	})
	res, err := newTestCaller(srv, Options{}).Call(context.Background(), "m1", userMsg, "s", objectSpec)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "Bold claim", "n": 3.0, "list": []any{"x"}}, res.Data)

	var out struct {
		A string `json:"a"`
	}
	require.NoError(t, res.Decode(&out))
	assert.Equal(t, "Bold claim", out.A)
}

func TestCall_EnvelopeFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind Kind
	}{
		{"empty choices", `{"choices": []}`, KindMalformedEnvelope},
		{"missing choices", `{"id": "x"}`, KindMalformedEnvelope},
		{"missing content", `{"choices": [{"message": {"role": "assistant"}}]}`, KindMalformedEnvelope},
		{"null content", `{"choices": [{"message": {"content": null}}]}`, KindMalformedEnvelope},
		{"body not json", `<html>oops</html>`, KindMalformedEnvelope},
		{"content not json", envelope("I cannot help with that."), KindDecode},
		{"array for object schema", envelope(`[1, 2]`), KindUnexpectedShape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, func(int32, *http.Request) (int, string) { return 200, tt.body })
			res, err := newTestCaller(srv, Options{}).Call(context.Background(), "m1", userMsg, "s", objectSpec)
			assert.Nil(t, res)
			ce, ok := AsCallError(err)
			require.True(t, ok, "error %v is not a CallError", err)
			assert.Equal(t, tt.kind, ce.Kind)
			assert.Equal(t, "m1", ce.ModelID)
		})
	}
}

func TestCall_NonStringContentPassesThrough(t *testing.T) {
	srv, _ := newServer(t, func(int32, *http.Request) (int, string) {
		return 200, envelope(map[string]any{"already": "**structured**"})
	})
	res, err := newTestCaller(srv, Options{}).Call(context.Background(), "m1", userMsg, "s", objectSpec)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Warning)
	assert.Equal(t, map[string]any{"already": "**structured**"}, res.Data)
}

func TestCall_SchemaViolations(t *testing.T) {
	itemSpec := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":  map[string]any{"type": "string", "const": "Analyst"},
			"level": map[string]any{"type": "string", "enum": []any{"High", "Medium", "Low"}},
			"tags":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 2, "maxItems": 3},
		},
		"required":             []any{"name", "level", "tags"},
		"additionalProperties": false,
	}

	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"valid", `{"name": "Analyst", "level": "High", "tags": ["a", "b"]}`, false},
		{"enum ignores case", `{"name": "Analyst", "level": "medium", "tags": ["a", "b"]}`, false},
		{"missing required field", `{"name": "Analyst", "tags": ["a", "b"]}`, true},
		{"off enum value", `{"name": "Analyst", "level": "Certain", "tags": ["a", "b"]}`, true},
		{"const mismatch", `{"name": "Someone", "level": "Low", "tags": ["a", "b"]}`, true},
		{"too few items", `{"name": "Analyst", "level": "Low", "tags": []}`, true},
		{"too many items", `{"name": "Analyst", "level": "Low", "tags": ["a", "b", "c", "d"]}`, true},
		{"extra property", `{"name": "Analyst", "level": "Low", "tags": ["a", "b"], "x": 1}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, func(int32, *http.Request) (int, string) { return 200, envelope(tt.content) })
			res, err := newTestCaller(srv, Options{}).Call(context.Background(), "m1", userMsg, "s", itemSpec)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.NotNil(t, res.Data)
				return
			}
			assert.Nil(t, res)
			ce, ok := AsCallError(err)
			require.True(t, ok, "error %v is not a CallError", err)
			assert.Equal(t, KindUnexpectedShape, ce.Kind)
			assert.Equal(t, tt.content, ce.Raw)
		})
	}
}

func TestFoldEnums(t *testing.T) {
	in := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"p": map[string]any{"type": "string", "enum": []any{"High", "a.b"}},
			"n": map[string]any{"enum": []any{1, 2}},
		},
	}
	out := foldEnums(in).(map[string]any)
	props := out["properties"].(map[string]any)

	p := props["p"].(map[string]any)
	assert.NotContains(t, p, "enum")
	assert.Equal(t, `(?i)^(High|a\.b)$`, p["pattern"])
	assert.Equal(t, []any{1, 2}, props["n"].(map[string]any)["enum"])

	// 原 schema 不变，仍按原样发给模型
	assert.Contains(t, in["properties"].(map[string]any)["p"], "enum")
}

func TestCall_NoMessages(t *testing.T) {
	srv, got := newServer(t, func(int32, *http.Request) (int, string) { return 200, envelope("{}") })
	_, err := newTestCaller(srv, Options{}).Call(context.Background(), "m1", nil, "s", objectSpec)
	ce, ok := AsCallError(err)
	require.True(t, ok)
	assert.Equal(t, KindUnexpectedShape, ce.Kind)
	assert.Equal(t, int32(0), got.calls.Load())
}

func TestCall_StatusErrors(t *testing.T) {
	t.Run("4xx is not retried", func(t *testing.T) {
		srv, got := newServer(t, func(int32, *http.Request) (int, string) { return 400, `{"error":"bad"}` })
		_, err := newTestCaller(srv, Options{MaxRetries: 3}).Call(context.Background(), "m1", userMsg, "s", objectSpec)
		ce, ok := AsCallError(err)
		require.True(t, ok)
		assert.Equal(t, KindTransport, ce.Kind)
		assert.Equal(t, 400, ce.StatusCode)
		assert.Contains(t, ce.Raw, "bad")
		assert.Equal(t, int32(1), got.calls.Load())
	})

	t.Run("429 then success", func(t *testing.T) {
		srv, got := newServer(t, func(n int32, _ *http.Request) (int, string) {
			if n == 1 {
				return 429, `{"error":"slow down"}`
			}
			return 200, envelope(`{"ok": true}`)
		})
		res, err := newTestCaller(srv, Options{MaxRetries: 2}).Call(context.Background(), "m1", userMsg, "s", objectSpec)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"ok": true}, res.Data)
		assert.Equal(t, int32(2), got.calls.Load())
	})

	t.Run("5xx exhausts retries", func(t *testing.T) {
		srv, got := newServer(t, func(int32, *http.Request) (int, string) { return 503, "unavailable" })
		_, err := newTestCaller(srv, Options{MaxRetries: 2}).Call(context.Background(), "m1", userMsg, "s", objectSpec)
		ce, ok := AsCallError(err)
		require.True(t, ok)
		assert.Equal(t, 503, ce.StatusCode)
		assert.True(t, ce.Retryable())
		assert.Equal(t, int32(3), got.calls.Load())
	})
}

func TestCall_Timeout(t *testing.T) {
	srv, _ := newServer(t, func(_ int32, r *http.Request) (int, string) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		return 200, envelope("{}")
	})
	_, err := newTestCaller(srv, Options{Timeout: 50 * time.Millisecond}).Call(context.Background(), "m1", userMsg, "s", objectSpec)
	ce, ok := AsCallError(err)
	require.True(t, ok)
	assert.Equal(t, KindTimeout, ce.Kind)
}

func TestCall_CancelledContext(t *testing.T) {
	srv, _ := newServer(t, func(int32, *http.Request) (int, string) { return 200, envelope("{}") })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestCaller(srv, Options{MaxRetries: 3}).Call(ctx, "m1", userMsg, "s", objectSpec)
	_, ok := AsCallError(err)
	assert.True(t, ok)
}

func TestSearch(t *testing.T) {
	srv, got := newServer(t, func(int32, *http.Request) (int, string) {
		return 200, envelope("Findings:\n- **Meal kits** grew 12% in 2023 [1]\n- Churn remains high [REF]a[/REF]")
	})
	sc := NewSearchCaller(newTestCaller(srv, Options{}))

	res, err := sc.Search(context.Background(), "meal kit market size", "search-model")
	require.NoError(t, err)
	assert.Equal(t, "Findings: - Meal kits grew 12% in 2023 - Churn remains high", res.Content)
	assert.Equal(t, "Findings:\n- Meal kits grew 12% in 2023\n- Churn remains high", res.Lines)
	require.NotNil(t, res.Usage)
	assert.Equal(t, 11, res.Usage.PromptTokens)

	assert.Equal(t, map[string]any{"enable_web_search": "on"}, got.body["venice_parameters"])
	assert.NotContains(t, got.body, "response_format")
	msgs := got.body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "meal kit market size", msgs[1].(map[string]any)["content"])
}

func TestSearch_Failures(t *testing.T) {
	srv, _ := newServer(t, func(int32, *http.Request) (int, string) { return 200, envelope("  [REF]only[/REF] ") })
	sc := NewSearchCaller(newTestCaller(srv, Options{}))

	_, err := sc.Search(context.Background(), "q", "m")
	ce, ok := AsCallError(err)
	require.True(t, ok)
	assert.Equal(t, KindUnexpectedShape, ce.Kind)

	_, err = sc.Search(context.Background(), "", "m")
	assert.Error(t, err)
}

func TestCallError_Error(t *testing.T) {
	err := &CallError{Kind: KindTransport, ModelID: "m", StatusCode: 502, Detail: "bad gateway"}
	assert.Equal(t, "llm call transport-error (model m) status 502: bad gateway", err.Error())
	assert.True(t, err.Retryable())
	assert.False(t, (&CallError{Kind: KindDecode}).Retryable())
}
