package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// 错误响应体最多保留的长度
const maxErrorBody = 2048

// HTTPTransport 直接调用 OpenAI 兼容的 chat completions 接口
type HTTPTransport struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPTransport 创建 HTTP 传输，client 为空时使用 http.DefaultClient。
// 超时由调用方通过 ctx 控制。
func NewHTTPTransport(baseURL, apiKey string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	endpoint := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(endpoint, "/chat/completions") {
		endpoint += "/chat/completions"
	}
	return &HTTPTransport{endpoint: endpoint, apiKey: apiKey, client: client}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type searchParameters struct {
	EnableWebSearch string `json:"enable_web_search"`
}

type chatRequest struct {
	Model               string            `json:"model"`
	Messages            []chatMessage     `json:"messages"`
	ResponseFormat      *responseFormat   `json:"response_format,omitempty"`
	Temperature         float64           `json:"temperature"`
	MaxCompletionTokens int               `json:"max_completion_tokens,omitempty"`
	VeniceParameters    *searchParameters `json:"venice_parameters,omitempty"`
}

func buildChatRequest(req *Request) chatRequest {
	body := chatRequest{
		Model:               req.Model,
		Messages:            make([]chatMessage, 0, len(req.Messages)),
		Temperature:         req.Temperature,
		MaxCompletionTokens: req.MaxCompletionTokens,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	if req.Schema != nil {
		body.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:   req.Schema.Name,
				Strict: true,
				Schema: req.Schema.Schema,
			},
		}
	}
	if req.WebSearch {
		body.VeniceParameters = &searchParameters{EnableWebSearch: "on"}
	}
	return body
}

// Complete 实现 Transport
func (t *HTTPTransport) Complete(ctx context.Context, req *Request) (*Envelope, error) {
	payload, err := json.Marshal(buildChatRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := string(body)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: text}
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &EnvelopeError{Reason: err.Error(), Raw: string(body)}
	}
	env.Raw = string(body)
	return &env, nil
}
