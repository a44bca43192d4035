// Package llm 封装 chat completions 调用：结构化 (JSON Schema 约束) 调用与联网搜索调用。
package llm

import (
	"context"
	"encoding/json"

	"github.com/cloudwego/eino/schema"

	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/model"
)

// ResponseSchema 响应格式约束
type ResponseSchema struct {
	Name   string
	Schema map[string]any
}

// Request 一次 chat completions 请求
type Request struct {
	Model               string
	Messages            []*schema.Message
	Schema              *ResponseSchema // 为空表示自由文本
	WebSearch           bool
	Temperature         float64
	MaxCompletionTokens int
}

// Envelope chat completions 响应外层结构
type Envelope struct {
	Choices []Choice     `json:"choices"`
	Usage   *model.Usage `json:"usage,omitempty"`
	Raw     string       `json:"-"`
}

// Choice 候选回复
type Choice struct {
	Message ChoiceMessage `json:"message"`
}

// ChoiceMessage 回复消息，content 保留原始 JSON 以区分缺失与非字符串
type ChoiceMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Transport 发送一次请求并返回响应外层。
// 非 2xx 返回 *StatusError，响应体无法解析返回 *EnvelopeError。
type Transport interface {
	Complete(ctx context.Context, req *Request) (*Envelope, error)
}
