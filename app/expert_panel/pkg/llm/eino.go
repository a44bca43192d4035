package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	dm "github.com/iWorld-y/expert_panel/app/expert_panel/pkg/model"
)

// EinoTransport 通过 eino ChatModel 调用模型。
// 该实现不支持 response_format 与联网搜索参数：schema 以系统消息的形式附加，搜索标志被忽略。
type EinoTransport struct {
	chatModel model.BaseChatModel
}

// NewEinoTransport 基于 eino-ext 的 OpenAI 兼容实现创建传输
func NewEinoTransport(ctx context.Context, baseURL, apiKey, defaultModel string, timeout time.Duration) (*EinoTransport, error) {
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   defaultModel,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM 初始化失败: %w", err)
	}
	return &EinoTransport{chatModel: chatModel}, nil
}

// NewEinoTransportWithModel 使用已有的 ChatModel
func NewEinoTransportWithModel(cm model.BaseChatModel) *EinoTransport {
	return &EinoTransport{chatModel: cm}
}

// Complete 实现 Transport
func (t *EinoTransport) Complete(ctx context.Context, req *Request) (*Envelope, error) {
	messages := req.Messages
	if req.Schema != nil {
		raw, err := json.Marshal(req.Schema.Schema)
		if err != nil {
			return nil, fmt.Errorf("marshal schema: %w", err)
		}
		hint := &schema.Message{
			Role:    schema.System,
			Content: "你是一个 JSON 生成器。请只输出符合以下 JSON Schema 的 JSON：\n" + string(raw),
		}
		messages = append([]*schema.Message{hint}, req.Messages...)
	}

	opts := []model.Option{
		model.WithModel(req.Model),
		model.WithTemperature(float32(req.Temperature)),
	}
	if req.MaxCompletionTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxCompletionTokens))
	}

	resp, err := t.chatModel.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, &EnvelopeError{Reason: "empty response"}
	}

	content, err := json.Marshal(resp.Content)
	if err != nil {
		return nil, err
	}
	env := &Envelope{
		Choices: []Choice{{Message: ChoiceMessage{Role: string(resp.Role), Content: content}}},
		Raw:     resp.Content,
	}
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		u := resp.ResponseMeta.Usage
		env.Usage = &dm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return env, nil
}
