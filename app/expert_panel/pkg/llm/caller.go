package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/config"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/jsonx"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/logger"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/metrics"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/model"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/sanitize"
)

const (
	defaultTimeout   = 120 * time.Second
	defaultBaseDelay = 2 * time.Second
)

// Options 调用参数
type Options struct {
	Timeout             time.Duration
	MaxRetries          int
	BaseDelay           time.Duration
	Temperature         float64
	MaxCompletionTokens int
	Limiter             *rate.Limiter
	Metrics             *metrics.Metrics
}

// Caller 结构化模型调用器，可并发使用
type Caller struct {
	transport Transport
	opts      Options
}

// Result 一次结构化调用的结果
type Result struct {
	// Data 解析并清理后的 JSON 值；Warning 非空时为未解析的原始 content
	Data    any
	Usage   *model.Usage
	Warning string
	Raw     string
}

// Decode 把 Data 解码到具体类型
func (r *Result) Decode(out any) error {
	return jsonx.Convert(r.Data, out)
}

// NewCaller 创建调用器
func NewCaller(t Transport, opts Options) *Caller {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Caller{transport: t, opts: opts}
}

// NewTransport 按 llm.provider 创建传输，HTTP 客户端在所有调用间共享
func NewTransport(ctx context.Context, cfg config.LLMConfig) (Transport, error) {
	switch cfg.Provider {
	case "", "http":
		return NewHTTPTransport(cfg.BaseURL, cfg.APIKey, &http.Client{}), nil
	case "eino":
		return NewEinoTransport(ctx, cfg.BaseURL, cfg.APIKey, cfg.PersonaModel, cfg.CallTimeout())
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// NewCallerFromConfig 根据配置创建调用器
func NewCallerFromConfig(ctx context.Context, cfg *config.Config, limiter *rate.Limiter, m *metrics.Metrics) (*Caller, error) {
	t, err := NewTransport(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	return NewCaller(t, Options{
		Timeout:             cfg.LLM.CallTimeout(),
		MaxRetries:          cfg.LLM.MaxRetries,
		Temperature:         cfg.LLM.TemperatureValue(),
		MaxCompletionTokens: cfg.LLM.MaxCompletionTokens,
		Limiter:             limiter,
		Metrics:             m,
	}), nil
}

// Call 发起一次 JSON Schema 约束的调用。
// 返回的 error 总是 *CallError。
func (c *Caller) Call(ctx context.Context, modelID string, messages []*schema.Message, schemaName string, jsonSchema map[string]any) (*Result, error) {
	if len(messages) == 0 {
		return nil, &CallError{Kind: KindUnexpectedShape, ModelID: modelID, Detail: "no messages"}
	}

	req := &Request{
		Model:               modelID,
		Messages:            messages,
		Schema:              &ResponseSchema{Name: schemaName, Schema: jsonSchema},
		Temperature:         c.opts.Temperature,
		MaxCompletionTokens: c.opts.MaxCompletionTokens,
	}
	env, err := c.complete(ctx, req, "structured")
	if err != nil {
		return nil, err
	}

	raw, err := firstContent(modelID, env)
	if err != nil {
		return nil, err
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		var v any
		_ = json.Unmarshal(raw, &v)
		logger.Log.Warnf("模型 [%s] 返回了非字符串 content，原样透传", modelID)
		return &Result{
			Data:    v,
			Usage:   env.Usage,
			Warning: "content is not a string; passed through unparsed",
			Raw:     string(raw),
		}, nil
	}

	parsed, err := jsonx.Decode(text)
	if err != nil {
		logger.Log.Debugf("模型 [%s] 响应无法解析: %s", modelID, text)
		return nil, &CallError{Kind: KindDecode, ModelID: modelID, Detail: err.Error(), Raw: text, Err: err}
	}
	if err := validate(jsonSchema, parsed); err != nil {
		logger.Log.Debugf("模型 [%s] 响应不符合 schema: %v", modelID, err)
		return nil, &CallError{Kind: KindUnexpectedShape, ModelID: modelID, Detail: err.Error(), Raw: text, Err: err}
	}

	return &Result{Data: sanitize.Sanitize(parsed), Usage: env.Usage, Raw: text}, nil
}

// complete 带限流、单次超时与退避重试的请求
func (c *Caller) complete(ctx context.Context, req *Request, call string) (*Envelope, error) {
	var lastErr *CallError
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.opts.BaseDelay * time.Duration(1<<(attempt-1))
			logger.Log.Warnf("模型 [%s] 调用失败 (%v)，%v 后第 %d 次重试", req.Model, lastErr, delay, attempt)
			select {
			case <-ctx.Done():
				return nil, classify(req.Model, ctx.Err())
			case <-time.After(delay):
			}
		}
		if c.opts.Limiter != nil {
			if err := c.opts.Limiter.Wait(ctx); err != nil {
				return nil, classify(req.Model, err)
			}
		}

		start := time.Now()
		env, err := c.once(ctx, req)
		if err == nil {
			c.opts.Metrics.ObserveCall(req.Model, call, "ok", time.Since(start))
			if env.Usage != nil {
				c.opts.Metrics.ObserveTokens(env.Usage.PromptTokens, env.Usage.CompletionTokens)
			}
			return env, nil
		}

		lastErr = classify(req.Model, err)
		c.opts.Metrics.ObserveCall(req.Model, call, string(lastErr.Kind), time.Since(start))
		if ctx.Err() != nil || !lastErr.Retryable() {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (c *Caller) once(ctx context.Context, req *Request) (*Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	return c.transport.Complete(ctx, req)
}

// firstContent 取 choices[0].message.content，缺失视为外层结构错误
func firstContent(modelID string, env *Envelope) (json.RawMessage, error) {
	if env == nil || len(env.Choices) == 0 {
		raw := ""
		if env != nil {
			raw = env.Raw
		}
		return nil, &CallError{Kind: KindMalformedEnvelope, ModelID: modelID, Detail: "empty or missing choices", Raw: raw}
	}
	content := env.Choices[0].Message.Content
	if len(content) == 0 || string(content) == "null" {
		return nil, &CallError{Kind: KindMalformedEnvelope, ModelID: modelID, Detail: "missing message content", Raw: env.Raw}
	}
	return content, nil
}
