package llm

import (
	"context"
	"encoding/json"

	"github.com/cloudwego/eino/schema"

	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/model"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/sanitize"
)

const searchSystemPrompt = "You are a market research analyst with live web access. " +
	"Answer with concise, factual findings, citing concrete figures, companies and dates where available. " +
	"Prefer short bullet points."

// SearchResult 联网搜索调用的结果
type SearchResult struct {
	// Content 清理后的单行文本
	Content string
	// Lines 清理后保留换行的文本，供要点抽取使用
	Lines string
	Usage *model.Usage
}

// SearchCaller 启用联网搜索的自由文本调用
type SearchCaller struct {
	caller *Caller
}

// NewSearchCaller 复用 Caller 的传输、限流与重试设置
func NewSearchCaller(c *Caller) *SearchCaller {
	return &SearchCaller{caller: c}
}

// Search 发起一次联网搜索调用。返回的 error 总是 *CallError。
func (s *SearchCaller) Search(ctx context.Context, query, modelID string) (*SearchResult, error) {
	if query == "" {
		return nil, &CallError{Kind: KindUnexpectedShape, ModelID: modelID, Detail: "empty query"}
	}

	req := &Request{
		Model: modelID,
		Messages: []*schema.Message{
			{Role: schema.System, Content: searchSystemPrompt},
			{Role: schema.User, Content: query},
		},
		WebSearch:           true,
		Temperature:         s.caller.opts.Temperature,
		MaxCompletionTokens: s.caller.opts.MaxCompletionTokens,
	}
	env, err := s.caller.complete(ctx, req, "search")
	if err != nil {
		return nil, err
	}

	raw, err := firstContent(modelID, env)
	if err != nil {
		return nil, err
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, &CallError{Kind: KindUnexpectedShape, ModelID: modelID, Detail: "search content is not a string", Raw: string(raw)}
	}

	content := sanitize.String(text)
	if content == "" {
		return nil, &CallError{Kind: KindUnexpectedShape, ModelID: modelID, Detail: "empty search content", Raw: text}
	}
	return &SearchResult{Content: content, Lines: sanitize.Lines(text), Usage: env.Usage}, nil
}
