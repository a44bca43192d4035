package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatModel struct {
	reply string
	err   error
	input []*schema.Message
	opts  *model.Options
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.input = input
	f.opts = model.GetCommonOptions(&model.Options{}, opts...)
	if f.err != nil {
		return nil, f.err
	}
	return &schema.Message{
		Role:    schema.Assistant,
		Content: f.reply,
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7},
		},
	}, nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestEinoTransport_Call(t *testing.T) {
	fake := &fakeChatModel{reply: "```json\n{\"persona_name\": \"CFO\"}\n```"}
	c := NewCaller(NewEinoTransportWithModel(fake), Options{Temperature: 0.5, MaxCompletionTokens: 100})

	res, err := c.Call(context.Background(), "qwen", userMsg, "s", objectSpec)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"persona_name": "CFO"}, res.Data)
	require.NotNil(t, res.Usage)
	assert.Equal(t, 7, res.Usage.TotalTokens)

	require.Len(t, fake.input, 2)
	assert.Equal(t, schema.System, fake.input[0].Role)
	assert.Contains(t, fake.input[0].Content, `{"type":"object"}`)
	require.NotNil(t, fake.opts.Model)
	assert.Equal(t, "qwen", *fake.opts.Model)
	require.NotNil(t, fake.opts.MaxTokens)
	assert.Equal(t, 100, *fake.opts.MaxTokens)
}

func TestEinoTransport_Error(t *testing.T) {
	fake := &fakeChatModel{err: errors.New("connection refused")}
	c := NewCaller(NewEinoTransportWithModel(fake), Options{})

	_, err := c.Call(context.Background(), "qwen", userMsg, "s", objectSpec)
	ce, ok := AsCallError(err)
	require.True(t, ok)
	assert.Equal(t, KindTransport, ce.Kind)
	assert.ErrorContains(t, ce, "connection refused")
}
