package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind 调用失败的类型
type Kind string

const (
	KindTimeout           Kind = "timeout"
	KindTransport         Kind = "transport-error"
	KindMalformedEnvelope Kind = "malformed-envelope"
	KindDecode            Kind = "json-decode-error"
	KindUnexpectedShape   Kind = "unexpected-shape"
)

// CallError 一次模型调用的失败结果
type CallError struct {
	Kind       Kind
	ModelID    string
	Detail     string
	Raw        string // 原始响应文本，尽力保留
	StatusCode int
	Err        error
}

func (e *CallError) Error() string {
	msg := fmt.Sprintf("llm call %s (model %s)", e.Kind, e.ModelID)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status %d", e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Retryable 超时、429 与 5xx 可以重试
func (e *CallError) Retryable() bool {
	switch {
	case e.Kind == KindTimeout:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= http.StatusInternalServerError:
		return true
	}
	return false
}

// AsCallError 从错误链中取出 *CallError
func AsCallError(err error) (*CallError, bool) {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// StatusError 上游返回了非 2xx 状态码
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// EnvelopeError 响应体不是预期的 chat completions 结构
type EnvelopeError struct {
	Reason string
	Raw    string
}

func (e *EnvelopeError) Error() string {
	return "malformed envelope: " + e.Reason
}

// classify 把传输层错误归类为 CallError
func classify(modelID string, err error) *CallError {
	if ce, ok := AsCallError(err); ok {
		return ce
	}

	ce := &CallError{ModelID: modelID, Detail: err.Error(), Err: err}

	var statusErr *StatusError
	var envErr *EnvelopeError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		ce.Kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		ce.Kind = KindTimeout
	case errors.As(err, &statusErr):
		ce.Kind = KindTransport
		ce.StatusCode = statusErr.StatusCode
		ce.Raw = statusErr.Body
	case errors.As(err, &envErr):
		ce.Kind = KindMalformedEnvelope
		ce.Raw = envErr.Raw
	default:
		ce.Kind = KindTransport
	}
	return ce
}
