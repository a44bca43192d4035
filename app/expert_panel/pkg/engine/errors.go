package engine

import (
	"errors"
	"fmt"
)

// ErrInvalidInput 问题描述为空
var ErrInvalidInput = errors.New("business problem must not be empty")

// ErrNoPersonas 专家生成调用成功但没有返回任何专家
var ErrNoPersonas = errors.New("persona generation returned no personas")

// PipelineError 致命的流水线错误，Stage 为失败时所在的阶段
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
