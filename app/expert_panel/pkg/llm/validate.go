package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaResource = "response_schema.json"

// compileSchema 编译调用方给出的 JSON Schema。
// 字符串 enum 在校验时忽略大小写，取值的规范化留给调用方。
func compileSchema(jsonSchema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(foldEnums(jsonSchema))
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaResource, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	s, err := compiler.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return s, nil
}

// validate 按 schema 校验已解析的值；schema 为空时不校验
func validate(jsonSchema map[string]any, v any) error {
	if len(jsonSchema) == 0 {
		return nil
	}
	s, err := compileSchema(jsonSchema)
	if err != nil {
		return err
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}
	return nil
}

// foldEnums 返回副本，纯字符串 enum 改写为忽略大小写的 pattern
func foldEnums(node any) any {
	switch n := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, v := range n {
			out[k] = foldEnums(v)
		}
		if values, ok := stringEnum(n["enum"]); ok {
			delete(out, "enum")
			quoted := make([]string, len(values))
			for i, s := range values {
				quoted[i] = regexp.QuoteMeta(s)
			}
			out["pattern"] = "(?i)^(" + strings.Join(quoted, "|") + ")$"
			if _, typed := out["type"]; !typed {
				out["type"] = "string"
			}
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, v := range n {
			out[i] = foldEnums(v)
		}
		return out
	default:
		return node
	}
}

func stringEnum(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return nil, false
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}
