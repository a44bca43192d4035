// Package jsonx 从模型返回的自由文本中尽力解析出 JSON。
//
// 尝试顺序：
//  1. 括号切片：第一个 '{' 或 '[' 到最后一个 '}' 或 ']' 之间的文本；
//  2. 首值解析：从第一个括号开始只解析第一个完整的 JSON 值（兼容多个对象或尾随文本）；
//  3. 原文解析：整段文本按 JSON 解析；
//  4. 以上都失败时返回最后一次的解析错误。
package jsonx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmpty 内容为空
var ErrEmpty = errors.New("empty content")

// Slice 返回第一个起始括号到最后一个结束括号之间的文本。
// ok 为 false 表示没有找到起始括号，或结束括号不在起始括号之后。
func Slice(text string) (slice string, start int, ok bool) {
	start = strings.IndexAny(text, "{[")
	if start < 0 {
		return "", -1, false
	}
	end := strings.LastIndexAny(text, "}]")
	if end <= start {
		return "", start, false
	}
	return text[start : end+1], start, true
}

// Decode 按上述顺序解析 text
func Decode(text string) (any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmpty
	}

	var lastErr error
	slice, start, ok := Slice(text)
	if ok {
		v, err := unmarshal(slice)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	if start >= 0 {
		v, err := leadingValue(text[start:])
		if err == nil {
			return v, nil
		}
		if lastErr == nil {
			lastErr = err
		}
	}

	v, err := unmarshal(strings.TrimSpace(text))
	if err == nil {
		return v, nil
	}
	if lastErr == nil {
		lastErr = err
	}
	return nil, fmt.Errorf("decode json: %w", lastErr)
}

// Into 解析 text 并解码到 out
func Into(text string, out any) error {
	v, err := Decode(text)
	if err != nil {
		return err
	}
	return Convert(v, out)
}

// Convert 把通用的 map/slice 结构转成具体类型
func Convert(v any, out any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func unmarshal(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func leadingValue(s string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
