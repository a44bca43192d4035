// Package sanitize 清理模型输出中的标记残留：引用标签、加粗/斜体标记和多余空白。
package sanitize

import (
	"regexp"
	"strings"
)

var (
	// [REF]...[/REF], [REF1]...[/REF1]
	pairedRef = regexp.MustCompile(`(?i)\[REF\d*\].*?\[/REF\d*\]`)
	// 落单的 [REF] / [/REF2]
	unpairedRef = regexp.MustCompile(`(?i)\[/?REF\d*\]`)
	// [1] / [2, 3] 形式的数字引用
	numericRef = regexp.MustCompile(`\[\d+(?:\s*,\s*\d+)*\]`)
	bold       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italic     = regexp.MustCompile(`\*([^*\s](?:[^*\n]*[^*\s])?)\*`)
	spaces     = regexp.MustCompile(`\s+`)
	lineSpaces = regexp.MustCompile(`[^\S\n]+`)
	blankLines = regexp.MustCompile(`\n{2,}`)
)

// 每条规则都不会加长字符串，通常两轮内收敛
const maxPasses = 8

// Sanitize 递归清理 map / slice 中的所有字符串叶子，其它值原样返回
func Sanitize(v any) any {
	switch t := v.(type) {
	case string:
		return String(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Sanitize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Sanitize(val)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, val := range t {
			out[k] = String(val)
		}
		return out
	case []string:
		return Strings(t)
	default:
		return v
	}
}

// Strings 清理字符串切片
func Strings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = String(s)
	}
	return out
}

// String 清理单个字符串，结果中不含换行
func String(s string) string {
	return fixpoint(s, func(cur string) string {
		cur = stripMarkup(cur)
		cur = spaces.ReplaceAllString(cur, " ")
		return strings.TrimSpace(cur)
	})
}

// Lines 与 String 相同，但保留换行，供按行抽取要点使用
func Lines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return fixpoint(s, func(cur string) string {
		cur = stripMarkup(cur)
		cur = lineSpaces.ReplaceAllString(cur, " ")
		lines := strings.Split(cur, "\n")
		for i, l := range lines {
			lines[i] = strings.TrimSpace(l)
		}
		cur = blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n")
		return strings.TrimSpace(cur)
	})
}

func stripMarkup(s string) string {
	s = pairedRef.ReplaceAllString(s, "")
	s = unpairedRef.ReplaceAllString(s, "")
	s = numericRef.ReplaceAllString(s, "")
	s = bold.ReplaceAllString(s, "$1")
	s = italic.ReplaceAllString(s, "$1")
	return s
}

func fixpoint(s string, step func(string) string) string {
	for i := 0; i < maxPasses; i++ {
		next := step(s)
		if next == s {
			return next
		}
		s = next
	}
	return s
}
