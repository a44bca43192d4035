package service

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinProblemLen = 10
	MaxProblemLen = 2000
)

// 允许任意语言的字母数字、空白与常见标点
var problemCharset = regexp.MustCompile(`^[\p{L}\p{M}\p{N}\s.,!?;:'"()\[\]/&%$€£¥+=#@*_\-–—’“”…，。？！、；：（）]+$`)

// ValidateProblem 校验业务问题，返回去除首尾空白后的文本
func ValidateProblem(problem string) (string, error) {
	problem = strings.TrimSpace(problem)
	n := utf8.RuneCountInString(problem)
	if n < MinProblemLen || n > MaxProblemLen {
		return "", fmt.Errorf("Problem must be between %d and %d characters", MinProblemLen, MaxProblemLen)
	}
	if !problemCharset.MatchString(problem) {
		return "", fmt.Errorf("Problem contains invalid characters")
	}
	return problem, nil
}
