// Package insight 从非结构化的搜索文本中启发式地抽取要点。
package insight

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/sanitize"
)

// NoInformation 内容过短时返回的唯一一项
const NoInformation = "No specific market insights could be extracted from the available information."

const (
	MaxInsights    = 6
	minContent     = 50
	bulletMin      = 30
	bulletMax      = 150
	bulletCap      = 8
	sentenceMin    = 25
	sentenceMax    = 180
	sentenceScore  = 3
	overlapRatio   = 0.7
	fallbackMaxLen = 150
)

// TermWeights 领域关键词权重：数量/市场/战略类高于泛化的重要性词汇。
// 多词条目按子串计数，单词条目按完整单词计数。
var TermWeights = map[string]int{
	// quantitative
	"billion": 3, "million": 3, "trillion": 3, "percent": 3, "cagr": 3, "market share": 3,
	"revenue": 2, "growth": 2, "valuation": 2, "funding": 2, "investment": 2, "margin": 2,
	// market
	"market": 2, "customers": 2, "competitors": 2, "competition": 2, "demand": 2,
	"pricing": 2, "industry": 2, "segment": 2, "consumers": 2,
	// strategic
	"strategy": 2, "strategic": 2, "opportunity": 2, "risk": 2, "adoption": 2, "expansion": 2,
	"acquisition": 2, "partnership": 2, "innovation": 2, "regulation": 2, "forecast": 2, "trend": 2,
	// generic importance
	"important": 1, "key": 1, "significant": 1, "major": 1, "leading": 1, "critical": 1,
	"notable": 1, "emerging": 1,
}

// 数字/货币与专有名词加分
var (
	QuantityBonus   = 2
	NumberBonus     = 1
	ProperNounBonus = 1
)

var (
	bulletLine = regexp.MustCompile(`(?m)^\s*(?:[-*•▪‣◦]|\d{1,2}[.)]|>)\s+(.+)$`)
	quantity   = regexp.MustCompile(`(?i)[$€£¥]\s?\d|\d+(?:[.,]\d+)*\s?(?:%|percent\b|billion\b|million\b|trillion\b|bn\b|mn\b)`)
	digit      = regexp.MustCompile(`\d`)
	word       = regexp.MustCompile(`[\p{L}\p{N}%$']+`)

	templates = []*regexp.Regexp{
		// "Company did X"
		regexp.MustCompile(`\b[A-Z][\w&.-]+(?:\s+[A-Z][\w&.-]+)*\s+(?:launched|acquired|announced|raised|released|introduced|reported|partnered with|expanded into|invested)\s+[^.!?\n]{5,120}`),
		// "Metric reached Y"
		regexp.MustCompile(`(?i)\b[a-z][a-z\s-]{2,40}?\s+(?:reached|grew to|grew by|increased to|increased by|declined to|fell to|hit|totaled|exceeded|is projected to reach|is expected to reach)\s+[$€£]?\d[\d,.]*\s*(?:%|percent|billion|million|trillion|bn)?[^.!?\n]{0,60}`),
	}
)

// Extract 按 列表行 → 句子打分 → 模板匹配 的顺序收集要点，去重后最多返回 MaxInsights 条
func Extract(content string) []string {
	text := sanitize.Lines(content)
	if utf8.RuneCountInString(text) < minContent {
		return []string{NoInformation}
	}

	found := bulletPoints(text)
	if len(found) < 5 {
		found = append(found, scoredSentences(text)...)
	}
	if len(found) < 3 {
		found = append(found, templateMatches(text)...)
	}

	out := Dedupe(found)
	if len(out) == 0 {
		out = leadingSentences(text)
	}
	if len(out) == 0 {
		return []string{NoInformation}
	}
	if len(out) > MaxInsights {
		out = out[:MaxInsights]
	}
	return out
}

func bulletPoints(text string) []string {
	var out []string
	for _, m := range bulletLine.FindAllStringSubmatch(text, -1) {
		item := sanitize.String(m[1])
		if n := utf8.RuneCountInString(item); n > bulletMin && n < bulletMax {
			out = append(out, item)
			if len(out) >= bulletCap {
				break
			}
		}
	}
	return out
}

type scored struct {
	text  string
	score int
}

func scoredSentences(text string) []string {
	var candidates []scored
	for _, s := range Sentences(text) {
		n := utf8.RuneCountInString(s)
		if n <= sentenceMin || n >= sentenceMax {
			continue
		}
		if score := ScoreSentence(s); score >= sentenceScore {
			candidates = append(candidates, scored{text: s, score: score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.text
	}
	return out
}

func templateMatches(text string) []string {
	var out []string
	for _, re := range templates {
		for _, m := range re.FindAllString(text, -1) {
			out = append(out, strings.TrimSpace(m))
		}
	}
	return out
}

func leadingSentences(text string) []string {
	var out []string
	for _, s := range Sentences(text) {
		if utf8.RuneCountInString(s) <= sentenceMin {
			continue
		}
		out = append(out, truncate(s, fallbackMaxLen))
		if len(out) == 3 {
			break
		}
	}
	return out
}

// ScoreSentence 计算句子的信息量得分
func ScoreSentence(s string) int {
	lower := strings.ToLower(s)
	counts := map[string]int{}
	for _, w := range word.FindAllString(lower, -1) {
		counts[strings.Trim(w, "'")]++
	}

	score := 0
	for term, weight := range TermWeights {
		if strings.Contains(term, " ") {
			score += strings.Count(lower, term) * weight
		} else {
			score += counts[term] * weight
		}
	}

	switch {
	case quantity.MatchString(s):
		score += QuantityBonus
	case digit.MatchString(s):
		score += NumberBonus
	}
	if hasProperNoun(s) {
		score += ProperNounBonus
	}
	return score
}

// hasProperNoun 句首以外是否存在首字母大写的词
func hasProperNoun(s string) bool {
	words := strings.Fields(s)
	for _, w := range words[min(1, len(words)):] {
		w = strings.TrimLeft(w, `"'(`)
		r, size := utf8.DecodeRuneInString(w)
		if size == 0 || !unicode.IsUpper(r) {
			continue
		}
		if len(w) > size {
			return true
		}
	}
	return false
}

// Sentences 按句末标点和换行切分
func Sentences(text string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if s := sanitize.String(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			flush()
			continue
		}
		cur.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			flush()
		}
	}
	flush()
	return out
}

// Dedupe 规范空白后去掉重复项，以及与已保留项词重叠超过较短者 70% 的近似项
func Dedupe(items []string) []string {
	var out []string
	var kept []map[string]struct{}
	for _, item := range items {
		item = strings.Join(strings.Fields(item), " ")
		if item == "" {
			continue
		}
		tokens := tokenSet(item)
		dup := false
		for _, k := range kept {
			if overlaps(tokens, k) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		out = append(out, item)
		kept = append(kept, tokens)
	}
	return out
}

// Overlap 返回两段文本的词重叠占较短者词数的比例
func Overlap(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	shorter := min(len(ta), len(tb))
	if shorter == 0 {
		return 0
	}
	return float64(intersect(ta, tb)) / float64(shorter)
}

func overlaps(a, b map[string]struct{}) bool {
	shorter := min(len(a), len(b))
	if shorter == 0 {
		return len(a) == len(b)
	}
	return float64(intersect(a, b)) > overlapRatio*float64(shorter)
}

func intersect(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return n
}

func tokenSet(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range word.FindAllString(strings.ToLower(s), -1) {
		set[w] = struct{}{}
	}
	return set
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n-3])) + "..."
}
