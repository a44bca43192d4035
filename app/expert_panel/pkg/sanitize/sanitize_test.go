package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"citation and bold", "Revenue grew **20%** [REF1]citation[/REF] this year", "Revenue grew 20% this year"},
		{"unpaired tags", "Growth [REF]continues[/REF2] strongly [REF3]", "Growth strongly"},
		{"numeric refs", "Adoption doubled [1] in 2023 [2, 3].", "Adoption doubled in 2023 ."},
		{"italic", "The *key* driver is cost", "The key driver is cost"},
		{"arithmetic untouched", "5 * 3 * 2", "5 * 3 * 2"},
		{"nested emphasis", "***very*** important", "very important"},
		{"whitespace", "  a\n\n\tb   c ", "a b c"},
		{"tag rebuilt by removal", "[RE[REF]x[/REF]F] done", "done"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := String(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, String(got), "not idempotent")
		})
	}
}

func TestSanitize_Recursive(t *testing.T) {
	in := map[string]any{
		"title": "**Market** size",
		"items": []any{"a  [REF]x[/REF]", 42.0, true, nil, map[string]any{"deep": "*x*"}},
		"tags":  []string{" **t** "},
		"count": 3,
	}

	out := Sanitize(in).(map[string]any)
	assert.Equal(t, "Market size", out["title"])
	assert.Equal(t, []any{"a", 42.0, true, nil, map[string]any{"deep": "x"}}, out["items"])
	assert.Equal(t, []string{"t"}, out["tags"])
	assert.Equal(t, 3, out["count"])

	assert.Equal(t, out, Sanitize(out))
	// 输入不被修改
	assert.Equal(t, "**Market** size", in["title"])
}

func TestLines_KeepsLineBreaks(t *testing.T) {
	in := "- **First** point [REF]1[/REF]\r\n\n\n-   Second   point\n"
	got := Lines(in)
	assert.Equal(t, "- First point\n- Second point", got)
	assert.Equal(t, got, Lines(got))
}
