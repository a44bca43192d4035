package engine

import (
	"fmt"
	"strings"

	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/model"
)

const personaPromptTpl = `Given the business problem: "%s"

Identify and define exactly %d diverse expert personas that could offer unique and valuable insights.
Include a mix of traditional business roles and some non-traditional or creative/futuristic roles.
Every persona must have a distinct name.

Your response MUST be a JSON object adhering to the specified schema.
The JSON should contain a single key "personas", which is an array of %d persona objects.
Each persona object must have 'name' (string), 'description' (string), and 'focus_areas' (array of strings).`

const insightPromptTpl = `You are '%s'. Your expertise: %s. Focus: %s.
Analyze the business problem: "%s" strictly from your unique perspective as '%s'.

Your response MUST be a JSON object adhering to the specified schema.
The JSON should contain 'persona_name' (string, exactly "%s") and 'insights_and_analysis' (array of objects).
Each item in 'insights_and_analysis' must have 'insight' (string), 'supporting_reasoning' (string),
'confidence_level' (enum: "High", "Medium", "Low"), and optionally 'identified_risks' (array of strings),
'identified_opportunities' (array of strings) and 'implementation_ideas' (array of exactly 3 concrete ideas).`

const synthesisPromptTpl = `You are a Chief Synthesis Officer. Your task is to analyze the provided original business problem,
a collection of insights from various expert personas, and market intelligence gathered from web research.
Based on all this information, generate a concise and actionable synthesis report.

%s

Your response MUST be a JSON object adhering to the specified schema. The report should include:
1. cohesive_summary: A brief overall summary of the situation and key findings (2-3 sentences).
2. key_themes: A list of 2-4 dominant themes or patterns that emerged from the analyses.
3. potential_blind_spots: A list of 1-3 areas that might have been overlooked, have conflicting opinions, or carry notable uncertainty/low confidence.
4. actionable_next_steps: A list of 3-5 concrete, actionable next steps. Each step should include:
   - step_description (string): What needs to be done.
   - priority (string enum: "High", "Medium", "Low").
   - suggested_rationale (string, optional): Brief reason why this step is important based on the insights.`

const fallbackPromptTpl = `Live web search is unavailable. Using only your own knowledge, write a brief market analysis answering:
%s

Your response MUST be a JSON object with 'content' (a factual paragraph of 3-6 sentences, with figures where you are confident)
and 'key_insights' (array of up to 6 short, specific findings).`

// FallbackPrefix 兜底分析内容的前缀
const FallbackPrefix = "[Fallback analysis - live search unavailable]"

// UnavailableContent 搜索与兜底都失败时的内容
const UnavailableContent = "Market intelligence for this topic could not be gathered."

// marketTopic 固定的市场情报主题
type marketTopic struct {
	Type  string
	Title string
	Query string
}

// marketTopics 每次运行都恰好查询这 5 个主题，顺序即输出顺序
var marketTopics = []marketTopic{
	{"market_size", "Market Size & Growth", "What is the current market size, growth rate and the key demand drivers relevant to this problem: %s"},
	{"current_solutions", "Current Solutions & Players", "Which existing products, services and approaches currently address this problem, and how well do they work: %s"},
	{"ai_applications", "AI & Technology Applications", "How are AI and other emerging technologies being applied to this problem today: %s"},
	{"competitive_landscape", "Competitive Landscape", "Who are the main competitors, how are they positioned, and what recent moves have they made regarding: %s"},
	{"future_trends", "Future Trends & Outlook", "What are the emerging trends, forecasts and regulatory developments over the next 3-5 years for: %s"},
}

// MarketTopicCount 每次运行的市场情报条数
const MarketTopicCount = 5

const maxQueryProblem = 300

func topicQuery(t marketTopic, problem string) string {
	return fmt.Sprintf(t.Query, truncate(problem, maxQueryProblem))
}

func personaPrompt(problem string, n int) string {
	return fmt.Sprintf(personaPromptTpl, problem, n, n)
}

func insightPrompt(problem string, p model.Persona) string {
	desc := p.Description
	if desc == "" {
		desc = "No description provided."
	}
	focus := strings.Join(p.FocusAreas, ", ")
	if focus == "" {
		focus = "general"
	}
	return fmt.Sprintf(insightPromptTpl, p.Name, desc, focus, problem, p.Name, p.Name)
}

func synthesisPrompt(contextBlock string) string {
	return fmt.Sprintf(synthesisPromptTpl, contextBlock)
}

func fallbackPrompt(query string) string {
	return fmt.Sprintf(fallbackPromptTpl, query)
}

func stringArray() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

// boundedStringArray 条数限定在 [lo, hi]
func boundedStringArray(lo, hi int) map[string]any {
	s := stringArray()
	s["minItems"], s["maxItems"] = lo, hi
	return s
}

func nullableStringArray() map[string]any {
	return map[string]any{"type": []any{"array", "null"}, "items": map[string]any{"type": "string"}}
}

func levelEnum() map[string]any {
	levels := make([]any, len(model.Levels))
	for i, l := range model.Levels {
		levels[i] = l
	}
	return map[string]any{"type": "string", "enum": levels}
}

func personaSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"personas": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":        map[string]any{"type": "string"},
						"description": map[string]any{"type": "string"},
						"focus_areas": stringArray(),
					},
					"required":             []any{"name", "description", "focus_areas"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"personas"},
		"additionalProperties": false,
	}
}

// insightSchema persona_name 通过 const 固定为该专家的名字
func insightSchema(personaName string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"persona_name": map[string]any{"type": "string", "const": personaName},
			"insights_and_analysis": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"insight":                  map[string]any{"type": "string"},
						"supporting_reasoning":     map[string]any{"type": "string"},
						"confidence_level":         levelEnum(),
						"identified_risks":         nullableStringArray(),
						"identified_opportunities": nullableStringArray(),
						"implementation_ideas":     nullableStringArray(),
					},
					"required":             []any{"insight", "supporting_reasoning", "confidence_level"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"persona_name", "insights_and_analysis"},
		"additionalProperties": false,
	}
}

func fallbackSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content":      map[string]any{"type": "string"},
			"key_insights": stringArray(),
		},
		"required":             []any{"content", "key_insights"},
		"additionalProperties": false,
	}
}

func synthesisSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"cohesive_summary":      map[string]any{"type": "string"},
			"key_themes":            boundedStringArray(minKeyThemes, maxKeyThemes),
			"potential_blind_spots": boundedStringArray(minBlindSpots, maxBlindSpots),
			"actionable_next_steps": map[string]any{
				"type":     "array",
				"minItems": minNextSteps,
				"maxItems": maxNextSteps,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"step_description":    map[string]any{"type": "string"},
						"priority":            levelEnum(),
						"suggested_rationale": map[string]any{"type": []any{"string", "null"}},
					},
					"required":             []any{"step_description", "priority"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"cohesive_summary", "key_themes", "potential_blind_spots", "actionable_next_steps"},
		"additionalProperties": false,
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
