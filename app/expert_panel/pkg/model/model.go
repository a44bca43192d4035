package model

import "strings"

// Confidence 置信度枚举
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// Levels 合法的置信度/优先级取值，顺序即 schema 中的 enum 顺序
var Levels = []string{string(ConfidenceHigh), string(ConfidenceMedium), string(ConfidenceLow)}

// ParseConfidence 大小写不敏感地解析置信度，无法识别时返回 false
func ParseConfidence(s string) (Confidence, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return ConfidenceHigh, true
	case "medium":
		return ConfidenceMedium, true
	case "low":
		return ConfidenceLow, true
	}
	return ConfidenceLow, false
}

// Persona 专家角色
type Persona struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	FocusAreas  []string `json:"focus_areas"`
}

// InsightItem 单条专家洞察
type InsightItem struct {
	Insight                 string     `json:"insight"`
	SupportingReasoning     string     `json:"supporting_reasoning"`
	ConfidenceLevel         Confidence `json:"confidence_level"`
	IdentifiedRisks         []string   `json:"identified_risks,omitempty"`
	IdentifiedOpportunities []string   `json:"identified_opportunities,omitempty"`
	ImplementationIdeas     []string   `json:"implementation_ideas,omitempty"`
}

// PersonaInsightPackage 某个专家的全部洞察
type PersonaInsightPackage struct {
	PersonaName         string        `json:"persona_name"`
	InsightsAndAnalysis []InsightItem `json:"insights_and_analysis"`
	Error               string        `json:"error,omitempty"`
}

// Failed 该专家的洞察是否生成失败
func (p PersonaInsightPackage) Failed() bool {
	return p.Error != ""
}

// 市场情报来源
const (
	SourceSearch      = "search"
	SourceFallback    = "fallback"
	SourceUnavailable = "unavailable"
)

// MarketIntelligenceItem 单条市场情报
type MarketIntelligenceItem struct {
	Type            string     `json:"type"`
	Title           string     `json:"title"`
	Content         string     `json:"content"`
	KeyInsights     []string   `json:"key_insights"`
	ConfidenceLevel Confidence `json:"confidence_level"`
	Source          string     `json:"source"`
	Error           string     `json:"error,omitempty"`
}

// NextStep 行动建议
type NextStep struct {
	StepDescription    string     `json:"step_description"`
	Priority           Confidence `json:"priority"`
	SuggestedRationale string     `json:"suggested_rationale,omitempty"`
}

// SynthesisReport 最终综合报告；失败时只有 Error/Details
type SynthesisReport struct {
	CohesiveSummary     string     `json:"cohesive_summary,omitempty"`
	KeyThemes           []string   `json:"key_themes,omitempty"`
	PotentialBlindSpots []string   `json:"potential_blind_spots,omitempty"`
	ActionableNextSteps []NextStep `json:"actionable_next_steps,omitempty"`
	Error               string     `json:"error,omitempty"`
	Details             string     `json:"details,omitempty"`
}

// Usage token 用量
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add 累加用量，nil 安全
func (u *Usage) Add(o *Usage) {
	if u == nil || o == nil {
		return
	}
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
}

// TokenUsage 各阶段 token 用量
type TokenUsage struct {
	PersonaGeneration  Usage `json:"persona_generation"`
	ExpertInsights     Usage `json:"expert_insights"`
	MarketIntelligence Usage `json:"market_intelligence"`
	Synthesis          Usage `json:"synthesis"`
	Total              Usage `json:"total"`
}

// Sum 重新计算 Total
func (t *TokenUsage) Sum() {
	t.Total = Usage{}
	t.Total.Add(&t.PersonaGeneration)
	t.Total.Add(&t.ExpertInsights)
	t.Total.Add(&t.MarketIntelligence)
	t.Total.Add(&t.Synthesis)
}

// AnalysisSummary 运行概要，部分失败也在这里体现
type AnalysisSummary struct {
	RunID                 string  `json:"run_id"`
	PersonasGenerated     int     `json:"personas_generated"`
	InsightsSuccessful    int     `json:"insights_successful"`
	InsightsFailed        int     `json:"insights_failed"`
	MarketItems           int     `json:"market_items"`
	MarketFallbacks       int     `json:"market_fallbacks"`
	MarketUnavailable     int     `json:"market_unavailable"`
	SynthesisSucceeded    bool    `json:"synthesis_succeeded"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
}

// AnalysisRun 一次完整的专家组分析
type AnalysisRun struct {
	OriginalProblem        string                   `json:"original_problem"`
	GeneratedPersonasCount int                      `json:"generated_personas_count"`
	PersonaDefinitions     []Persona                `json:"persona_definitions"`
	ExpertInsights         []PersonaInsightPackage  `json:"expert_insights"`
	MarketIntelligence     []MarketIntelligenceItem `json:"market_intelligence"`
	SynthesisReport        SynthesisReport          `json:"synthesis_report"`
	TokenUsage             *TokenUsage              `json:"token_usage,omitempty"`
	AnalysisSummary        AnalysisSummary          `json:"analysis_summary"`
}

// Partial 是否存在阶段性失败
func (r *AnalysisRun) Partial() bool {
	s := r.AnalysisSummary
	return s.InsightsFailed > 0 || s.MarketFallbacks > 0 || s.MarketUnavailable > 0 || !s.SynthesisSucceeded
}
