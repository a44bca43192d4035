package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersonaInsightPackage_WireRoundTrip(t *testing.T) {
	pkg := PersonaInsightPackage{
		PersonaName: "Supply Chain Futurist",
		InsightsAndAnalysis: []InsightItem{
			{Insight: "Nearshore assembly", SupportingReasoning: "Tariffs", ConfidenceLevel: ConfidenceHigh},
			{
				Insight:             "Pilot drone delivery",
				SupportingReasoning: "Labor shortage",
				ConfidenceLevel:     ConfidenceLow,
				IdentifiedRisks:     []string{"regulation"},
				ImplementationIdeas: []string{"a", "b", "c"},
			},
		},
	}

	raw, err := json.Marshal(pkg)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"error"`)

	var back PersonaInsightPackage
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, pkg.PersonaName, back.PersonaName)
	assert.Len(t, back.InsightsAndAnalysis, len(pkg.InsightsAndAnalysis))
	assert.False(t, back.Failed())
}

func TestParseConfidence(t *testing.T) {
	c, ok := ParseConfidence(" high ")
	assert.True(t, ok)
	assert.Equal(t, ConfidenceHigh, c)

	c, ok = ParseConfidence("certain")
	assert.False(t, ok)
	assert.Equal(t, ConfidenceLow, c)
}

func TestTokenUsageSum(t *testing.T) {
	u := TokenUsage{
		PersonaGeneration: Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		Synthesis:         Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
	}
	u.Sum()
	assert.Equal(t, Usage{PromptTokens: 11, CompletionTokens: 6, TotalTokens: 17}, u.Total)

	var nilUsage *Usage
	nilUsage.Add(&u.Total)
}

func TestAnalysisRunPartial(t *testing.T) {
	run := &AnalysisRun{AnalysisSummary: AnalysisSummary{SynthesisSucceeded: true}}
	assert.False(t, run.Partial())

	run.AnalysisSummary.InsightsFailed = 1
	assert.True(t, run.Partial())
}
