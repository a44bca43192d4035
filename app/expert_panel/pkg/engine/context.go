package engine

import (
	"fmt"
	"strings"

	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/model"
)

const excerptLen = 500

// BuildSynthesisContext 把问题、全部专家洞察与市场情报拼成综合报告的输入
func BuildSynthesisContext(problem string, personas []model.Persona, packages []model.PersonaInsightPackage, market []model.MarketIntelligenceItem) string {
	roles := make(map[string]string, len(personas))
	for _, p := range personas {
		roles[p.Name] = p.Description
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Original Business Problem: %s\n", problem)

	sb.WriteString("\n--- Collected Expert Insights ---\n")
	for i, pkg := range packages {
		name := pkg.PersonaName
		if name == "" {
			name = fmt.Sprintf("Expert %d", i+1)
		}
		role := roles[pkg.PersonaName]
		if role == "" {
			role = "N/A"
		}
		fmt.Fprintf(&sb, "\nExpert: %s (Role: %s)\n", name, role)

		if pkg.Failed() {
			fmt.Fprintf(&sb, "  Error: %s\n", pkg.Error)
			continue
		}
		if len(pkg.InsightsAndAnalysis) == 0 {
			sb.WriteString("  No specific insights provided.\n")
			continue
		}
		for j, item := range pkg.InsightsAndAnalysis {
			fmt.Fprintf(&sb, "  - Insight %d: %s\n", j+1, item.Insight)
			fmt.Fprintf(&sb, "    Reasoning: %s\n", item.SupportingReasoning)
			fmt.Fprintf(&sb, "    Confidence: %s\n", item.ConfidenceLevel)
			if len(item.IdentifiedRisks) > 0 {
				fmt.Fprintf(&sb, "    Risks: %s\n", strings.Join(item.IdentifiedRisks, ", "))
			}
			if len(item.IdentifiedOpportunities) > 0 {
				fmt.Fprintf(&sb, "    Opportunities: %s\n", strings.Join(item.IdentifiedOpportunities, ", "))
			}
			if len(item.ImplementationIdeas) > 0 {
				fmt.Fprintf(&sb, "    Implementation ideas: %s\n", strings.Join(item.ImplementationIdeas, "; "))
			}
		}
	}

	sb.WriteString("\n--- Market Intelligence ---\n")
	for _, item := range market {
		fmt.Fprintf(&sb, "\n[%s] (confidence: %s, source: %s)\n", item.Title, item.ConfidenceLevel, item.Source)
		if len(item.KeyInsights) > 0 {
			sb.WriteString("  Key insights:\n")
			for _, k := range item.KeyInsights {
				fmt.Fprintf(&sb, "  - %s\n", k)
			}
		}
		if item.Content != "" {
			fmt.Fprintf(&sb, "  Excerpt: %s\n", truncate(item.Content, excerptLen))
		}
	}
	sb.WriteString("\n---\n")
	return sb.String()
}
