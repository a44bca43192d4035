package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/insight"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/llm"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/logger"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/model"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/sanitize"
)

const (
	highConfidenceLen  = 200
	implementationIdea = 3

	minKeyThemes  = 2
	maxKeyThemes  = 4
	minBlindSpots = 1
	maxBlindSpots = 3
	minNextSteps  = 3
	maxNextSteps  = 5
)

func userMessage(content string) []*schema.Message {
	return []*schema.Message{{Role: schema.User, Content: content}}
}

// schemaName 每次调用唯一的 schema 名称
func schemaName(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// generatePersonas 唯一的致命阶段
func (e *Engine) generatePersonas(ctx context.Context, problem string) ([]model.Persona, *model.Usage, error) {
	n := e.cfg.Panel.ExpertCount
	res, err := e.caller.Call(ctx, e.cfg.LLM.PersonaModel, userMessage(personaPrompt(problem, n)), schemaName("expert_personas"), personaSchema())
	if err != nil {
		return nil, nil, err
	}

	var out struct {
		Personas []model.Persona `json:"personas"`
	}
	if err := res.Decode(&out); err != nil {
		return nil, res.Usage, &llm.CallError{Kind: llm.KindUnexpectedShape, ModelID: e.cfg.LLM.PersonaModel, Detail: err.Error(), Raw: res.Raw, Err: err}
	}
	if len(out.Personas) == 0 {
		return nil, res.Usage, ErrNoPersonas
	}
	if len(out.Personas) > n {
		logger.Log.Warnf("模型返回了 %d 位专家，只保留前 %d 位", len(out.Personas), n)
		out.Personas = out.Personas[:n]
	}
	return normalizePersonas(out.Personas), res.Usage, nil
}

// normalizePersonas 补齐空名字并保证名字唯一
func normalizePersonas(in []model.Persona) []model.Persona {
	seen := make(map[string]int, len(in))
	out := make([]model.Persona, len(in))
	for i, p := range in {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			p.Name = fmt.Sprintf("Expert %d", i+1)
		}
		base := p.Name
		for seen[p.Name] > 0 {
			seen[base]++
			p.Name = fmt.Sprintf("%s (%d)", base, seen[base])
		}
		seen[p.Name]++
		if p.FocusAreas == nil {
			p.FocusAreas = []string{}
		}
		out[i] = p
	}
	return out
}

// collectInsights 每位专家独立调用，输出顺序与专家顺序一致
func (e *Engine) collectInsights(ctx context.Context, problem string, personas []model.Persona, p *progress) ([]model.PersonaInsightPackage, *model.Usage) {
	packages := make([]model.PersonaInsightPackage, len(personas))
	usages := make([]*model.Usage, len(personas))

	var mu sync.Mutex
	done := 0

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, persona := range personas {
		i, persona := i, persona
		g.Go(func() error {
			packages[i], usages[i] = e.personaInsights(ctx, problem, persona)

			mu.Lock()
			done++
			pct := 10 + done*50/len(personas)
			mu.Unlock()
			p.report(fmt.Sprintf("insights collected: %s", persona.Name), pct)
			return nil
		})
	}
	_ = g.Wait()

	total := &model.Usage{}
	for _, u := range usages {
		total.Add(u)
	}
	return packages, total
}

func (e *Engine) personaInsights(ctx context.Context, problem string, persona model.Persona) (model.PersonaInsightPackage, *model.Usage) {
	failed := func(err error) model.PersonaInsightPackage {
		logger.Log.Warnf("专家 [%s] 洞察生成失败: %v", persona.Name, err)
		e.metrics.ObserveStage("insights", "failed")
		return model.PersonaInsightPackage{
			PersonaName:         persona.Name,
			InsightsAndAnalysis: []model.InsightItem{},
			Error:               err.Error(),
		}
	}

	modelID := e.cfg.LLM.InsightModel
	res, err := e.caller.Call(ctx, modelID, userMessage(insightPrompt(problem, persona)), schemaName("persona_insights"), insightSchema(persona.Name))
	if err != nil {
		return failed(err), nil
	}

	var out struct {
		PersonaName string              `json:"persona_name"`
		Insights    []model.InsightItem `json:"insights_and_analysis"`
	}
	if err := res.Decode(&out); err != nil {
		return failed(&llm.CallError{Kind: llm.KindUnexpectedShape, ModelID: modelID, Detail: err.Error(), Raw: res.Raw, Err: err}), res.Usage
	}
	if got := strings.TrimSpace(out.PersonaName); got != persona.Name {
		return failed(&llm.CallError{
			Kind:    llm.KindUnexpectedShape,
			ModelID: modelID,
			Detail:  fmt.Sprintf("persona_name mismatch: want %q, got %q", persona.Name, got),
			Raw:     res.Raw,
		}), res.Usage
	}

	items := make([]model.InsightItem, 0, len(out.Insights))
	for _, item := range out.Insights {
		items = append(items, normalizeInsight(item))
	}
	e.metrics.ObserveStage("insights", "ok")
	return model.PersonaInsightPackage{PersonaName: persona.Name, InsightsAndAnalysis: items}, res.Usage
}

// normalizeInsight 置信度统一大小写，实施建议必须恰好 3 条。
// 取值本身已由 schema 校验。
func normalizeInsight(item model.InsightItem) model.InsightItem {
	if c, ok := model.ParseConfidence(string(item.ConfidenceLevel)); ok {
		item.ConfidenceLevel = c
	}

	switch {
	case len(item.ImplementationIdeas) > implementationIdea:
		item.ImplementationIdeas = item.ImplementationIdeas[:implementationIdea]
	case len(item.ImplementationIdeas) < implementationIdea:
		item.ImplementationIdeas = nil
	}
	return item
}

// gatherMarketIntel 恰好产出 5 条情报，搜索失败时逐条降级
func (e *Engine) gatherMarketIntel(ctx context.Context, problem string, p *progress) ([]model.MarketIntelligenceItem, *model.Usage) {
	items := make([]model.MarketIntelligenceItem, len(marketTopics))
	usages := make([]*model.Usage, len(marketTopics))

	var mu sync.Mutex
	done := 0

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, topic := range marketTopics {
		i, topic := i, topic
		g.Go(func() error {
			items[i], usages[i] = e.marketItem(ctx, problem, topic)

			mu.Lock()
			done++
			pct := 60 + done*25/len(marketTopics)
			mu.Unlock()
			p.report(fmt.Sprintf("market intelligence: %s", topic.Title), pct)
			return nil
		})
	}
	_ = g.Wait()

	total := &model.Usage{}
	for _, u := range usages {
		total.Add(u)
	}
	return items, total
}

func (e *Engine) marketItem(ctx context.Context, problem string, topic marketTopic) (model.MarketIntelligenceItem, *model.Usage) {
	query := topicQuery(topic, problem)
	usage := &model.Usage{}

	item, searchErr := e.liveSearch(ctx, query, topic, usage)
	if searchErr == nil {
		e.metrics.ObserveStage("market_intelligence", model.SourceSearch)
		return item, usage
	}
	logger.Log.Warnf("市场情报 [%s] 搜索失败，改用兜底分析: %v", topic.Type, searchErr)

	item, err := e.fallbackItem(ctx, query, topic, usage)
	if err == nil {
		e.metrics.ObserveStage("market_intelligence", model.SourceFallback)
		return item, usage
	}
	logger.Log.Errorf("市场情报 [%s] 兜底分析失败: %v", topic.Type, err)
	e.metrics.ObserveStage("market_intelligence", model.SourceUnavailable)

	return model.MarketIntelligenceItem{
		Type:            topic.Type,
		Title:           topic.Title,
		Content:         UnavailableContent,
		KeyInsights:     []string{insight.NoInformation},
		ConfidenceLevel: model.ConfidenceLow,
		Source:          model.SourceUnavailable,
		Error:           fmt.Sprintf("search: %v; fallback: %v", searchErr, err),
	}, usage
}

// liveSearch 联网搜索；置信度按内容长度粗略估计
func (e *Engine) liveSearch(ctx context.Context, query string, topic marketTopic, usage *model.Usage) (model.MarketIntelligenceItem, error) {
	if err := e.searchLimiter.Wait(ctx); err != nil {
		return model.MarketIntelligenceItem{}, err
	}

	prompt := query
	if e.grounder.Enabled() {
		refs, err := e.grounder.Ground(ctx, query)
		if err != nil {
			logger.Log.Warnf("市场情报 [%s] 检索摘要失败: %v", topic.Type, err)
		} else if refs != "" {
			prompt += "\n\nReference material from a web search (may be incomplete):\n" + refs
		}
	}

	res, err := e.searcher.Search(ctx, prompt, e.cfg.LLM.SearchModel)
	if err != nil {
		return model.MarketIntelligenceItem{}, err
	}
	usage.Add(res.Usage)

	confidence := model.ConfidenceMedium
	if utf8.RuneCountInString(res.Content) > highConfidenceLen {
		confidence = model.ConfidenceHigh
	}
	return model.MarketIntelligenceItem{
		Type:            topic.Type,
		Title:           topic.Title,
		Content:         res.Content,
		KeyInsights:     insight.Extract(res.Lines),
		ConfidenceLevel: confidence,
		Source:          model.SourceSearch,
	}, nil
}

// fallbackItem 不联网的结构化分析，置信度固定为 Medium
func (e *Engine) fallbackItem(ctx context.Context, query string, topic marketTopic, usage *model.Usage) (model.MarketIntelligenceItem, error) {
	modelID := e.cfg.LLM.FallbackModel
	res, err := e.caller.Call(ctx, modelID, userMessage(fallbackPrompt(query)), schemaName("market_fallback"), fallbackSchema())
	if err != nil {
		return model.MarketIntelligenceItem{}, err
	}
	usage.Add(res.Usage)

	var out struct {
		Content     string   `json:"content"`
		KeyInsights []string `json:"key_insights"`
	}
	if err := res.Decode(&out); err != nil {
		return model.MarketIntelligenceItem{}, &llm.CallError{Kind: llm.KindUnexpectedShape, ModelID: modelID, Detail: err.Error(), Raw: res.Raw, Err: err}
	}
	content := sanitize.String(out.Content)
	if content == "" {
		return model.MarketIntelligenceItem{}, &llm.CallError{Kind: llm.KindUnexpectedShape, ModelID: modelID, Detail: "empty fallback content", Raw: res.Raw}
	}

	keyInsights := insight.Dedupe(sanitize.Strings(out.KeyInsights))
	if len(keyInsights) == 0 {
		keyInsights = insight.Extract(content)
	}
	if len(keyInsights) > insight.MaxInsights {
		keyInsights = keyInsights[:insight.MaxInsights]
	}

	return model.MarketIntelligenceItem{
		Type:            topic.Type,
		Title:           topic.Title,
		Content:         FallbackPrefix + " " + content,
		KeyInsights:     keyInsights,
		ConfidenceLevel: model.ConfidenceMedium,
		Source:          model.SourceFallback,
	}, nil
}

// synthesize 失败时返回带 error/details 的报告，不中断流水线
func (e *Engine) synthesize(ctx context.Context, problem string, personas []model.Persona, packages []model.PersonaInsightPackage, market []model.MarketIntelligenceItem) (model.SynthesisReport, *model.Usage, error) {
	failed := func(err error) model.SynthesisReport {
		e.metrics.ObserveStage("synthesis", "failed")
		return model.SynthesisReport{Error: "Failed to generate synthesis report", Details: err.Error()}
	}

	contextBlock := BuildSynthesisContext(problem, personas, packages, market)
	modelID := e.cfg.LLM.SynthesisModel
	res, err := e.caller.Call(ctx, modelID, userMessage(synthesisPrompt(contextBlock)), schemaName("synthesis_report"), synthesisSchema())
	if err != nil {
		return failed(err), nil, err
	}

	var report model.SynthesisReport
	if err := res.Decode(&report); err != nil {
		err = &llm.CallError{Kind: llm.KindUnexpectedShape, ModelID: modelID, Detail: err.Error(), Raw: res.Raw, Err: err}
		return failed(err), res.Usage, err
	}
	if report.CohesiveSummary == "" {
		err := &llm.CallError{Kind: llm.KindUnexpectedShape, ModelID: modelID, Detail: "missing cohesive_summary", Raw: res.Raw}
		return failed(err), res.Usage, err
	}

	report.Error, report.Details = "", ""
	for i, step := range report.ActionableNextSteps {
		report.ActionableNextSteps[i].Priority, _ = model.ParseConfidence(string(step.Priority))
	}
	e.metrics.ObserveStage("synthesis", "ok")
	return report, res.Usage, nil
}
