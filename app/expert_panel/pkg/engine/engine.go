package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/config"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/llm"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/logger"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/metrics"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/model"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/search"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/search/factory"
)

// Stage 流水线阶段
type Stage string

const (
	StageReceived            Stage = "received"
	StagePersonasGenerated   Stage = "personas_generated"
	StageInsightsCollected   Stage = "insights_collected"
	StageMarketIntelGathered Stage = "market_intel_gathered"
	StageSynthesized         Stage = "synthesized"
	StageComplete            Stage = "complete"
)

// Engine 专家组分析引擎，可被多个请求并发使用
type Engine struct {
	cfg           *config.Config
	caller        *llm.Caller
	searcher      *llm.SearchCaller
	grounder      *search.Grounder
	searchLimiter *rate.Limiter
	metrics       *metrics.Metrics
	concurrency   int
}

// Option 引擎选项
type Option func(*Engine)

// WithGrounder 为市场情报搜索附加检索摘要
func WithGrounder(g *search.Grounder) Option {
	return func(e *Engine) { e.grounder = g }
}

// WithMetrics 记录阶段指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSearchLimiter 替换搜索调用之间的间隔限流
func WithSearchLimiter(l *rate.Limiter) Option {
	return func(e *Engine) { e.searchLimiter = l }
}

// New 创建引擎，cfg 需已补齐默认值；并发度至少为 1
func New(cfg *config.Config, caller *llm.Caller, opts ...Option) *Engine {
	e := &Engine{
		cfg:           cfg,
		caller:        caller,
		searcher:      llm.NewSearchCaller(caller),
		searchLimiter: rate.NewLimiter(rate.Every(cfg.Search.Interval()), 1),
		concurrency:   max(cfg.Panel.Concurrency, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewFromConfig 按配置组装调用器、限流器与检索后端
func NewFromConfig(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Engine, error) {
	limit := rate.Limit(float64(cfg.Concurrency.RPM) / 60.0)
	limiter := rate.NewLimiter(limit, cfg.Concurrency.QPS)

	caller, err := llm.NewCallerFromConfig(ctx, cfg, limiter, m)
	if err != nil {
		return nil, fmt.Errorf("LLM 初始化失败: %w", err)
	}

	searcher, err := factory.NewSearcher(cfg.Search)
	if err != nil {
		return nil, fmt.Errorf("搜索客户端初始化失败: %w", err)
	}
	var fetch search.Fetcher
	if cfg.Search.FetchFullText {
		fetch = search.ReadabilityFetcher(30 * time.Second)
	}

	return New(cfg, caller,
		WithGrounder(search.NewGrounder(searcher, cfg.Search.MaxResults, fetch)),
		WithMetrics(m),
	), nil
}

// RunOptions 运行选项
type RunOptions struct {
	Problem          string
	RunID            string
	ProgressCallback func(status string, progress int)
}

// Process 对一个业务问题执行完整的专家组分析
func (e *Engine) Process(ctx context.Context, problem string) (*model.AnalysisRun, error) {
	return e.Run(ctx, RunOptions{Problem: problem})
}

// Run 执行一次分析。只有问题为空或专家生成失败时返回错误，其余阶段的失败记录在结果中。
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*model.AnalysisRun, error) {
	start := time.Now()
	problem := strings.TrimSpace(opts.Problem)
	if problem == "" {
		return nil, ErrInvalidInput
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	p := newProgress(opts.ProgressCallback)

	logger.Log.Infof("[%s] 开始分析: %s", runID, truncate(problem, 100))
	p.report(string(StageReceived), 0)

	usage := &model.TokenUsage{}

	// 1. 生成专家
	personas, u, err := e.generatePersonas(ctx, problem)
	if err != nil {
		logger.Log.Errorf("[%s] 专家生成失败: %v", runID, err)
		e.metrics.ObserveRun("failed", time.Since(start))
		return nil, &PipelineError{Stage: StagePersonasGenerated, Err: err}
	}
	usage.PersonaGeneration.Add(u)
	logger.Log.Infof("[%s] 已生成 %d 位专家", runID, len(personas))
	p.report(string(StagePersonasGenerated), 10)

	// 2. 各专家洞察
	packages, u := e.collectInsights(ctx, problem, personas, p)
	usage.ExpertInsights.Add(u)
	if err := ctx.Err(); err != nil {
		return nil, &PipelineError{Stage: StageInsightsCollected, Err: err}
	}
	p.report(string(StageInsightsCollected), 60)

	// 3. 市场情报
	market, u := e.gatherMarketIntel(ctx, problem, p)
	usage.MarketIntelligence.Add(u)
	if err := ctx.Err(); err != nil {
		return nil, &PipelineError{Stage: StageMarketIntelGathered, Err: err}
	}
	p.report(string(StageMarketIntelGathered), 85)

	// 4. 综合报告
	report, u, synthErr := e.synthesize(ctx, problem, personas, packages, market)
	usage.Synthesis.Add(u)
	if synthErr != nil {
		logger.Log.Errorf("[%s] 综合报告生成失败: %v", runID, synthErr)
	}
	p.report(string(StageSynthesized), 95)

	usage.Sum()
	run := &model.AnalysisRun{
		OriginalProblem:        problem,
		GeneratedPersonasCount: len(personas),
		PersonaDefinitions:     personas,
		ExpertInsights:         packages,
		MarketIntelligence:     market,
		SynthesisReport:        report,
		AnalysisSummary:        summarize(runID, personas, packages, market, synthErr == nil),
	}
	if usage.Total.TotalTokens > 0 || usage.Total.PromptTokens > 0 {
		run.TokenUsage = usage
	}
	run.AnalysisSummary.ProcessingTimeSeconds = time.Since(start).Seconds()

	status := "completed"
	if run.Partial() {
		status = "partial"
	}
	e.metrics.ObserveRun(status, time.Since(start))
	logger.Log.Infof("[%s] 分析完成 (%s)，耗时 %.1fs", runID, status, run.AnalysisSummary.ProcessingTimeSeconds)
	p.report(string(StageComplete), 100)
	return run, nil
}

func summarize(runID string, personas []model.Persona, packages []model.PersonaInsightPackage, market []model.MarketIntelligenceItem, synthOK bool) model.AnalysisSummary {
	s := model.AnalysisSummary{
		RunID:              runID,
		PersonasGenerated:  len(personas),
		MarketItems:        len(market),
		SynthesisSucceeded: synthOK,
	}
	for _, pkg := range packages {
		if pkg.Failed() {
			s.InsightsFailed++
		} else {
			s.InsightsSuccessful++
		}
	}
	for _, item := range market {
		switch item.Source {
		case model.SourceFallback:
			s.MarketFallbacks++
		case model.SourceUnavailable:
			s.MarketUnavailable++
		}
	}
	return s
}

// progress 串行化进度回调，扇出阶段会从多个 goroutine 上报
type progress struct {
	mu sync.Mutex
	fn func(status string, progress int)
}

func newProgress(fn func(string, int)) *progress {
	return &progress{fn: fn}
}

func (p *progress) report(status string, pct int) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fn(status, pct)
}
