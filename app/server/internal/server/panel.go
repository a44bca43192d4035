package server

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/config"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/engine"
	panelLogger "github.com/iWorld-y/expert_panel/app/expert_panel/pkg/logger"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/metrics"
	"github.com/iWorld-y/expert_panel/app/server/internal/conf"
)

// PanelConfig 将 conf.Panel 转换为 pkg/config.Config，并补齐默认值与密钥
func PanelConfig(c *conf.Panel) (*config.Config, error) {
	cfg := &config.Config{}
	if c != nil {
		cfg.Panel = config.PanelConfig{
			ExpertCount: int(c.ExpertCount),
			Concurrency: int(c.Concurrency),
		}
		if l := c.Llm; l != nil {
			cfg.LLM = config.LLMConfig{
				Provider:            l.Provider,
				BaseURL:             l.BaseUrl,
				APIKey:              l.ApiKey,
				APIKeyEnv:           l.ApiKeyEnv,
				PersonaModel:        l.PersonaModel,
				InsightModel:        l.InsightModel,
				SynthesisModel:      l.SynthesisModel,
				SearchModel:         l.SearchModel,
				FallbackModel:       l.FallbackModel,
				Temperature:         l.Temperature,
				MaxCompletionTokens: int(l.MaxCompletionTokens),
				Timeout:             int(l.Timeout),
				MaxRetries:          int(l.MaxRetries),
			}
		}
		if s := c.Search; s != nil {
			cfg.Search = config.SearchConfig{
				Provider:      s.Provider,
				IntervalMS:    int(s.IntervalMs),
				MaxResults:    int(s.MaxResults),
				FetchFullText: s.FetchFullText,
			}
			if s.Tavily != nil {
				cfg.Search.Tavily = config.TavilyConfig{APIKey: s.Tavily.ApiKey, APIKeyEnv: s.Tavily.ApiKeyEnv}
			}
			if s.Searxng != nil {
				cfg.Search.SearXNG = config.SearXNGConfig{BaseURL: s.Searxng.BaseUrl, Timeout: int(s.Searxng.Timeout)}
			}
		}
		if c.Log != nil {
			cfg.Log = config.LogConfig{Level: c.Log.Level, File: c.Log.File}
		}
		if c.RateLimit != nil {
			cfg.Concurrency = config.ConcurrencyConfig{QPS: int(c.RateLimit.Qps), RPM: int(c.RateLimit.Rpm)}
		}
	}

	cfg.ApplyDefaults()
	if err := cfg.ResolveSecrets(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewPanelEngine 初始化专家组分析引擎
func NewPanelEngine(c *conf.Panel, m *metrics.Metrics, logger log.Logger) (*engine.Engine, func(), error) {
	helper := log.NewHelper(logger)

	cfg, err := PanelConfig(c)
	if err != nil {
		helper.Errorf("Invalid panel config: %v", err)
		return nil, nil, err
	}

	// 初始化日志
	if err := panelLogger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		helper.Errorf("Failed to init panel logger: %v", err)
		_ = panelLogger.InitLogger("info", "") // 降级处理
	}

	eng, err := engine.NewFromConfig(context.Background(), cfg, m)
	if err != nil {
		helper.Errorf("Failed to init engine: %v", err)
		return nil, nil, err
	}

	cleanup := func() {
		helper.Info("Cleaning up expert panel engine")
	}
	return eng, cleanup, nil
}
