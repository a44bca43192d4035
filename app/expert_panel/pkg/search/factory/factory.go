package factory

import (
	"fmt"

	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/config"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/search"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/search/searxng"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/search/tavily"
)

// NewSearcher 根据配置创建检索后端。
// 未配置时返回 nil, nil：市场情报只依赖模型自身的联网搜索。
func NewSearcher(cfg config.SearchConfig) (search.Searcher, error) {
	provider := cfg.Provider
	if provider == "" && cfg.Tavily.APIKey != "" {
		provider = "tavily"
	}

	switch provider {
	case "", "none":
		return nil, nil
	case "tavily":
		if cfg.Tavily.APIKey == "" {
			return nil, fmt.Errorf("tavily api key is missing (set search.tavily.api_key or $%s)", cfg.Tavily.APIKeyEnv)
		}
		return tavily.NewClient(cfg.Tavily.APIKey), nil
	case "searxng":
		if cfg.SearXNG.BaseURL == "" {
			return nil, fmt.Errorf("searxng base url is missing")
		}
		return searxng.NewClient(cfg.SearXNG.BaseURL, cfg.SearXNG.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown search provider: %s", provider)
	}
}
