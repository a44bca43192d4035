package server

import (
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/logging"
	"github.com/go-kratos/kratos/v2/middleware/ratelimit"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/metrics"
	"github.com/iWorld-y/expert_panel/app/server/internal/conf"
	"github.com/iWorld-y/expert_panel/app/server/internal/service"
)

// 一次完整分析通常需要数分钟
const defaultTimeout = 10 * time.Minute

func NewHTTPServer(c *conf.Server, s *service.PanelService, m *metrics.Metrics, logger log.Logger) (*http.Server, error) {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			ratelimit.Server(),
			logging.Server(logger),
		),
		http.Filter(CORS()),
		http.Timeout(defaultTimeout),
	}

	var processFilters []http.FilterFunc
	if c != nil && c.Http != nil {
		if c.Http.Addr != "" {
			opts = append(opts, http.Address(c.Http.Addr))
		}
		if c.Http.Timeout != "" {
			if d, err := time.ParseDuration(c.Http.Timeout); err == nil {
				opts = append(opts, http.Timeout(d))
			}
		}
		if c.Http.ClientRPM > 0 {
			limiter, err := NewClientLimiter(int(c.Http.ClientRPM), int(c.Http.ClientBurst), int(c.Http.ClientCacheSize), c.Http.TrustedProxies)
			if err != nil {
				return nil, err
			}
			processFilters = append(processFilters, limiter.Filter)
		}
	}

	srv := http.NewServer(opts...)
	s.RegisterHTTPServer(srv, processFilters...)
	if m != nil {
		srv.Handle("/metrics", m.Handler())
	}
	return srv, nil
}
