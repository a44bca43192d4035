package server

import (
	"fmt"
	"net"
	nethttp "net/http"
	"net/netip"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const defaultClientCacheSize = 1024

// ClientLimiter 按客户端 IP 限制分析请求的频率，限流器保存在 LRU 中
type ClientLimiter struct {
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
	trusted  []netip.Prefix
}

// NewClientLimiter rpm 为每个客户端每分钟的请求数。
// trustedProxies 为反向代理的 IP 或 CIDR，为空时忽略所有转发头。
func NewClientLimiter(rpm, burst, size int, trustedProxies []string) (*ClientLimiter, error) {
	if size <= 0 {
		size = defaultClientCacheSize
	}
	if burst <= 0 {
		burst = 1
	}
	trusted, err := parsePrefixes(trustedProxies)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, err
	}
	return &ClientLimiter{
		limiters: cache,
		limit:    rate.Limit(float64(rpm) / 60.0),
		burst:    burst,
		trusted:  trusted,
	}, nil
}

func parsePrefixes(in []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if strings.Contains(s, "/") {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", s, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", s, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// Allow 客户端本次请求是否放行
func (l *ClientLimiter) Allow(client string) bool {
	l.mu.Lock()
	lim, ok := l.limiters.Get(client)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(client, lim)
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Filter 超限时返回 429
func (l *ClientLimiter) Filter(next nethttp.Handler) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !l.Allow(l.clientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(nethttp.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"code":429,"reason":"RATELIMIT","message":"too many analysis requests, retry later"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *ClientLimiter) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range l.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP 直连地址不是可信代理时直接使用；否则从 X-Forwarded-For 右侧
// 跳过可信代理，取第一个不可信的地址
func (l *ClientLimiter) clientIP(r *nethttp.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !l.isTrusted(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !l.isTrusted(hop) || i == 0 {
				return hop
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return peer
}
