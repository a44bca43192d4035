package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
)

const (
	expandBelow = 500
	maxSnippet  = 1200
	minSnippet  = 50
)

// Fetcher 抓取网页正文
type Fetcher func(ctx context.Context, url string) (string, error)

// ReadabilityFetcher 使用 go-readability 抽取正文，请求随 ctx 取消
func ReadabilityFetcher(timeout time.Duration) Fetcher {
	return readabilityFetcher(&http.Client{}, timeout)
}

func readabilityFetcher(client *http.Client, timeout time.Duration) Fetcher {
	return func(ctx context.Context, rawURL string) (string, error) {
		pageURL, err := url.Parse(rawURL)
		if err != nil {
			return "", fmt.Errorf("parse url: %w", err)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return "", err
		}
		resp, err := client.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "text/html") {
			return "", fmt.Errorf("fetch %s: unsupported content type %q", rawURL, ct)
		}
		article, err := readability.FromReader(resp.Body, pageURL)
		if err != nil {
			return "", err
		}
		return article.TextContent, nil
	}
}

// Grounder 检索并整理网页摘要，作为搜索提示词的参考资料
type Grounder struct {
	searcher   Searcher
	maxResults int
	fetch      Fetcher
}

// NewGrounder searcher 为空时 Ground 总是返回空串；fetch 为空时不抓取正文
func NewGrounder(searcher Searcher, maxResults int, fetch Fetcher) *Grounder {
	return &Grounder{searcher: searcher, maxResults: maxResults, fetch: fetch}
}

// Enabled 是否配置了检索后端
func (g *Grounder) Enabled() bool {
	return g != nil && g.searcher != nil
}

// Ground 检索 query 并返回编号后的摘要文本
func (g *Grounder) Ground(ctx context.Context, query string) (string, error) {
	if !g.Enabled() {
		return "", nil
	}

	resp, err := g.searcher.Search(ctx, &Request{Query: query, MaxResults: g.maxResults, IncludeAnswer: true})
	if err != nil {
		return "", fmt.Errorf("search %q: %w", query, err)
	}

	var sb strings.Builder
	if resp.Answer != "" {
		fmt.Fprintf(&sb, "Summary: %s\n\n", strings.TrimSpace(resp.Answer))
	}
	n := 0
	for _, r := range resp.Results {
		content := strings.TrimSpace(r.Content)
		if g.fetch != nil && r.URL != "" && utf8.RuneCountInString(content) < expandBelow {
			fetched, err := g.fetch(ctx, r.URL)
			if err == nil && len(fetched) > len(content) {
				content = strings.TrimSpace(fetched)
			}
		}
		if utf8.RuneCountInString(content) < minSnippet {
			continue
		}
		if runes := []rune(content); len(runes) > maxSnippet {
			content = string(runes[:maxSnippet]) + "..."
		}
		n++
		fmt.Fprintf(&sb, "[%d] %s (%s)\n%s\n\n", n, r.Title, r.URL, content)
		if g.maxResults > 0 && n >= g.maxResults {
			break
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
