// Package search 为联网检索提供统一接口，检索结果作为市场情报提示词的事实依据。
package search

import "context"

// Searcher 通用搜索接口
type Searcher interface {
	Search(ctx context.Context, req *Request) (*Response, error)
}

// Request 搜索请求
type Request struct {
	Query         string
	Topic         string // "general" 或 "news"
	MaxResults    int
	IncludeAnswer bool
}

// Response 搜索响应
type Response struct {
	Answer  string
	Results []Result
}

// Result 单条搜索结果
type Result struct {
	Title         string
	URL           string
	Content       string
	Score         float64
	PublishedDate string
}
