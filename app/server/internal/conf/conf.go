package conf

type Bootstrap struct {
	Server *Server
	Data   *Data
	Panel  *Panel
}

type Server struct {
	Http *HTTP
}

type HTTP struct {
	Addr    string
	Timeout string
	// ClientRPM 单个客户端每分钟可发起的分析请求数，0 表示不限制
	ClientRPM   int32 `json:"client_rpm"`
	ClientBurst int32 `json:"client_burst"`
	// ClientCacheSize 记录的客户端限流器个数上限
	ClientCacheSize int32 `json:"client_cache_size"`
	// TrustedProxies 反向代理的 IP 或 CIDR，只有来自这些地址的请求才采信 X-Forwarded-For
	TrustedProxies []string `json:"trusted_proxies"`
}

type Data struct {
	Database *Database
}

type Database struct {
	Host        string `json:"host"`
	Port        int32  `json:"port"`
	User        string `json:"user"`
	Password    string `json:"password"`
	PasswordEnv string `json:"password_env"`
	Name        string `json:"name"`
}

type Panel struct {
	Llm         *LLM         `json:"llm"`
	Search      *Search      `json:"search"`
	ExpertCount int32        `json:"expert_count"`
	Concurrency int32        `json:"concurrency"`
	Log         *Log         `json:"log"`
	RateLimit   *Concurrency `json:"rate_limit"`
}

type LLM struct {
	Provider            string   `json:"provider"`
	BaseUrl             string   `json:"base_url"`
	ApiKey              string   `json:"api_key"`
	ApiKeyEnv           string   `json:"api_key_env"`
	PersonaModel        string   `json:"persona_model"`
	InsightModel        string   `json:"insight_model"`
	SynthesisModel      string   `json:"synthesis_model"`
	SearchModel         string   `json:"search_model"`
	FallbackModel       string   `json:"fallback_model"`
	Temperature         *float64 `json:"temperature"`
	MaxCompletionTokens int32    `json:"max_completion_tokens"`
	Timeout             int32    `json:"timeout"`
	MaxRetries          int32    `json:"max_retries"`
}

type Search struct {
	Provider      string   `json:"provider"`
	Tavily        *Tavily  `json:"tavily"`
	Searxng       *SearXNG `json:"searxng"`
	IntervalMs    int32    `json:"interval_ms"`
	MaxResults    int32    `json:"max_results"`
	FetchFullText bool     `json:"fetch_full_text"`
}

type Tavily struct {
	ApiKey    string `json:"api_key"`
	ApiKeyEnv string `json:"api_key_env"`
}

type SearXNG struct {
	BaseUrl string `json:"base_url"`
	Timeout int32  `json:"timeout"`
}

type Log struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

type Concurrency struct {
	Qps int32 `json:"qps"`
	Rpm int32 `json:"rpm"`
}
