package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 默认值
const (
	DefaultExpertCount         = 10
	DefaultPanelConcurrency    = 4
	DefaultLLMTimeout          = 120
	DefaultMaxRetries          = 2
	DefaultTemperature         = 0.7
	DefaultMaxCompletionTokens = 3000
	DefaultSearchIntervalMS    = 2000
	DefaultSearchMaxResults    = 5
	DefaultLLMAPIKeyEnv        = "EXPERT_PANEL_LLM_API_KEY"
	DefaultTavilyAPIKeyEnv     = "TAVILY_API_KEY"
	DefaultDBPasswordEnv       = "EXPERT_PANEL_DB_PASSWORD"
)

// Config 项目配置结构体
type Config struct {
	LLM         LLMConfig         `yaml:"llm"`
	Search      SearchConfig      `yaml:"search"`
	Panel       PanelConfig       `yaml:"panel"`
	Log         LogConfig         `yaml:"log"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	DB          DBConfig          `yaml:"db"`
}

// LLMConfig LLM 相关配置
type LLMConfig struct {
	// Provider 传输实现: "http" (默认, 直接调用 chat completions) 或 "eino"
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`

	PersonaModel   string `yaml:"persona_model"`
	InsightModel   string `yaml:"insight_model"`
	SynthesisModel string `yaml:"synthesis_model"`
	SearchModel    string `yaml:"search_model"`
	FallbackModel  string `yaml:"fallback_model"`

	// Temperature 未配置时使用 DefaultTemperature，显式的 0 保留
	Temperature         *float64 `yaml:"temperature"`
	MaxCompletionTokens int      `yaml:"max_completion_tokens"`
	Timeout             int      `yaml:"timeout"` // 秒
	MaxRetries          int      `yaml:"max_retries"`
}

// TemperatureValue 采样温度
func (c LLMConfig) TemperatureValue() float64 {
	if c.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Temperature
}

// CallTimeout 单次调用超时
func (c LLMConfig) CallTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// SearchConfig 搜索相关配置
type SearchConfig struct {
	// Provider 可选的联网检索后端: "" / "none", "tavily", "searxng"
	Provider      string        `yaml:"provider"`
	Tavily        TavilyConfig  `yaml:"tavily"`
	SearXNG       SearXNGConfig `yaml:"searxng"`
	IntervalMS    int           `yaml:"interval_ms"`
	MaxResults    int           `yaml:"max_results"`
	FetchFullText bool          `yaml:"fetch_full_text"`
}

// Interval 两次搜索调用之间的最小间隔
func (c SearchConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// TavilyConfig Tavily 配置
type TavilyConfig struct {
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// SearXNGConfig SearXNG 配置
type SearXNGConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout int    `yaml:"timeout"`
}

// PanelConfig 专家组配置
type PanelConfig struct {
	ExpertCount int `yaml:"expert_count"`
	Concurrency int `yaml:"concurrency"`
}

// LogConfig 日志相关配置
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ConcurrencyConfig 并发控制配置
type ConcurrencyConfig struct {
	QPS int `yaml:"qps"`
	RPM int `yaml:"rpm"`
}

// DBConfig 数据库相关配置
type DBConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	PasswordEnv string `yaml:"password_env"`
	Name        string `yaml:"name"`
}

// Enabled 是否配置了数据库
func (c DBConfig) Enabled() bool {
	return c.Host != ""
}

// LoadConfig 从指定路径加载配置，补齐默认值并从环境变量解析密钥
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.ResolveSecrets(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults 补齐未设置的字段
func (c *Config) ApplyDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "http"
	}
	if c.LLM.APIKeyEnv == "" {
		c.LLM.APIKeyEnv = DefaultLLMAPIKeyEnv
	}
	if c.LLM.InsightModel == "" {
		c.LLM.InsightModel = c.LLM.PersonaModel
	}
	if c.LLM.SynthesisModel == "" {
		c.LLM.SynthesisModel = c.LLM.InsightModel
	}
	if c.LLM.SearchModel == "" {
		c.LLM.SearchModel = c.LLM.InsightModel
	}
	if c.LLM.FallbackModel == "" {
		c.LLM.FallbackModel = c.LLM.InsightModel
	}
	if c.LLM.Temperature == nil {
		t := DefaultTemperature
		c.LLM.Temperature = &t
	}
	if c.LLM.MaxCompletionTokens == 0 {
		c.LLM.MaxCompletionTokens = DefaultMaxCompletionTokens
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = DefaultLLMTimeout
	}
	if c.LLM.MaxRetries < 0 {
		c.LLM.MaxRetries = 0
	}

	if c.Search.Tavily.APIKeyEnv == "" {
		c.Search.Tavily.APIKeyEnv = DefaultTavilyAPIKeyEnv
	}
	if c.Search.IntervalMS <= 0 {
		c.Search.IntervalMS = DefaultSearchIntervalMS
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = DefaultSearchMaxResults
	}

	if c.Panel.ExpertCount <= 0 {
		c.Panel.ExpertCount = DefaultExpertCount
	}
	if c.Panel.Concurrency <= 0 {
		c.Panel.Concurrency = DefaultPanelConcurrency
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Concurrency.RPM <= 0 {
		c.Concurrency.RPM = 60
	}
	if c.Concurrency.QPS <= 0 {
		c.Concurrency.QPS = 1
	}

	if c.DB.Port == 0 {
		c.DB.Port = 5432
	}
	if c.DB.PasswordEnv == "" {
		c.DB.PasswordEnv = DefaultDBPasswordEnv
	}
}

// ResolveSecrets 从环境变量 (以及可选的 .env 文件) 读取未写入配置文件的密钥
func (c *Config) ResolveSecrets() error {
	// .env 不存在是正常情况
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if c.LLM.APIKey == "" {
		c.LLM.APIKey = strings.TrimSpace(os.Getenv(c.LLM.APIKeyEnv))
	}
	if c.Search.Tavily.APIKey == "" {
		c.Search.Tavily.APIKey = strings.TrimSpace(os.Getenv(c.Search.Tavily.APIKeyEnv))
	}
	if c.DB.Password == "" {
		c.DB.Password = os.Getenv(c.DB.PasswordEnv)
	}
	return nil
}

// Validate 检查运行所需的最小配置
func (c *Config) Validate() error {
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm api key is missing (set llm.api_key or $%s)", c.LLM.APIKeyEnv)
	}
	if c.LLM.PersonaModel == "" {
		return fmt.Errorf("llm.persona_model is required")
	}
	switch c.LLM.Provider {
	case "http", "eino":
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLM.Provider)
	}
	return nil
}
