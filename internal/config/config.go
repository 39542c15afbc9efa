package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone  = "Asia/Shanghai"
	configPathEnv    = "POLICYRADAR_CONFIG"
	databasePathEnv  = "DATABASE_PATH"
	llmAPIKeyEnv     = "LLM_API_KEY"
	llmModelEnv      = "LLM_MODEL"
	llmBaseURLEnv    = "LLM_BASE_URL"
	telegramTokenEnv = "TELEGRAM_BOT_TOKEN"
	telegramChatEnv  = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	LLM           LLMConfig          `yaml:"llm"`
	Fetcher       FetcherConfig      `yaml:"fetcher"`
	Analysis      AnalysisConfig     `yaml:"analysis"`
	Notifications NotificationConfig `yaml:"notifications"`
	Logging       LoggingConfig      `yaml:"logging"`
	Sites         []SiteConfig       `yaml:"sites"`
}

// DatabaseConfig points at the sqlite event database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig defines when the daily update job should run.
type SchedulerConfig struct {
	Interval time.Duration  `yaml:"interval"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// LLMConfig defines how to contact the completion API.
type LLMConfig struct {
	BaseURL     string  `yaml:"baseUrl"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"apiKey"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"maxTokens"`

	// Retry tuning for transient call failures.
	MaxRetries int           `yaml:"maxRetries"`
	BaseDelay  time.Duration `yaml:"baseDelay"`
	MaxDelay   time.Duration `yaml:"maxDelay"`

	// Sliding-window admission control shared by all calls.
	RateMaxCalls int           `yaml:"rateMaxCalls"`
	RateWindow   time.Duration `yaml:"rateWindow"`

	CallTimeout time.Duration `yaml:"callTimeout"`
}

// FetcherConfig groups page-fetch behavior shared by all sources.
type FetcherConfig struct {
	UserAgent        string        `yaml:"userAgent"`
	PageTimeout      time.Duration `yaml:"pageTimeout"`
	MaxPages         int           `yaml:"maxPages"`
	MinIntervalHours float64       `yaml:"minIntervalHours"`
	PageDelay        time.Duration `yaml:"pageDelay"`
	TargetMonth      string        `yaml:"targetMonth"` // YYYY-MM, empty = no filter
}

// AnalysisConfig tunes the batch analysis orchestrator.
type AnalysisConfig struct {
	BatchSize     int           `yaml:"batchSize"`
	BatchDelay    time.Duration `yaml:"batchDelay"`
	MaxConcurrent int           `yaml:"maxConcurrent"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SiteConfig describes a single source with its scanner strategy.
type SiteConfig struct {
	Name        string            `yaml:"name"`
	Scanner     string            `yaml:"scanner"`
	BaseURL     string            `yaml:"baseUrl"`
	PageURLs    []string          `yaml:"pageUrls"`
	ContentType string            `yaml:"contentType"`
	Options     map[string]string `yaml:"options"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Sites) == 0 {
		cfg.Sites = defaultConfig().Sites
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}

	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}

	if v := os.Getenv(llmBaseURLEnv); v != "" {
		c.LLM.BaseURL = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Database.Path != "" {
		base.Database = override.Database
	}

	if override.Scheduler.Interval != 0 {
		base.Scheduler.Interval = override.Scheduler.Interval
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.LLM.BaseURL != "" {
		base.LLM.BaseURL = override.LLM.BaseURL
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}
	if override.LLM.Temperature != 0 {
		base.LLM.Temperature = override.LLM.Temperature
	}
	if override.LLM.MaxTokens != 0 {
		base.LLM.MaxTokens = override.LLM.MaxTokens
	}
	if override.LLM.MaxRetries != 0 {
		base.LLM.MaxRetries = override.LLM.MaxRetries
	}
	if override.LLM.BaseDelay != 0 {
		base.LLM.BaseDelay = override.LLM.BaseDelay
	}
	if override.LLM.MaxDelay != 0 {
		base.LLM.MaxDelay = override.LLM.MaxDelay
	}
	if override.LLM.RateMaxCalls != 0 {
		base.LLM.RateMaxCalls = override.LLM.RateMaxCalls
	}
	if override.LLM.RateWindow != 0 {
		base.LLM.RateWindow = override.LLM.RateWindow
	}
	if override.LLM.CallTimeout != 0 {
		base.LLM.CallTimeout = override.LLM.CallTimeout
	}

	if override.Fetcher.UserAgent != "" {
		base.Fetcher.UserAgent = override.Fetcher.UserAgent
	}
	if override.Fetcher.PageTimeout != 0 {
		base.Fetcher.PageTimeout = override.Fetcher.PageTimeout
	}
	if override.Fetcher.MaxPages != 0 {
		base.Fetcher.MaxPages = override.Fetcher.MaxPages
	}
	if override.Fetcher.MinIntervalHours != 0 {
		base.Fetcher.MinIntervalHours = override.Fetcher.MinIntervalHours
	}
	if override.Fetcher.PageDelay != 0 {
		base.Fetcher.PageDelay = override.Fetcher.PageDelay
	}
	if override.Fetcher.TargetMonth != "" {
		base.Fetcher.TargetMonth = override.Fetcher.TargetMonth
	}

	if override.Analysis.BatchSize != 0 {
		base.Analysis.BatchSize = override.Analysis.BatchSize
	}
	if override.Analysis.BatchDelay != 0 {
		base.Analysis.BatchDelay = override.Analysis.BatchDelay
	}
	if override.Analysis.MaxConcurrent != 0 {
		base.Analysis.MaxConcurrent = override.Analysis.MaxConcurrent
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if len(override.Sites) > 0 {
		base.Sites = override.Sites
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Database:  DatabaseConfig{Path: "events.db"},
		Scheduler: SchedulerConfig{Interval: 24 * time.Hour, Timezone: defaultTimezone, location: tz},
		LLM: LLMConfig{
			BaseURL:      "https://api.siliconflow.cn/v1",
			Model:        "Qwen/Qwen3-8B",
			APIKey:       "",
			Temperature:  0.3,
			MaxTokens:    2000,
			MaxRetries:   3,
			BaseDelay:    2 * time.Second,
			MaxDelay:     30 * time.Second,
			RateMaxCalls: 20,
			RateWindow:   time.Minute,
			CallTimeout:  120 * time.Second,
		},
		Fetcher: FetcherConfig{
			UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			PageTimeout:      10 * time.Second,
			MaxPages:         10,
			MinIntervalHours: 1,
			PageDelay:        time.Second,
		},
		Analysis: AnalysisConfig{
			BatchSize:     20,
			BatchDelay:    800 * time.Millisecond,
			MaxConcurrent: 5,
		},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{BotToken: "", ChatID: ""},
		},
		Logging: LoggingConfig{Level: "info"},
		Sites: []SiteConfig{
			{
				Name:        "gov_cn",
				Scanner:     "listpage",
				BaseURL:     "https://www.gov.cn",
				PageURLs:    []string{"https://www.gov.cn/zhengce/zuixin/home_%d.htm"},
				ContentType: "政策",
			},
			{
				Name:        "mof",
				Scanner:     "listpage",
				BaseURL:     "https://www.mof.gov.cn",
				PageURLs:    []string{"https://www.mof.gov.cn/zhengwuxinxi/zhengcefabu/index.htm", "https://www.mof.gov.cn/zhengwuxinxi/zhengcefabu/index_%d.htm"},
				ContentType: "政策",
				Options:     map[string]string{"firstPageLiteral": "true"},
			},
			{
				Name:        "csrc",
				Scanner:     "jsonfeed",
				BaseURL:     "http://www.csrc.gov.cn",
				PageURLs:    []string{"http://www.csrc.gov.cn/searchList/a1a078ee0bc54721ab6b148884c784a8?_isAgg=true&_isJson=true&_pageSize=18&_template=index&page=%d"},
				ContentType: "政策",
			},
		},
	}
}
