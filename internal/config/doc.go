// Package config handles configuration loading, saving, and schema definition.
package config

import "time"

// Config is the top-level haggle configuration.
// Field names are camelCase in every supported file format.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server" toml:"server"`
	LLM      LLMConfig      `json:"llm" yaml:"llm" toml:"llm"`
	Decision DecisionConfig `json:"decision" yaml:"decision" toml:"decision"`
	Resolver ResolverConfig `json:"resolver" yaml:"resolver" toml:"resolver"`
	Session  SessionConfig  `json:"session" yaml:"session" toml:"session"`
	Redis    RedisConfig    `json:"redis" yaml:"redis" toml:"redis"`
	Log      LogConfig      `json:"log" yaml:"log" toml:"log"`
	DataDir  string         `json:"dataDir,omitempty" yaml:"dataDir,omitempty" toml:"dataDir,omitempty"`
}

// ServerConfig holds HTTP/WebSocket server settings.
type ServerConfig struct {
	Host   string `json:"host,omitempty" yaml:"host,omitempty" toml:"host,omitempty"`
	Port   int    `json:"port,omitempty" yaml:"port,omitempty" toml:"port,omitempty"`
	APIKey string `json:"apiKey,omitempty" yaml:"apiKey,omitempty" toml:"apiKey,omitempty"`
}

// LLMConfig configures the two model-backed decision tiers.
type LLMConfig struct {
	Primary  ProviderConfig `json:"primary" yaml:"primary" toml:"primary"`
	Enhancer ProviderConfig `json:"enhancer" yaml:"enhancer" toml:"enhancer"`
}

// ProviderConfig selects one model backend. An empty Model disables the tier.
type ProviderConfig struct {
	Provider    string  `json:"provider,omitempty" yaml:"provider,omitempty" toml:"provider,omitempty"`
	Model       string  `json:"model,omitempty" yaml:"model,omitempty" toml:"model,omitempty"`
	APIKey      string  `json:"apiKey,omitempty" yaml:"apiKey,omitempty" toml:"apiKey,omitempty"`
	APIBase     string  `json:"apiBase,omitempty" yaml:"apiBase,omitempty" toml:"apiBase,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty" toml:"maxTokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" toml:"temperature,omitempty"`
}

// Enabled reports whether the tier should be built.
func (p ProviderConfig) Enabled() bool { return p.Model != "" }

// DecisionConfig holds decision pipeline settings.
type DecisionConfig struct {
	TierTimeout         int     `json:"tierTimeout,omitempty" yaml:"tierTimeout,omitempty" toml:"tierTimeout,omitempty"` // seconds
	ConfidenceThreshold float64 `json:"confidenceThreshold,omitempty" yaml:"confidenceThreshold,omitempty" toml:"confidenceThreshold,omitempty"`
	HistoryWindow       int     `json:"historyWindow,omitempty" yaml:"historyWindow,omitempty" toml:"historyWindow,omitempty"`
	// PromptTokenBudget caps history tokens per LLM call. Zero derives it from the model.
	PromptTokenBudget int `json:"promptTokenBudget,omitempty" yaml:"promptTokenBudget,omitempty" toml:"promptTokenBudget,omitempty"`
}

// TierTimeoutDuration returns the per-tier timeout.
func (d DecisionConfig) TierTimeoutDuration() time.Duration {
	return time.Duration(d.TierTimeout) * time.Second
}

// ResolverConfig holds product resolver settings.
type ResolverConfig struct {
	FetchTimeout  int     `json:"fetchTimeout,omitempty" yaml:"fetchTimeout,omitempty" toml:"fetchTimeout,omitempty"` // seconds
	UserAgent     string  `json:"userAgent,omitempty" yaml:"userAgent,omitempty" toml:"userAgent,omitempty"`
	RatePerSecond float64 `json:"ratePerSecond,omitempty" yaml:"ratePerSecond,omitempty" toml:"ratePerSecond,omitempty"`
	CategoryFile  string  `json:"categoryFile,omitempty" yaml:"categoryFile,omitempty" toml:"categoryFile,omitempty"`
	CacheTTL      int     `json:"cacheTtl,omitempty" yaml:"cacheTtl,omitempty" toml:"cacheTtl,omitempty"` // minutes
}

// FetchTimeoutDuration returns the fetch-and-extract deadline.
func (r ResolverConfig) FetchTimeoutDuration() time.Duration {
	return time.Duration(r.FetchTimeout) * time.Second
}

// CacheTTLDuration returns how long resolved listings stay cached.
func (r ResolverConfig) CacheTTLDuration() time.Duration {
	return time.Duration(r.CacheTTL) * time.Minute
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	IdleTimeout     int `json:"idleTimeout,omitempty" yaml:"idleTimeout,omitempty" toml:"idleTimeout,omitempty"`             // seconds with no party connected
	RetentionWindow int `json:"retentionWindow,omitempty" yaml:"retentionWindow,omitempty" toml:"retentionWindow,omitempty"` // seconds kept after ending
	MaxMessages     int `json:"maxMessages,omitempty" yaml:"maxMessages,omitempty" toml:"maxMessages,omitempty"`
	QueueLimit      int `json:"queueLimit,omitempty" yaml:"queueLimit,omitempty" toml:"queueLimit,omitempty"` // frames held per disconnected party
	SweepInterval   int `json:"sweepInterval,omitempty" yaml:"sweepInterval,omitempty" toml:"sweepInterval,omitempty"`
}

// IdleTimeoutDuration returns the idle timeout.
func (s SessionConfig) IdleTimeoutDuration() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}

// RetentionDuration returns the retention window.
func (s SessionConfig) RetentionDuration() time.Duration {
	return time.Duration(s.RetentionWindow) * time.Second
}

// SweepDuration returns the janitor interval.
func (s SessionConfig) SweepDuration() time.Duration {
	return time.Duration(s.SweepInterval) * time.Second
}

// RedisConfig holds optional Redis settings.
type RedisConfig struct {
	URL      string `json:"url,omitempty" yaml:"url,omitempty" toml:"url,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty" toml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty" toml:"db,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty" toml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty" toml:"format,omitempty"` // text or json
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 18790,
		},
		LLM: LLMConfig{
			Primary: ProviderConfig{
				Provider:    "gemini",
				Model:       "gemini-2.5-flash",
				MaxTokens:   1024,
				Temperature: 0.4,
			},
			Enhancer: ProviderConfig{
				Provider:    "anthropic",
				Model:       "claude-3-5-haiku-latest",
				MaxTokens:   512,
				Temperature: 0.7,
			},
		},
		Decision: DecisionConfig{
			TierTimeout:         8,
			ConfidenceThreshold: 0.6,
			HistoryWindow:       12,
		},
		Resolver: ResolverConfig{
			FetchTimeout:  10,
			RatePerSecond: 1,
			CacheTTL:      360,
		},
		Session: SessionConfig{
			IdleTimeout:     900,
			RetentionWindow: 600,
			MaxMessages:     40,
			QueueLimit:      256,
			SweepInterval:   30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
