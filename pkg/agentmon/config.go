package agentmon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/enableai/agentmon-go/internal/clock"
	"github.com/enableai/agentmon-go/pkg/client"
)

// InferenceFunc is the injected capability that produces a response for a
// prompt. Any agent-specific behavior lives behind this single contract;
// the SDK never requires subclassing or wrapping beyond it.
type InferenceFunc func(ctx context.Context, prompt string) (string, error)

// Config holds the full configuration surface of a monitored agent.
type Config struct {
	// AgentID identifies the agent on the platform. Required.
	AgentID string `yaml:"agent_id"`
	// APIKey is the platform credential. Required unless Backend is set.
	APIKey string `yaml:"api_key"`
	// BaseURL is the backend endpoint (default: client.DefaultBaseURL)
	BaseURL string `yaml:"base_url"`

	// Infer produces responses for prompts. Required.
	Infer InferenceFunc `yaml:"-"`

	// Tool and UseCase are stamped on every feedback report
	Tool    string `yaml:"tool"`
	UseCase string `yaml:"use_case"`
	// SystemPrompt is the agent's current prompt; auto healing replaces it
	SystemPrompt string `yaml:"system_prompt"`

	// EnableSampling turns adaptive sampling on. When false every
	// interaction is reported (full monitoring).
	EnableSampling bool `yaml:"enable_sampling"`
	// SamplingRate is the base sampling probability in [0,1]. A rate of
	// 1.0 is full monitoring and bypasses the sampling engine.
	SamplingRate float64 `yaml:"sampling_rate"`
	// EnhancedMultiplier scales SamplingRate while health is below
	// PerformanceThreshold (default: 2.0)
	EnhancedMultiplier float64 `yaml:"enhanced_multiplier"`
	// MaxDailySamples is the hard per-window budget; 0 disables sampling
	// entirely
	MaxDailySamples int `yaml:"max_daily_samples"`
	// PerformanceThreshold is the average score in [0,100] below which
	// enhanced sampling applies and a healed agent is not yet recovered
	PerformanceThreshold float64 `yaml:"performance_threshold"`
	// SamplingWindow is "daily" (calendar-date rollover) or a duration
	// string like "6h" (default: "daily")
	SamplingWindow string `yaml:"sampling_window"`

	// BatchSize groups sampled interactions into batches of this size
	// before reporting; 1 reports each interaction individually
	BatchSize int `yaml:"batch_size"`
	// BatchIdleTimeout flushes a partial batch once its oldest entry is
	// this old (default: 30s)
	BatchIdleTimeout time.Duration `yaml:"batch_idle_timeout"`
	// BatchMaxRetries is how often a failed batch send is retried before
	// the batch is dropped (default: 2)
	BatchMaxRetries int `yaml:"batch_max_retries"`

	// ReportAsync submits feedback from a background worker instead of
	// blocking the response path (default behavior of DefaultConfig)
	ReportAsync bool `yaml:"report_async"`
	// QueueSize bounds the async report queue (default: 64)
	QueueSize int `yaml:"queue_size"`
	// SubmitTimeout bounds each synchronous backend exchange (default: 10s)
	SubmitTimeout time.Duration `yaml:"submit_timeout"`

	// AutoHealing selects the heal strategy: true applies improved
	// prompts directly ("auto"), false asks for suggestions only
	AutoHealing bool `yaml:"auto_healing"`
	// HealingCooldown is the minimum time after a successful heal before
	// the agent can be flagged again (default: 5m)
	HealingCooldown time.Duration `yaml:"healing_cooldown"`
	// FlagTTL is how long a locally cached healing flag is trusted
	// (default: 1m)
	FlagTTL time.Duration `yaml:"flag_ttl"`
	// OnSuggestion receives heal recommendations under the suggest
	// strategy
	OnSuggestion func(suggestion string) `yaml:"-"`

	// HealthWindow is the number of recent scores in the rolling health
	// window (default: 10)
	HealthWindow int `yaml:"health_window"`

	// Backend overrides the HTTP client, mainly for tests
	Backend Backend `yaml:"-"`
	// Retry is the backend client's per-call retry policy
	Retry client.RetryConfig `yaml:"-"`
	// Logger receives monitoring-path failures; defaults to slog.Default()
	Logger *slog.Logger `yaml:"-"`
	// Registerer receives the SDK's Prometheus metrics; nil disables
	// instrumentation
	Registerer prometheus.Registerer `yaml:"-"`
	// Clock overrides the time source, for tests
	Clock clock.Clock `yaml:"-"`
}

// DefaultConfig returns the defaults used by the original SDK: adaptive
// sampling at 10% with a daily budget, async reporting, suggest-only
// healing.
func DefaultConfig() Config {
	return Config{
		BaseURL:              client.DefaultBaseURL,
		Tool:                 "AgentMonitor",
		UseCase:              "General",
		EnableSampling:       true,
		SamplingRate:         0.1,
		EnhancedMultiplier:   2.0,
		MaxDailySamples:      100,
		PerformanceThreshold: 70,
		SamplingWindow:       "daily",
		BatchSize:            1,
		BatchIdleTimeout:     30 * time.Second,
		BatchMaxRetries:      2,
		ReportAsync:          true,
		QueueSize:            64,
		SubmitTimeout:        10 * time.Second,
		AutoHealing:          false,
		HealingCooldown:      5 * time.Minute,
		FlagTTL:              time.Minute,
		HealthWindow:         10,
	}
}

// FromEnv builds a Config from environment variables, loading a .env file
// first if one exists. Unset variables keep their defaults.
func FromEnv() Config {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	cfg.AgentID = getEnv("ENABLEAI_AGENT_ID", cfg.AgentID)
	cfg.APIKey = getEnv("ENABLEAI_API_KEY", cfg.APIKey)
	cfg.BaseURL = getEnv("ENABLEAI_BASE_URL", cfg.BaseURL)
	cfg.Tool = getEnv("ENABLEAI_TOOL", cfg.Tool)
	cfg.UseCase = getEnv("ENABLEAI_USE_CASE", cfg.UseCase)
	cfg.EnableSampling = getEnvAsBool("ENABLEAI_ENABLE_SAMPLING", cfg.EnableSampling)
	cfg.SamplingRate = getEnvAsFloat("ENABLEAI_SAMPLING_RATE", cfg.SamplingRate)
	cfg.MaxDailySamples = getEnvAsInt("ENABLEAI_MAX_DAILY_SAMPLES", cfg.MaxDailySamples)
	cfg.PerformanceThreshold = getEnvAsFloat("ENABLEAI_PERFORMANCE_THRESHOLD", cfg.PerformanceThreshold)
	cfg.SamplingWindow = getEnv("ENABLEAI_SAMPLING_WINDOW", cfg.SamplingWindow)
	cfg.BatchSize = getEnvAsInt("ENABLEAI_BATCH_SIZE", cfg.BatchSize)
	cfg.ReportAsync = getEnvAsBool("ENABLEAI_REPORT_ASYNC", cfg.ReportAsync)
	cfg.AutoHealing = getEnvAsBool("ENABLEAI_AUTO_HEALING", cfg.AutoHealing)
	return cfg
}

// FromYAML builds a Config from a YAML file layered over the defaults.
func FromYAML(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// validate fails fast on malformed configuration.
func (c *Config) validate() error {
	if c.AgentID == "" {
		return fmt.Errorf("agent id is required")
	}
	if c.Infer == nil {
		return fmt.Errorf("inference function is required")
	}
	if c.Backend == nil && c.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling rate must be in [0,1], got %v", c.SamplingRate)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be >= 1, got %d", c.BatchSize)
	}
	if c.MaxDailySamples < 0 {
		return fmt.Errorf("max daily samples must be >= 0, got %d", c.MaxDailySamples)
	}
	if c.PerformanceThreshold < 0 || c.PerformanceThreshold > 100 {
		return fmt.Errorf("performance threshold must be in [0,100], got %v", c.PerformanceThreshold)
	}
	if _, err := c.windowDuration(); err != nil {
		return err
	}
	return nil
}

// windowDuration parses SamplingWindow: "daily" (or empty) means calendar
// rollover, anything else must be a valid positive duration.
func (c *Config) windowDuration() (time.Duration, error) {
	if c.SamplingWindow == "" || c.SamplingWindow == "daily" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.SamplingWindow)
	if err != nil {
		return 0, fmt.Errorf("sampling window must be %q or a duration: %w", "daily", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("sampling window duration must be positive, got %v", d)
	}
	return d, nil
}

func (c *Config) strategy() string {
	if c.AutoHealing {
		return client.StrategyAuto
	}
	return client.StrategySuggest
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
