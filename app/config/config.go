package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log          Log          `yaml:"log"`
	Server       Server       `yaml:"server"`
	LLM          LLM          `yaml:"llm"`
	Orchestrator Orchestrator `yaml:"orchestrator"`
	MCP          []MCPServer  `yaml:"mcp"`
}

type LLM struct {
	// Primary model does the reasoning pass for every turn
	Primary ModelConfig `yaml:"primary" validate:"required"`
	// Fallback model handles execution-oriented reasoning and primary failures
	Fallback ModelConfig `yaml:"fallback"`
}

type ModelConfig struct {
	// OpenAI-compatible base url
	BaseURL string `yaml:"base_url" example:"https://openrouter.ai/api/v1" validate:"required"`
	// API token
	Token string `yaml:"token" example:"sk-proj-abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX" validate:"required"`
	// Model name
	Model string `yaml:"model" example:"deepseek/deepseek-chat-v3-0324:free" validate:"required"`
}

type Server struct {
	// Listen address of the webhook server
	Addr string `yaml:"addr" example:":8080"`
	// Listen address of the Prometheus metrics endpoint
	MetricsAddr string `yaml:"metrics_addr" example:":9090"`
}

type Orchestrator struct {
	// Consecutive failures before a (tenant, tool) breaker opens
	BreakerFailureThreshold int `yaml:"breaker_failure_threshold"`
	// How long an open breaker rejects calls before allowing a probe
	BreakerRecoveryTimeout time.Duration `yaml:"breaker_recovery_timeout"`
	// Idle breakers and caches older than this are reclaimed
	SweepRetention time.Duration `yaml:"sweep_retention"`
	// Interval between reclaim sweeps
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// Retry attempts for transient tool failures (not counting the first call)
	MaxRetries int `yaml:"max_retries"`
	// Base delay between retries, multiplied by the attempt number
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	// Conversation history is pruned down to this many turns
	MaxHistoryTurns int `yaml:"max_history_turns"`
	// A pending location/staff selection older than this is discarded
	SelectionStaleness time.Duration `yaml:"selection_staleness"`
	// Hard cap on one reasoning pass
	ReasonTimeout time.Duration `yaml:"reason_timeout"`
	// Route execution-oriented reasoning to the fallback model
	HybridExecution bool `yaml:"hybrid_execution"`
	// Idle conversations older than this are dropped from memory
	ConversationRetention time.Duration `yaml:"conversation_retention"`
}

type MCPServer struct {
	// Name prefixes every tool exposed by this server
	Name string `yaml:"name" validate:"required"`
	// Command to launch the stdio MCP server
	Command string   `yaml:"command" validate:"required"`
	Args    []string `yaml:"args"`
}

type Log struct {
	// Minimum level for console output: debug, info, warn or error
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

func Load() (*Config, error) {
	var result Config

	data, err := os.ReadFile("config.yaml")
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	if err = yaml.Unmarshal(data, &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	if result.Server.Addr == "" {
		result.Server.Addr = ":8080"
	}
	if result.LLM.Fallback.Model == "" {
		result.LLM.Fallback = result.LLM.Primary
	}
	applyOrchestratorDefaults(&result.Orchestrator)

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}

func applyOrchestratorDefaults(o *Orchestrator) {
	if o.BreakerFailureThreshold <= 0 {
		o.BreakerFailureThreshold = 3
	}
	if o.BreakerRecoveryTimeout <= 0 {
		o.BreakerRecoveryTimeout = 30 * time.Second
	}
	if o.SweepRetention <= 0 {
		o.SweepRetention = 10 * time.Minute
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 2
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 200 * time.Millisecond
	}
	if o.MaxHistoryTurns <= 0 {
		o.MaxHistoryTurns = 30
	}
	if o.SelectionStaleness <= 0 {
		o.SelectionStaleness = 10 * time.Minute
	}
	if o.ReasonTimeout <= 0 {
		o.ReasonTimeout = 30 * time.Second
	}
	if o.ConversationRetention <= 0 {
		o.ConversationRetention = time.Hour
	}
}
