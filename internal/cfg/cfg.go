package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
)

// Config holds the application flags. Ambient concerns (logging, HTTP
// server, tracing, profiling) register their own configs in main.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string

	ClaudeAPIKey      string
	ClaudeModel       string
	ClaudeMaxRetries  int
	LLMTimeoutSeconds int
	LLMMaxTokens      int

	DatabaseURL     string
	SlackWebhookURL string
	TaxonomyFile    string

	ReferralLink        string
	ConfidenceThreshold float64
	MaxClarifyAttempts  int
	RequireCertainty    bool

	CompletionCacheSize int
	SessionIdleMinutes  int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "comma-separated bearer tokens for the API (empty = no auth)")

	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for accessing the Claude LLM provider")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.IntVar(&c.ClaudeMaxRetries, "claude-max-retries", 2, "SDK retries for transient Claude failures (0..10)")
	fs.IntVar(&c.LLMTimeoutSeconds, "llm-timeout-seconds", 30, "per-call LLM timeout in seconds (0 = none)")
	fs.IntVar(&c.LLMMaxTokens, "llm-max-tokens", 1024, "max output tokens per LLM call")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for referral notifications")
	fs.StringVar(&c.TaxonomyFile, "taxonomy-file", "", "YAML question taxonomy (empty = built-in catalog)")

	fs.StringVar(&c.ReferralLink, "referral-link", "https://medinfo.example.com/request", "where medical and unresolved questions are referred")
	fs.Float64Var(&c.ConfidenceThreshold, "confidence-threshold", 0.85, "minimum confidence for a non-medical auto-response (0..1]")
	fs.IntVar(&c.MaxClarifyAttempts, "max-clarify-attempts", 3, "clarification rounds allowed per question")
	fs.BoolVar(&c.RequireCertainty, "require-certainty", false, "refer any non-medical answer below confidence 1.0")

	fs.IntVar(&c.CompletionCacheSize, "completion-cache-size", 0, "LRU completion cache entries (0 = disabled)")
	fs.IntVar(&c.SessionIdleMinutes, "session-idle-minutes", 60, "minutes before an idle session is swept (0 = never)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// LLM access
	if c.ClaudeAPIKey == "" {
		errs = append(errs, errors.New("CLAUDE_API_KEY is required"))
	}
	if c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required"))
	}
	if c.ClaudeMaxRetries < 0 || c.ClaudeMaxRetries > 10 {
		errs = append(errs, fmt.Errorf("invalid CLAUDE_MAX_RETRIES %d (must be 0..10)", c.ClaudeMaxRetries))
	}
	if c.LLMTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("invalid LLM_TIMEOUT_SECONDS %d (must not be negative)", c.LLMTimeoutSeconds))
	}
	if c.LLMMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("invalid LLM_MAX_TOKENS %d (must be positive)", c.LLMMaxTokens))
	}

	// Routing policy
	if !(c.ConfidenceThreshold > 0 && c.ConfidenceThreshold <= 1) {
		errs = append(errs, fmt.Errorf("invalid CONFIDENCE_THRESHOLD %v (must be in (0, 1])", c.ConfidenceThreshold))
	}
	if c.MaxClarifyAttempts < 0 {
		errs = append(errs, fmt.Errorf("invalid MAX_CLARIFY_ATTEMPTS %d (must not be negative)", c.MaxClarifyAttempts))
	}
	if c.ReferralLink == "" {
		errs = append(errs, errors.New("REFERRAL_LINK is required"))
	} else if u, err := url.Parse(c.ReferralLink); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid REFERRAL_LINK %q (must be an absolute URL)", c.ReferralLink))
	}

	if c.SlackWebhookURL != "" {
		if u, err := url.Parse(c.SlackWebhookURL); err != nil || u.Scheme != "https" {
			errs = append(errs, errors.New("SLACK_WEBHOOK_URL must be an https URL"))
		}
	}

	if c.CompletionCacheSize < 0 {
		errs = append(errs, fmt.Errorf("invalid COMPLETION_CACHE_SIZE %d (must not be negative)", c.CompletionCacheSize))
	}
	if c.SessionIdleMinutes < 0 {
		errs = append(errs, fmt.Errorf("invalid SESSION_IDLE_MINUTES %d (must not be negative)", c.SessionIdleMinutes))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
