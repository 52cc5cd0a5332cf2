package cfg

import (
	"flag"
	"math"
	"strings"
	"testing"
)

// validBase returns a Config with all required fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8080,
		ClaudeAPIKey:          "sk-test-key",
		ClaudeModel:           "claude-sonnet-4-20250514",
		ClaudeMaxRetries:      2,
		LLMTimeoutSeconds:     30,
		LLMMaxTokens:          1024,
		ReferralLink:          "https://medinfo.example.com/request",
		ConfidenceThreshold:   0.85,
		MaxClarifyAttempts:    3,
		SessionIdleMinutes:    60,
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.ClaudeModel != "claude-sonnet-4-20250514" {
		t.Errorf("ClaudeModel = %q, want %q", c.ClaudeModel, "claude-sonnet-4-20250514")
	}
	if c.ConfidenceThreshold != 0.85 {
		t.Errorf("ConfidenceThreshold = %v, want 0.85", c.ConfidenceThreshold)
	}
	if c.MaxClarifyAttempts != 3 {
		t.Errorf("MaxClarifyAttempts = %d, want 3", c.MaxClarifyAttempts)
	}
	if c.RequireCertainty {
		t.Error("RequireCertainty = true, want false")
	}
	if c.CompletionCacheSize != 0 {
		t.Errorf("CompletionCacheSize = %d, want 0", c.CompletionCacheSize)
	}
	if c.ReferralLink == "" {
		t.Error("ReferralLink default is empty")
	}

	// Defaults plus a key must validate.
	c.ClaudeAPIKey = "k"
	if err := c.Validate(); err != nil {
		t.Errorf("defaults with api key: %v", err)
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-claude-api-key", "sk-override",
		"-claude-model", "claude-opus-4-20250514",
		"-confidence-threshold", "0.9",
		"-max-clarify-attempts", "5",
		"-require-certainty",
		"-referral-link", "https://example.org/ask",
		"-taxonomy-file", "/etc/intake/taxonomy.yaml",
		"-completion-cache-size", "512",
		"-api-token", "a,b",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 120 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 120", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.ClaudeAPIKey != "sk-override" {
		t.Errorf("ClaudeAPIKey = %q, want %q", c.ClaudeAPIKey, "sk-override")
	}
	if c.ClaudeModel != "claude-opus-4-20250514" {
		t.Errorf("ClaudeModel = %q, want %q", c.ClaudeModel, "claude-opus-4-20250514")
	}
	if c.ConfidenceThreshold != 0.9 {
		t.Errorf("ConfidenceThreshold = %v, want 0.9", c.ConfidenceThreshold)
	}
	if c.MaxClarifyAttempts != 5 {
		t.Errorf("MaxClarifyAttempts = %d, want 5", c.MaxClarifyAttempts)
	}
	if !c.RequireCertainty {
		t.Error("RequireCertainty = false, want true")
	}
	if c.ReferralLink != "https://example.org/ask" {
		t.Errorf("ReferralLink = %q", c.ReferralLink)
	}
	if c.TaxonomyFile != "/etc/intake/taxonomy.yaml" {
		t.Errorf("TaxonomyFile = %q", c.TaxonomyFile)
	}
	if c.CompletionCacheSize != 512 {
		t.Errorf("CompletionCacheSize = %d, want 512", c.CompletionCacheSize)
	}
	if c.APIToken != "a,b" {
		t.Errorf("APIToken = %q, want %q", c.APIToken, "a,b")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	with := func(mut func(*Config)) Config {
		c := validBase()
		mut(&c)
		return c
	}

	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		errSubstr []string // substrings that must appear in error message
	}{
		{
			name: "defaults are valid",
			cfg:  validBase(),
		},
		{
			name: "minimum valid values",
			cfg: with(func(c *Config) {
				c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort = 1, 2, 1
				c.ClaudeMaxRetries, c.LLMTimeoutSeconds, c.LLMMaxTokens = 0, 0, 1
				c.ConfidenceThreshold, c.MaxClarifyAttempts = 0.0001, 0
				c.SessionIdleMinutes, c.CompletionCacheSize = 0, 0
			}),
		},
		{
			name: "maximum valid values",
			cfg: with(func(c *Config) {
				c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort = 299, 300, 65535
				c.ClaudeMaxRetries, c.ConfidenceThreshold = 10, 1
			}),
		},
		{
			name: "optional integrations set",
			cfg: with(func(c *Config) {
				c.DatabaseURL = "postgres://intake@localhost/intake"
				c.SlackWebhookURL = "https://hooks.slack.com/services/T/B/X"
				c.APIToken = "tok"
				c.CompletionCacheSize = 1000
			}),
		},
		// Drain and budget
		{
			name:      "drain zero",
			cfg:       with(func(c *Config) { c.DrainSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain above max",
			cfg:       with(func(c *Config) { c.DrainSeconds, c.ShutdownBudgetSeconds = 301, 302 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "budget negative",
			cfg:       with(func(c *Config) { c.ShutdownBudgetSeconds = -1 }),
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		{
			name:      "budget equals drain",
			cfg:       with(func(c *Config) { c.ShutdownBudgetSeconds = 60 }),
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name:      "port above max",
			cfg:       with(func(c *Config) { c.APIPort = 65536 }),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		// LLM
		{
			name:      "empty claude api key",
			cfg:       with(func(c *Config) { c.ClaudeAPIKey = "" }),
			wantErr:   true,
			errSubstr: []string{"CLAUDE_API_KEY"},
		},
		{
			name:      "empty claude model",
			cfg:       with(func(c *Config) { c.ClaudeModel = "" }),
			wantErr:   true,
			errSubstr: []string{"CLAUDE_MODEL"},
		},
		{
			name:      "retries above max",
			cfg:       with(func(c *Config) { c.ClaudeMaxRetries = 11 }),
			wantErr:   true,
			errSubstr: []string{"CLAUDE_MAX_RETRIES"},
		},
		{
			name:      "negative timeout",
			cfg:       with(func(c *Config) { c.LLMTimeoutSeconds = -1 }),
			wantErr:   true,
			errSubstr: []string{"LLM_TIMEOUT_SECONDS"},
		},
		{
			name:      "zero max tokens",
			cfg:       with(func(c *Config) { c.LLMMaxTokens = 0 }),
			wantErr:   true,
			errSubstr: []string{"LLM_MAX_TOKENS"},
		},
		// Policy
		{
			name:      "threshold zero",
			cfg:       with(func(c *Config) { c.ConfidenceThreshold = 0 }),
			wantErr:   true,
			errSubstr: []string{"CONFIDENCE_THRESHOLD"},
		},
		{
			name:      "threshold above one",
			cfg:       with(func(c *Config) { c.ConfidenceThreshold = 1.01 }),
			wantErr:   true,
			errSubstr: []string{"CONFIDENCE_THRESHOLD"},
		},
		{
			name:      "threshold NaN",
			cfg:       with(func(c *Config) { c.ConfidenceThreshold = math.NaN() }),
			wantErr:   true,
			errSubstr: []string{"CONFIDENCE_THRESHOLD"},
		},
		{
			name:      "negative attempts",
			cfg:       with(func(c *Config) { c.MaxClarifyAttempts = -1 }),
			wantErr:   true,
			errSubstr: []string{"MAX_CLARIFY_ATTEMPTS"},
		},
		{
			name:      "empty referral link",
			cfg:       with(func(c *Config) { c.ReferralLink = "" }),
			wantErr:   true,
			errSubstr: []string{"REFERRAL_LINK is required"},
		},
		{
			name:      "relative referral link",
			cfg:       with(func(c *Config) { c.ReferralLink = "/ask" }),
			wantErr:   true,
			errSubstr: []string{"REFERRAL_LINK"},
		},
		// Integrations
		{
			name:      "plain http slack webhook",
			cfg:       with(func(c *Config) { c.SlackWebhookURL = "http://hooks.slack.com/x" }),
			wantErr:   true,
			errSubstr: []string{"SLACK_WEBHOOK_URL"},
		},
		{
			name:      "negative cache size",
			cfg:       with(func(c *Config) { c.CompletionCacheSize = -1 }),
			wantErr:   true,
			errSubstr: []string{"COMPLETION_CACHE_SIZE"},
		},
		{
			name:      "negative idle minutes",
			cfg:       with(func(c *Config) { c.SessionIdleMinutes = -5 }),
			wantErr:   true,
			errSubstr: []string{"SESSION_IDLE_MINUTES"},
		},
		// Error accumulation: zero value
		{
			name:    "zero value",
			cfg:     Config{},
			wantErr: true,
			errSubstr: []string{
				"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT", "CLAUDE_API_KEY",
				"CLAUDE_MODEL", "LLM_MAX_TOKENS", "CONFIDENCE_THRESHOLD", "REFERRAL_LINK",
			},
		},
		{
			name: "extreme negative values",
			cfg: Config{
				DrainSeconds: math.MinInt32, ShutdownBudgetSeconds: math.MinInt32, APIPort: math.MinInt32,
			},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				errMsg := err.Error()
				for _, sub := range tt.errSubstr {
					if !strings.Contains(errMsg, sub) {
						t.Errorf("error %q does not contain %q", errMsg, sub)
					}
				}
			}
		})
	}
}

func FuzzValidate(f *testing.F) {
	seeds := []struct {
		drain, budget, port, attempts int
		threshold                     float64
		key, model, link              string
	}{
		{60, 90, 8080, 3, 0.85, "sk-test", "claude-sonnet", "https://example.com/r"},
		{1, 2, 1, 0, 1, "k", "m", "https://e/x"},
		{299, 300, 65535, 10, 0.0001, "k", "m", "https://e"},
		{0, 0, 0, 0, 0, "", "", ""},
		{-1, -1, -1, -1, -1, "", "", "not a url"},
		{300, 300, 65535, 3, 1.5, "k", "m", "/relative"},
		{150, 100, 8080, 3, 0.5, "k", "m", "https://e"},
		{math.MinInt32, math.MinInt32, math.MinInt32, math.MinInt32, math.Inf(-1), "", "", ""},
		{math.MaxInt32, math.MaxInt32, math.MaxInt32, math.MaxInt32, math.Inf(1), "", "", ""},
	}
	for _, s := range seeds {
		f.Add(s.drain, s.budget, s.port, s.attempts, s.threshold, s.key, s.model, s.link)
	}

	f.Fuzz(func(t *testing.T, drain, budget, port, attempts int, threshold float64, key, model, link string) {
		c := validBase()
		c.DrainSeconds = drain
		c.ShutdownBudgetSeconds = budget
		c.APIPort = port
		c.MaxClarifyAttempts = attempts
		c.ConfidenceThreshold = threshold
		c.ClaudeAPIKey = key
		c.ClaudeModel = model
		c.ReferralLink = link

		err := c.Validate()

		drainOK := drain >= 1 && drain <= 300
		budgetOK := budget >= 1 && budget <= 300
		portOK := port >= 1 && port <= 65535
		crossOK := budget > drain
		attemptsOK := attempts >= 0
		thresholdOK := threshold > 0 && threshold <= 1
		keyOK := key != ""
		modelOK := model != ""

		allValid := drainOK && budgetOK && portOK && crossOK && attemptsOK && thresholdOK && keyOK && modelOK

		// Link validity is delegated to url.Parse; only the other fields are
		// checked against an independent oracle.
		if !allValid && err == nil {
			t.Errorf("expected error for invalid config %+v, got nil", c)
		}
		if link == "" && err == nil {
			t.Error("expected error for empty referral link")
		}
	})
}
