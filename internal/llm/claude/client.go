// Package claude implements triage.Provider on the Anthropic Messages API.
package claude

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/intake/internal/triage"
)

const (
	DefaultMaxTokens      = 1024
	DefaultMaxRetries     = 2
	DefaultRequestTimeout = 60 * time.Second
)

// Client sends single-turn prompts to Claude.
type Client struct {
	sdk       anthropic.Client
	model     string
	system    string
	maxTokens int64
}

type settings struct {
	maxTokens  int
	maxRetries int
	timeout    time.Duration
	system     string
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*settings)

// WithMaxTokens bounds the reply length.
func WithMaxTokens(n int) Option { return func(s *settings) { s.maxTokens = n } }

// WithMaxRetries sets how many times the SDK retries transient failures.
func WithMaxRetries(n int) Option { return func(s *settings) { s.maxRetries = n } }

// WithRequestTimeout bounds each HTTP attempt.
func WithRequestTimeout(d time.Duration) Option { return func(s *settings) { s.timeout = d } }

// WithSystem sets the system prompt sent with every request.
func WithSystem(system string) Option { return func(s *settings) { s.system = system } }

// WithBaseURL points the client at a different API host.
func WithBaseURL(u string) Option { return func(s *settings) { s.baseURL = u } }

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(s *settings) { s.httpClient = c } }

// New creates a new Claude API client with the given API key and model name.
func New(apiKey, model string, opts ...Option) *Client {
	st := settings{
		maxTokens:  DefaultMaxTokens,
		maxRetries: DefaultMaxRetries,
		timeout:    DefaultRequestTimeout,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(&st)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(st.maxRetries),
		option.WithRequestTimeout(st.timeout),
		option.WithHTTPClient(st.httpClient),
	}
	if st.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(st.baseURL))
	}

	return &Client{
		sdk:       anthropic.NewClient(reqOpts...),
		model:     model,
		system:    st.system,
		maxTokens: int64(st.maxTokens),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Complete sends prompt as a single user message and returns the text reply.
func (c *Client) Complete(ctx context.Context, prompt string) (*triage.Completion, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if c.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: c.system}}
	}

	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}

	return fromSDKMessage(msg), nil
}

func fromSDKMessage(msg *anthropic.Message) *triage.Completion {
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &triage.Completion{
		Text:         text.String(),
		Model:        string(msg.Model),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
}

// classifyError maps SDK and transport failures onto triage.LLMError kinds.
func classifyError(err error) *triage.LLMError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &triage.LLMError{Kind: triage.LLMTimeout, Err: err}
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &triage.LLMError{Kind: kindForStatus(apiErr.StatusCode), Err: err}
	}

	return &triage.LLMError{Kind: triage.LLMUnknown, Err: err}
}

func kindForStatus(code int) triage.LLMErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return triage.LLMRateLimited
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return triage.LLMTimeout
	case code >= 500:
		return triage.LLMServiceError
	default:
		return triage.LLMUnknown
	}
}
