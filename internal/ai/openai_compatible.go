package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"docbot/internal/pkg/retry"
	"docbot/internal/rag"
)

const (
	DefaultChatModel      = openai.GPT3Dot5Turbo
	DefaultEmbeddingModel = string(openai.SmallEmbedding3)
	defaultTimeout        = 30 * time.Second
)

var ErrMissingAPIKey = errors.New("llm api key is required")

// Config holds the settings of an OpenAI-compatible provider.
type Config struct {
	BaseURL           string
	APIKey            string
	ChatModel         string
	EmbeddingModel    string
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client talks to an OpenAI-compatible API. It implements rag.Embedder and rag.Generator.
type Client struct {
	api            *openai.Client
	chatModel      string
	embeddingModel openai.EmbeddingModel
	timeout        time.Duration
	maxRetries     int
	retryDelay     time.Duration
	limiter        *rate.Limiter
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		apiCfg.HTTPClient = cfg.HTTPClient
	}

	c := &Client{
		api:            openai.NewClientWithConfig(apiCfg),
		chatModel:      cfg.ChatModel,
		embeddingModel: openai.EmbeddingModel(cfg.EmbeddingModel),
		timeout:        cfg.Timeout,
		maxRetries:     cfg.MaxRetries,
		retryDelay:     cfg.RetryDelay,
	}
	if c.chatModel == "" {
		c.chatModel = DefaultChatModel
	}
	if c.embeddingModel == "" {
		c.embeddingModel = openai.SmallEmbedding3
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c, nil
}

// RetriesTransient reports whether timeouts and upstream failures are
// retried inside the client.
func (c *Client) RetriesTransient() bool { return c.maxRetries > 0 }

// Complete sends the conversation and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, messages []rag.Message, opts rag.CompletionOptions) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
		Temperature: opts.Temperature,
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	var content string
	_, err := c.do(ctx, func(ctx context.Context) error {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return classify(err)
		}
		if len(resp.Choices) == 0 {
			return &callError{kind: rag.ErrUpstreamError, err: errors.New("no completion choices returned")}
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

// do runs one provider call with throttling, a per-call timeout and retries.
func (c *Client) do(ctx context.Context, call func(context.Context) error) (int, error) {
	return retry.Do(ctx, c.maxRetries+1, c.retryDelay, isRetryable, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return &callError{kind: rag.ErrUpstreamTimeout, err: err}
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return call(callCtx)
	})
}

// callError classifies a provider failure. Only the kind is exposed to
// errors.Is so raw provider payloads stay out of the error chain.
type callError struct {
	kind   error
	status int
	retry  bool
	err    error
}

func (e *callError) Error() string {
	if e.status > 0 {
		return fmt.Sprintf("%v (status %d): %v", e.kind, e.status, e.err)
	}
	return fmt.Sprintf("%v: %v", e.kind, e.err)
}

func (e *callError) Unwrap() error { return e.kind }

func isRetryable(err error) bool {
	var ce *callError
	return errors.As(err, &ce) && ce.retry
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &callError{kind: rag.ErrUpstreamTimeout, retry: true, err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &callError{kind: rag.ErrUpstreamError, err: err}
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusBadRequest, status == http.StatusNotFound,
		status == http.StatusRequestEntityTooLarge, status == http.StatusUnprocessableEntity:
		return &callError{kind: rag.ErrInputRejected, status: status, err: err}
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return &callError{kind: rag.ErrUpstreamError, status: status, err: err}
	case status == http.StatusRequestTimeout:
		return &callError{kind: rag.ErrUpstreamTimeout, status: status, retry: true, err: err}
	default:
		// 429, 5xx and transport failures
		return &callError{kind: rag.ErrUpstreamError, status: status, retry: true, err: err}
	}
}
