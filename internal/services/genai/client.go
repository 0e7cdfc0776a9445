package genai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout    = 180 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryAttempts  = 1
	defaultBaseURL        = "https://api.openai.com/v1"
)

// Modality selects the provider endpoint a request is sent to.
type Modality string

const (
	ModalityText   Modality = "text"
	ModalityImage  Modality = "image"
	ModalitySpeech Modality = "speech"
)

// Request describes a single generation call.
type Request struct {
	Modality Modality
	// Purpose labels the call in errors and logs (outline, chapter_text, ...).
	Purpose string
	System  string
	Prompt  string
	// JSON asks text models for a JSON object response.
	JSON   bool
	Voice  string
	Format string
	Size   string
}

// Usage is the billed quantity reported for a call.
type Usage struct {
	Tokens     int64
	Characters int64
}

// Billed returns the quantity added to a job's running cost.
func (u Usage) Billed() int64 {
	return u.Tokens + u.Characters
}

// Add accumulates another usage report.
func (u Usage) Add(other Usage) Usage {
	return Usage{Tokens: u.Tokens + other.Tokens, Characters: u.Characters + other.Characters}
}

// Result carries generated content. Text responses fill Content; image and
// speech responses fill Data and MIMEType.
type Result struct {
	Content  string
	Data     []byte
	MIMEType string
	Usage    Usage
}

// Generator is the interface pipelines depend on. Implementations return
// Usage even when err is non-nil so callers can record partial billing.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// Config captures the runtime settings required to talk to the provider.
type Config struct {
	APIKey         string
	BaseURL        string
	TextModel      string
	ImageModel     string
	SpeechModel    string
	Voice          string
	ImageSize      string
	TimeoutSeconds int
}

// Client wraps the chat completion, image generation, and speech endpoints.
type Client struct {
	cfg        Config
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the per-call attempt count (defaults to 1).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a generation client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			TextModel:      strings.TrimSpace(cfg.TextModel),
			ImageModel:     strings.TrimSpace(cfg.ImageModel),
			SpeechModel:    strings.TrimSpace(cfg.SpeechModel),
			Voice:          strings.TrimSpace(cfg.Voice),
			ImageSize:      strings.TrimSpace(cfg.ImageSize),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: timeout}
	}
	return client
}

// Generate dispatches the request to the endpoint for its modality.
func (c *Client) Generate(ctx context.Context, req Request) (Result, error) {
	op := "genai " + firstNonEmpty(req.Purpose, string(req.Modality))
	if c.cfg.APIKey == "" {
		return Result{}, wrapConfiguration(op, errors.New("api key required"))
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return Result{}, wrapValidation(op, errors.New("prompt required"))
	}
	switch req.Modality {
	case ModalityText, "":
		return c.complete(ctx, req, op)
	case ModalityImage:
		return c.image(ctx, req, op)
	case ModalitySpeech:
		return c.speech(ctx, req, op)
	default:
		return Result{}, wrapValidation(op, fmt.Errorf("unsupported modality %q", req.Modality))
	}
}

// HealthCheck issues a tiny completion to verify the API key and text model.
func (c *Client) HealthCheck(ctx context.Context) error {
	res, err := c.Generate(ctx, Request{
		Modality: ModalityText,
		Purpose:  "health",
		System:   "You must respond with JSON only.",
		Prompt:   `Respond with {"ok":true}`,
		JSON:     true,
	})
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeJSON(res.Content, &parsed); err != nil {
		return fmt.Errorf("genai health: parse payload: %w", err)
	}
	if !parsed.OK {
		return errors.New("genai health: unexpected response")
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	return c.cfg.BaseURL + "/" + strings.TrimLeft(path, "/")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
