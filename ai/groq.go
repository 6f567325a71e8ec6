package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/korjavin/quizpilot/models"
)

const (
	groqAPIURL    = "https://api.groq.com/openai/v1/chat/completions"
	apiTimeoutSec = 60

	// DefaultMaxRetries is the number of attempts per model
	DefaultMaxRetries = 3
	// Backoff doubles from BaseBackoff per attempt and is capped at MaxBackoff.
	BaseBackoff = time.Second
	MaxBackoff  = 5 * time.Second

	temperature     = 0.1
	textMaxTokens   = 10
	visionMaxTokens = 50
)

// Model chains, tried in order
var (
	DefaultTextModels = []string{
		"llama-3.3-70b-versatile",
		"llama-3.1-70b-versatile",
		"llama3-70b-8192",
		"mixtral-8x7b-32768",
		"gemma2-9b-it",
	}
	DefaultVisionModels = []string{
		"llama-3.2-90b-vision-preview",
		"llama-3.2-11b-vision-preview",
	}
)

var (
	// ErrMissingCredential is returned when no API key is configured
	ErrMissingCredential = eris.New("Groq API key not configured")
	// ErrAllModelsFailed matches the error returned once every model in the chain failed
	ErrAllModelsFailed = eris.New("all AI models failed")
)

// ChainError is returned when every model in the chain failed; Last is the final error seen
type ChainError struct {
	Models []string
	Last   error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("all AI models failed (%s): %v", strings.Join(e.Models, ", "), e.Last)
}

func (e *ChainError) Unwrap() error { return e.Last }

func (e *ChainError) Is(target error) bool { return target == ErrAllModelsFailed }

// APIError is a non-2xx response from the completion endpoint
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Groq API error: %d - %s", e.StatusCode, e.Body)
}

// Transient reports whether the request may succeed when retried
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Options configure a GroqClient; zero values fall back to defaults
type Options struct {
	Endpoint     string
	TextModels   []string
	VisionModels []string
	MaxRetries   int
	HTTPClient   *http.Client
}

// GroqClient answers quiz questions through the Groq chat completions API
type GroqClient struct {
	apiKey       string
	endpoint     string
	textModels   []string
	visionModels []string
	maxRetries   int
	http         *http.Client
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewGroqClient creates a new Groq API client
func NewGroqClient(apiKey string, opts Options) *GroqClient {
	c := &GroqClient{
		apiKey:       strings.TrimSpace(apiKey),
		endpoint:     opts.Endpoint,
		textModels:   opts.TextModels,
		visionModels: opts.VisionModels,
		maxRetries:   opts.MaxRetries,
		http:         opts.HTTPClient,
		sleep:        sleepContext,
	}
	if c.endpoint == "" {
		c.endpoint = groqAPIURL
	}
	if len(c.textModels) == 0 {
		c.textModels = DefaultTextModels
	}
	if len(c.visionModels) == 0 {
		c.visionModels = DefaultVisionModels
	}
	if c.maxRetries <= 0 {
		c.maxRetries = DefaultMaxRetries
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: apiTimeoutSec * time.Second}
	}
	return c
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Ask sends the question through the model chain. Each model gets up to MaxRetries
// attempts with exponential backoff on rate limits, server errors and transport
// failures; any other failure aborts immediately.
func (c *GroqClient) Ask(ctx context.Context, q models.Query) (models.OracleAnswer, error) {
	if c.apiKey == "" {
		return models.OracleAnswer{}, ErrMissingCredential
	}

	hasImage := len(q.Image) > 0
	chain := c.textModels
	maxTokens := textMaxTokens
	if hasImage {
		chain = c.visionModels
		maxTokens = visionMaxTokens
	}

	preview := q.Question
	if len(preview) > 60 {
		preview = preview[:60] + "..."
	}
	log.Printf("Asking AI [%s] %s (options: %d, image: %v)", q.Topic, preview, len(q.Options), hasImage)

	messages := buildMessages(q)
	var lastErr error
	for _, model := range chain {
		for attempt := 1; attempt <= c.maxRetries; attempt++ {
			log.Printf("Attempt %d/%d with %s", attempt, c.maxRetries, model)

			text, err := c.complete(ctx, completionRequest{
				Model:       model,
				Messages:    messages,
				Temperature: temperature,
				MaxTokens:   maxTokens,
			})
			if err == nil {
				log.Printf("Success with %s (attempt %d): %q", model, attempt, text)
				return models.OracleAnswer{Text: text, Model: model, Attempt: attempt}, nil
			}

			lastErr = err
			if ctxErr := ctx.Err(); ctxErr != nil {
				return models.OracleAnswer{}, eris.Wrap(ctxErr, "ask AI")
			}
			if !isTransient(err) {
				log.Printf("%s failed permanently: %v", model, err)
				return models.OracleAnswer{}, eris.Wrapf(err, "ask %s", model)
			}

			log.Printf("Attempt %d with %s failed: %v", attempt, model, err)
			if attempt < c.maxRetries {
				wait := Backoff(attempt)
				log.Printf("Waiting %v before retry...", wait)
				if err := c.sleep(ctx, wait); err != nil {
					return models.OracleAnswer{}, eris.Wrap(err, "ask AI")
				}
			}
		}
		log.Printf("%s exhausted its retries, trying next model...", model)
	}

	log.Printf("All models in fallback chain failed")
	return models.OracleAnswer{}, &ChainError{Models: chain, Last: lastErr}
}

// Backoff returns the wait before retry number attempt (1-based)
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := BaseBackoff
	for i := 1; i < attempt && d < MaxBackoff; i++ {
		d *= 2
	}
	if d > MaxBackoff {
		d = MaxBackoff
	}
	return d
}

func (c *GroqClient) complete(ctx context.Context, reqBody completionRequest) (string, error) {
	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return "", eris.Wrap(err, "marshal request")
	}

	ctx, cancel := context.WithTimeout(ctx, apiTimeoutSec*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqJSON))
	if err != nil {
		return "", eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	reqSentTime := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", &transportError{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &transportError{err: err}
	}
	log.Printf("Received response from %s in %v with status code: %d", reqBody.Model, time.Since(reqSentTime), resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Body: truncate(string(body), 300)}
	}

	var decoded completionResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", &transportError{err: eris.Wrap(err, "decode response")}
	}
	if len(decoded.Choices) == 0 {
		return "", &transportError{err: eris.New("no choices in API response")}
	}
	text := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if text == "" {
		return "", &transportError{err: eris.New("empty answer in API response")}
	}
	return text, nil
}

// transportError covers network failures and malformed responses; always retried
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }

func (e *transportError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	var tErr *transportError
	return errors.As(err, &tErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
