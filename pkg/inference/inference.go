// Package inference runs image-to-text requests against a hosted vision model.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// ErrEmptyResponse indicates the model returned no text.
var ErrEmptyResponse = errors.New("model returned an empty description")

// Request is one image prompt.
type Request struct {
	Image       []byte
	ContentType string
	Prompt      string
	MaxTokens   int
}

// Response carries the generated text.
type Response struct {
	Description string
}

// Runner executes a vision model.
type Runner interface {
	Run(ctx context.Context, model string, req Request) (*Response, error)
}

// StatusError reports a non-2xx response from the provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference request: http %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed if retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// IsTemporary reports whether err is worth retrying. Errors that are not a
// StatusError, such as transport failures, are treated as temporary.
func IsTemporary(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return !errors.Is(err, ErrEmptyResponse)
}

// New creates the runner selected by cfg.Provider.
func New(cfg *Config, logger *slog.Logger) (Runner, error) {
	client := &http.Client{Timeout: cfg.TimeoutDuration()}
	logger = logger.With("system", "inference", "provider", cfg.Provider)

	switch cfg.Provider {
	case ProviderCloudflare:
		return NewCloudflare(cfg.BaseURL, cfg.AccountID, cfg.APIToken, client, logger), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg.BaseURL, cfg.APIToken, client, logger), nil
	default:
		return nil, fmt.Errorf("unsupported inference provider: %s", cfg.Provider)
	}
}

func postJSON(ctx context.Context, client *http.Client, endpoint, token string, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("inference request: encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("inference request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("inference request: read body: %w", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		return &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("inference request: decode response: %w", err)
	}
	return nil
}
