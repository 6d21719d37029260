package inference

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Cloudflare calls the Workers AI REST endpoint
// POST {base}/accounts/{account}/ai/run/{model}.
type Cloudflare struct {
	baseURL   string
	accountID string
	token     string
	client    *http.Client
	logger    *slog.Logger
}

// NewCloudflare creates a Workers AI runner.
func NewCloudflare(baseURL, accountID, token string, client *http.Client, logger *slog.Logger) *Cloudflare {
	return &Cloudflare{
		baseURL:   strings.TrimRight(baseURL, "/"),
		accountID: accountID,
		token:     token,
		client:    client,
		logger:    logger,
	}
}

// byteArray encodes as a JSON array of integers, the image format Workers AI
// vision models accept.
type byteArray []byte

func (b byteArray) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, len(b)*4+2)
	buf = append(buf, '[')
	for i, v := range b {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendUint(buf, uint64(v), 10)
	}
	return append(buf, ']'), nil
}

type cloudflareRequest struct {
	Image     byteArray `json:"image"`
	Prompt    string    `json:"prompt"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type cloudflareResponse struct {
	Result struct {
		Description string `json:"description"`
		Response    string `json:"response"`
	} `json:"result"`
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Cloudflare) Run(ctx context.Context, model string, req Request) (*Response, error) {
	endpoint, err := url.JoinPath(c.baseURL, "accounts", c.accountID, "ai", "run")
	if err != nil {
		return nil, fmt.Errorf("inference request: build url: %w", err)
	}
	// model names contain "@" and "/" that must stay literal path segments
	endpoint += "/" + strings.TrimLeft(model, "/")

	payload := cloudflareRequest{
		Image:     byteArray(req.Image),
		Prompt:    req.Prompt,
		MaxTokens: req.MaxTokens,
	}

	var out cloudflareResponse
	if err := postJSON(ctx, c.client, endpoint, c.token, payload, &out); err != nil {
		return nil, err
	}

	if !out.Success {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, fmt.Sprintf("%d: %s", e.Code, e.Message))
		}
		return nil, fmt.Errorf("inference request: workers ai error: %s", strings.Join(msgs, "; "))
	}

	description := strings.TrimSpace(out.Result.Description)
	if description == "" {
		description = strings.TrimSpace(out.Result.Response)
	}
	if description == "" {
		return nil, ErrEmptyResponse
	}

	c.logger.Debug("inference complete", "model", model, "chars", len(description))
	return &Response{Description: description}, nil
}
