// Package client is a Go client for the tagger HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JaimeStill/tagger/pkg/durable"
)

const defaultTimeout = 30 * time.Second

// Approval stages accepted by Approve.
const (
	StageTags    = "tags"
	StageAltText = "alttext"
)

var approvalPaths = map[string]string{
	StageTags:    "approval-for-ai-tagging",
	StageAltText: "approval-for-ai-alttext",
}

// APIError is a non-2xx response carrying the server's {error} message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: http %d: %s", e.StatusCode, e.Message)
}

// UploadResult is the response to a successful upload.
type UploadResult struct {
	ID      string            `json:"id"`
	Details *durable.Instance `json:"details"`
	Success bool              `json:"success"`
	Message string            `json:"message"`
}

// Client calls the API rooted at a base URL such as http://localhost:8080/api.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload submits an image as the multipart field "image".
func (c *Client) Upload(ctx context.Context, fileName string, image io.Reader) (*UploadResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("image", fileName)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result UploadResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status returns the current state of the submission.
func (c *Client) Status(ctx context.Context, id string) (*durable.Instance, error) {
	var inst durable.Instance
	if err := c.get(ctx, "/", id, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// Tags returns the persisted tags, empty when none were generated.
func (c *Client) Tags(ctx context.Context, id string) (string, error) {
	var out struct {
		Tags string `json:"tags"`
	}
	if err := c.get(ctx, "/tags", id, &out); err != nil {
		return "", err
	}
	return out.Tags, nil
}

// AltText returns the persisted alt text, empty when none was generated.
func (c *Client) AltText(ctx context.Context, id string) (string, error) {
	var out struct {
		AltText string `json:"altText"`
	}
	if err := c.get(ctx, "/alttext", id, &out); err != nil {
		return "", err
	}
	return out.AltText, nil
}

// Approve delivers an approval decision for stage (StageTags or StageAltText).
func (c *Client) Approve(ctx context.Context, id, stage string, approved bool) error {
	path, ok := approvalPaths[stage]
	if !ok {
		return fmt.Errorf("unknown approval stage: %q", stage)
	}

	payload, err := json.Marshal(map[string]any{
		"instanceId": id,
		"approved":   approved,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Success bool `json:"success"`
	}
	if err := c.do(req, &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("approval for %s was not accepted", id)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path, id string, out any) error {
	endpoint := c.baseURL + path + "?" + url.Values{"instanceId": {id}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
