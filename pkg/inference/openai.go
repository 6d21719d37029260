package inference

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// OpenAI calls an OpenAI-compatible chat completions endpoint with the image
// attached as a data URI.
type OpenAI struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewOpenAI creates a chat completions runner.
func NewOpenAI(baseURL, token string, client *http.Client, logger *slog.Logger) *OpenAI {
	return &OpenAI{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
		logger:  logger,
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string     `json:"role"`
	Content []chatPart `json:"content"`
}

type chatPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (o *OpenAI) Run(ctx context.Context, model string, req Request) (*Response, error) {
	endpoint, err := url.JoinPath(o.baseURL, "chat", "completions")
	if err != nil {
		return nil, fmt.Errorf("inference request: build url: %w", err)
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(req.Image)
	}
	dataURI := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(req.Image)

	payload := chatRequest{
		Model: model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatPart{
				{Type: "text", Text: req.Prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURI}},
			},
		}},
		MaxTokens: req.MaxTokens,
	}

	var out chatResponse
	if err := postJSON(ctx, o.client, endpoint, o.token, payload, &out); err != nil {
		return nil, err
	}

	if out.Error != nil {
		return nil, fmt.Errorf("inference request: api error: %s", strings.TrimSpace(out.Error.Message))
	}

	for _, choice := range out.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			o.logger.Debug("inference complete", "model", model, "finish_reason", choice.FinishReason)
			return &Response{Description: content}, nil
		}
		if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
			return nil, fmt.Errorf("inference request: model refused: %s", refusal)
		}
	}

	return nil, ErrEmptyResponse
}
