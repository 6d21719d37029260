package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/JaimeStill/tagger/pkg/durable"
	"github.com/JaimeStill/tagger/pkg/formatting"
)

const (
	EnvWorkflowApprovalTimeout  = "TAGGER_WORKFLOW_APPROVAL_TIMEOUT"
	EnvWorkflowMaxUploadSize    = "TAGGER_WORKFLOW_MAX_UPLOAD_SIZE"
	EnvWorkflowTagsMaxTokens    = "TAGGER_WORKFLOW_TAGS_MAX_TOKENS"
	EnvWorkflowAltTextMaxTokens = "TAGGER_WORKFLOW_ALTTEXT_MAX_TOKENS"
)

var engineEnv = &durable.Env{
	MaxConcurrent: "TAGGER_WORKFLOW_MAX_CONCURRENT",
	StepRetries:   "TAGGER_WORKFLOW_STEP_RETRIES",
	RetryDelay:    "TAGGER_WORKFLOW_RETRY_DELAY",
	MaxRetryDelay: "TAGGER_WORKFLOW_MAX_RETRY_DELAY",
	PollInterval:  "TAGGER_WORKFLOW_POLL_INTERVAL",
}

// WorkflowConfig holds approval gate, upload, and generation settings plus
// the durable engine's execution limits.
type WorkflowConfig struct {
	ApprovalTimeout  string         `toml:"approval_timeout"`
	MaxUploadSize    string         `toml:"max_upload_size"`
	TagsMaxTokens    int            `toml:"tags_max_tokens"`
	AltTextMaxTokens int            `toml:"alttext_max_tokens"`
	Engine           durable.Config `toml:"engine"`
}

// ApprovalTimeoutDuration returns ApprovalTimeout as a time.Duration.
func (c *WorkflowConfig) ApprovalTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ApprovalTimeout)
	return d
}

// MaxUploadSizeBytes returns MaxUploadSize in bytes.
func (c *WorkflowConfig) MaxUploadSizeBytes() int64 {
	size, err := formatting.ParseBytes(c.MaxUploadSize)
	if err != nil {
		return 10 * 1024 * 1024
	}
	return size
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *WorkflowConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Engine.Finalize(engineEnv); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *WorkflowConfig) Merge(overlay *WorkflowConfig) {
	if overlay.ApprovalTimeout != "" {
		c.ApprovalTimeout = overlay.ApprovalTimeout
	}
	if overlay.MaxUploadSize != "" {
		c.MaxUploadSize = overlay.MaxUploadSize
	}
	if overlay.TagsMaxTokens != 0 {
		c.TagsMaxTokens = overlay.TagsMaxTokens
	}
	if overlay.AltTextMaxTokens != 0 {
		c.AltTextMaxTokens = overlay.AltTextMaxTokens
	}
	c.Engine.Merge(&overlay.Engine)
}

func (c *WorkflowConfig) loadDefaults() {
	if c.ApprovalTimeout == "" {
		c.ApprovalTimeout = "5m"
	}
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = "10MB"
	}
	if c.TagsMaxTokens == 0 {
		c.TagsMaxTokens = 64
	}
	if c.AltTextMaxTokens == 0 {
		c.AltTextMaxTokens = 256
	}
}

func (c *WorkflowConfig) loadEnv() {
	if v := os.Getenv(EnvWorkflowApprovalTimeout); v != "" {
		c.ApprovalTimeout = v
	}
	if v := os.Getenv(EnvWorkflowMaxUploadSize); v != "" {
		c.MaxUploadSize = v
	}
	if v := os.Getenv(EnvWorkflowTagsMaxTokens); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TagsMaxTokens = n
		}
	}
	if v := os.Getenv(EnvWorkflowAltTextMaxTokens); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AltTextMaxTokens = n
		}
	}
}

func (c *WorkflowConfig) validate() error {
	d, err := time.ParseDuration(c.ApprovalTimeout)
	if err != nil {
		return fmt.Errorf("invalid approval_timeout: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("approval_timeout must be positive")
	}
	size, err := formatting.ParseBytes(c.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("invalid max_upload_size: %w", err)
	}
	if size <= 0 {
		return fmt.Errorf("max_upload_size must be positive")
	}
	if c.TagsMaxTokens < 1 || c.AltTextMaxTokens < 1 {
		return fmt.Errorf("max tokens must be at least 1")
	}
	return nil
}
