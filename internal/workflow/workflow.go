// Package workflow implements the image tagging state machine as a durable
// workflow: persist the submission, then pass two approval gates, each of
// which runs the vision model only when approved.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/JaimeStill/tagger/internal/prompts"
	"github.com/JaimeStill/tagger/internal/submissions"
	"github.com/JaimeStill/tagger/pkg/durable"
	"github.com/JaimeStill/tagger/pkg/formatting"
	"github.com/JaimeStill/tagger/pkg/inference"
)

// Name identifies the workflow in the durable journal.
const Name = "image-tagging"

// Externally visible stages, reported as Instance.Stage.
const (
	StageStarted                 = "started"
	StageAwaitingTagApproval     = "awaiting_tag_approval"
	StageTagging                 = "tagging"
	StageTagSkipped              = "tag_skipped"
	StageAwaitingAltTextApproval = "awaiting_alttext_approval"
	StageGeneratingAltText       = "generating_alttext"
	StageAltTextSkipped          = "alttext_skipped"
	StageFinished                = "finished"
)

// Result is the instance output of a finished run. A field is empty when its
// gate was denied or timed out.
type Result struct {
	Tags    string `json:"tags,omitempty"`
	AltText string `json:"altText,omitempty"`
}

type gate struct {
	stage    prompts.Stage
	awaiting string
	active   string
	skipped  string
	step     string
	clean    func(string) string
	persist  func(ctx context.Context, instanceID, text string) (string, error)
}

// New returns the durable workflow function bound to rt.
func New(rt *Runtime) durable.Func {
	return rt.execute
}

func (rt *Runtime) execute(ctx context.Context, run *durable.Run) (any, error) {
	var params submissions.Params
	if err := run.Params(&params); err != nil {
		return nil, durable.Permanent(err)
	}

	if err := run.SetStage(ctx, StageStarted); err != nil {
		return nil, err
	}

	_, err := durable.Do(ctx, run, "persist-submission", func(ctx context.Context) (bool, error) {
		if err := rt.Submissions.Insert(ctx, params.Submission()); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	tags, err := rt.pass(ctx, run, params, gate{
		stage:    prompts.StageTags,
		awaiting: StageAwaitingTagApproval,
		active:   StageTagging,
		skipped:  StageTagSkipped,
		step:     "generate-tags",
		clean:    formatting.NormalizeTags,
		persist:  rt.Submissions.UpdateTags,
	})
	if err != nil {
		return nil, err
	}

	altText, err := rt.pass(ctx, run, params, gate{
		stage:    prompts.StageAltText,
		awaiting: StageAwaitingAltTextApproval,
		active:   StageGeneratingAltText,
		skipped:  StageAltTextSkipped,
		step:     "generate-alttext",
		clean:    formatting.CleanText,
		persist:  rt.Submissions.UpdateAltText,
	})
	if err != nil {
		return nil, err
	}

	if err := run.SetStage(ctx, StageFinished); err != nil {
		return nil, err
	}

	return Result{Tags: tags, AltText: altText}, nil
}

// pass waits at g's approval gate and, when approved, generates and persists
// the derived text. A denial or timeout skips the stage and returns "".
func (rt *Runtime) pass(ctx context.Context, run *durable.Run, params submissions.Params, g gate) (string, error) {
	logger := run.Logger().With("gate", g.stage)

	if err := run.SetStage(ctx, g.awaiting); err != nil {
		return "", err
	}

	ev, err := run.WaitForEvent(ctx, string(g.stage), g.stage.EventKind(), rt.ApprovalTimeout)
	switch {
	case errors.Is(err, durable.ErrEventTimeout):
		logger.Info("approval timed out, skipping", "timeout", rt.ApprovalTimeout)
		return "", run.SetStage(ctx, g.skipped)
	case err != nil:
		return "", err
	}

	var decision submissions.Decision
	if err := ev.Decode(&decision); err != nil {
		logger.Warn("unreadable approval treated as denial", "error", err)
	}

	if !decision.Approved {
		logger.Info("approval denied, skipping")
		return "", run.SetStage(ctx, g.skipped)
	}

	if err := run.SetStage(ctx, g.active); err != nil {
		return "", err
	}

	return durable.Do(ctx, run, g.step, func(ctx context.Context) (string, error) {
		return rt.generate(ctx, params, g)
	})
}

func (rt *Runtime) generate(ctx context.Context, params submissions.Params, g gate) (string, error) {
	image, err := rt.Submissions.Image(ctx, params.ImageKey)
	if err != nil {
		return "", err
	}

	prompt, err := ComposePrompt(ctx, rt.Prompts, g.stage)
	if err != nil {
		return "", err
	}

	resp, err := rt.Inference.Run(ctx, rt.Model, inference.Request{
		Image:       image,
		ContentType: params.ContentType,
		Prompt:      prompt,
		MaxTokens:   rt.MaxTokens[g.stage],
	})
	if err != nil {
		if !inference.IsTemporary(err) {
			return "", durable.Permanent(err)
		}
		return "", err
	}

	text := g.clean(resp.Description)
	if text == "" {
		return "", durable.Permanent(fmt.Errorf("%s: %w", g.step, inference.ErrEmptyResponse))
	}

	return g.persist(ctx, params.InstanceID, text)
}
