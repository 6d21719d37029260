package submissions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"github.com/JaimeStill/tagger/internal/prompts"
	"github.com/JaimeStill/tagger/pkg/handlers"
	"github.com/JaimeStill/tagger/pkg/routes"
)

// multipart overhead allowed on top of the image itself
const formOverhead = 1 << 20

// Handler provides HTTP endpoints for submission operations.
type Handler struct {
	sys           System
	workflows     Workflows
	logger        *slog.Logger
	maxUploadSize int64
}

// NewHandler creates a Handler with the given system, workflows, logger, and upload size limit.
func NewHandler(sys System, workflows Workflows, logger *slog.Logger, maxUploadSize int64) *Handler {
	return &Handler{
		sys:           sys,
		workflows:     workflows,
		logger:        logger.With("handler", "submissions"),
		maxUploadSize: maxUploadSize,
	}
}

// Routes returns the route group definition for submission endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Routes: []routes.Route{
			{Method: "POST", Pattern: "/{$}", Handler: h.Upload},
			{Method: "GET", Pattern: "/{$}", Handler: h.Status},
			{Method: "GET", Pattern: "/tags", Handler: h.Tags},
			{Method: "GET", Pattern: "/alttext", Handler: h.AltText},
			{Method: "GET", Pattern: "/image", Handler: h.Image},
			{Method: "POST", Pattern: "/approval-for-ai-tagging", Handler: h.approval(prompts.StageTags)},
			{Method: "POST", Pattern: "/approval-for-ai-alttext", Handler: h.approval(prompts.StageAltText)},
		},
	}
}

// Upload accepts a multipart form with an image field, stores the image, and
// starts its workflow.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	limit := h.maxUploadSize + formOverhead
	if r.ContentLength > limit {
		handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, ErrFileTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, ErrFileTooLarge)
			return
		}
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrMissingImage)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrMissingImage)
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadSize {
		handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, ErrFileTooLarge)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrMissingImage)
		return
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: %v", ErrInvalidImage, err))
		return
	}

	id := uuid.New().String()

	params, err := h.sys.StoreImage(r.Context(), StoreCommand{
		InstanceID:  id,
		FileName:    header.Filename,
		ContentType: "image/" + format,
		Data:        data,
		Width:       cfg.Width,
		Height:      cfg.Height,
	})
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	inst, err := h.workflows.Create(r.Context(), id, params)
	if err != nil {
		if delErr := h.sys.DeleteImage(r.Context(), params.ImageKey); delErr != nil {
			h.logger.Warn("compensating image delete failed", "key", params.ImageKey, "error", delErr)
		}
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	h.logger.Info("submission created", "instance_id", id, "file_name", header.Filename, "format", format)

	handlers.RespondJSON(w, http.StatusCreated, UploadResponse{
		ID:      id,
		Details: inst,
		Success: true,
		Message: "image uploaded; workflow started",
	})
}

// Status returns the workflow instance for the instanceId query parameter.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := h.instanceID(w, r)
	if !ok {
		return
	}

	inst, err := h.workflows.Status(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, inst)
}

// Tags returns the persisted tags for the instanceId query parameter.
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	id, ok := h.instanceID(w, r)
	if !ok {
		return
	}

	tags, err := h.derived(r, id, h.sys.Tags)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, TagsResponse{InstanceID: id, Tags: tags})
}

// AltText returns the persisted alt text for the instanceId query parameter.
func (h *Handler) AltText(w http.ResponseWriter, r *http.Request) {
	id, ok := h.instanceID(w, r)
	if !ok {
		return
	}

	altText, err := h.derived(r, id, h.sys.AltText)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, AltTextResponse{InstanceID: id, AltText: altText})
}

// Image streams the stored image for the instanceId query parameter.
func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	id, ok := h.instanceID(w, r)
	if !ok {
		return
	}

	sub, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	data, err := h.sys.Image(r.Context(), sub.ImageKey)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	w.Header().Set("Content-Type", sub.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", sub.FileName))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) approval(stage prompts.Stage) http.HandlerFunc {
	kind := stage.EventKind()

	return func(w http.ResponseWriter, r *http.Request) {
		var req ApprovalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("decode approval: %w", err))
			return
		}
		if req.InstanceID == "" {
			handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrMissingInstanceID)
			return
		}
		if req.Approved == nil {
			handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrMissingApproval)
			return
		}

		err := h.workflows.SendEvent(r.Context(), req.InstanceID, kind, Decision{Approved: *req.Approved})
		if err != nil {
			handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
			return
		}

		h.logger.Info("approval delivered", "instance_id", req.InstanceID, "kind", kind, "approved", *req.Approved)
		handlers.RespondJSON(w, http.StatusOK, ApprovalResponse{Success: true})
	}
}

func (h *Handler) instanceID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("instanceId")
	if id == "" {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrMissingInstanceID)
		return "", false
	}
	return id, true
}

// derived confirms the instance exists, then reads a derived field. A
// submission not yet persisted by its workflow reads as empty.
func (h *Handler) derived(r *http.Request, id string, read func(ctx context.Context, id string) (string, error)) (string, error) {
	if _, err := h.workflows.Status(r.Context(), id); err != nil {
		return "", err
	}

	text, err := read(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return text, err
}
