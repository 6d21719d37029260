package submissions_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/JaimeStill/tagger/internal/submissions"
	"github.com/JaimeStill/tagger/pkg/durable"
	"github.com/JaimeStill/tagger/pkg/storage"
)

type fakeWorkflows struct {
	mu        sync.Mutex
	instances map[string]*durable.Instance
	events    []sentEvent
	createErr error
}

type sentEvent struct {
	id      string
	kind    string
	payload submissions.Decision
}

func newFakeWorkflows() *fakeWorkflows {
	return &fakeWorkflows{instances: make(map[string]*durable.Instance)}
}

func (f *fakeWorkflows) Create(_ context.Context, id string, params any) (*durable.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := params.(*submissions.Params); !ok {
		return nil, errors.New("unexpected params type")
	}
	inst := &durable.Instance{ID: id, Status: durable.StatusQueued}
	f.instances[id] = inst
	return inst, nil
}

func (f *fakeWorkflows) Status(_ context.Context, id string) (*durable.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	inst, ok := f.instances[id]
	if !ok {
		return nil, durable.ErrNotFound
	}
	return inst, nil
}

func (f *fakeWorkflows) SendEvent(_ context.Context, id, kind string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	inst, ok := f.instances[id]
	if !ok {
		return durable.ErrNotFound
	}
	if inst.Status.Terminal() {
		return durable.ErrFinished
	}
	f.events = append(f.events, sentEvent{id: id, kind: kind, payload: payload.(submissions.Decision)})
	return nil
}

// fakeSystem wraps the storage-backed repository for image operations and
// keeps derived fields in memory.
type fakeSystem struct {
	submissions.System
	mu      sync.Mutex
	rows    map[string]*submissions.Submission
	deleted []string
}

func newFakeSystem(store storage.System) *fakeSystem {
	return &fakeSystem{
		System: submissions.New(nil, store, slog.New(slog.DiscardHandler)),
		rows:   make(map[string]*submissions.Submission),
	}
}

func (f *fakeSystem) DeleteImage(ctx context.Context, key string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, key)
	f.mu.Unlock()
	return f.System.DeleteImage(ctx, key)
}

func (f *fakeSystem) Insert(_ context.Context, sub submissions.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[sub.InstanceID]; !ok {
		f.rows[sub.InstanceID] = &sub
	}
	return nil
}

func (f *fakeSystem) Find(_ context.Context, id string) (*submissions.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.rows[id]
	if !ok {
		return nil, submissions.ErrNotFound
	}
	return sub, nil
}

func (f *fakeSystem) Tags(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.rows[id]
	if !ok {
		return "", submissions.ErrNotFound
	}
	if sub.Tags == nil {
		return "", nil
	}
	return *sub.Tags, nil
}

func (f *fakeSystem) AltText(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.rows[id]
	if !ok {
		return "", submissions.ErrNotFound
	}
	if sub.AltText == nil {
		return "", nil
	}
	return *sub.AltText, nil
}

type harness struct {
	mux       *http.ServeMux
	sys       *fakeSystem
	store     *storage.Memory
	workflows *fakeWorkflows
}

func newHarness(maxUploadSize int64) *harness {
	store := storage.NewMemory(slog.New(slog.DiscardHandler))
	sys := newFakeSystem(store)
	workflows := newFakeWorkflows()

	h := submissions.NewHandler(sys, workflows, slog.New(slog.DiscardHandler), maxUploadSize)

	mux := http.NewServeMux()
	group := h.Routes()
	for _, route := range group.Routes {
		mux.HandleFunc(route.Method+" "+group.Prefix+route.Pattern, route.Handler)
	}

	return &harness{mux: mux, sys: sys, store: store, workflows: workflows}
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, field, fileName string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest("POST", "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func upload(t *testing.T, h *harness) submissions.UploadResponse {
	t.Helper()
	rec := h.do(uploadRequest(t, "image", "cat.png", pngBytes(t)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp submissions.UploadResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestUpload(t *testing.T) {
	h := newHarness(1 << 20)

	resp := upload(t, h)

	if resp.ID == "" || !resp.Success {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Details == nil || resp.Details.Status.Terminal() {
		t.Errorf("details = %+v, want non-terminal instance", resp.Details)
	}

	key := "images/" + resp.ID + "/cat.png"
	if ok, _ := h.store.Exists(context.Background(), key); !ok {
		t.Errorf("image not stored at %s", key)
	}
	if ct := h.store.ContentType(key); ct != "image/png" {
		t.Errorf("content type = %q, want image/png", ct)
	}

	rec := h.do(httptest.NewRequest("GET", "/?instanceId="+resp.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var inst durable.Instance
	json.NewDecoder(rec.Body).Decode(&inst)
	if inst.Status.Terminal() {
		t.Errorf("status = %s, want non-terminal", inst.Status)
	}
}

func TestUploadRejections(t *testing.T) {
	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
	}{
		{
			name: "missing image field",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "file", "cat.png", pngBytes(t))
			},
			status: http.StatusBadRequest,
		},
		{
			name: "not an image",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "image", "notes.txt", []byte("plain text"))
			},
			status: http.StatusBadRequest,
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest("POST", "/", strings.NewReader("{}"))
			},
			status: http.StatusBadRequest,
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "image", "big.png", bytes.Repeat([]byte{0}, 3<<20))
			},
			status: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(1 << 20)
			rec := h.do(tt.req(t))
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestUploadRemovesImageWhenWorkflowFails(t *testing.T) {
	h := newHarness(1 << 20)
	h.workflows.createErr = errors.New("journal unavailable")

	rec := h.do(uploadRequest(t, "image", "cat.png", pngBytes(t)))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	if len(h.sys.deleted) != 1 {
		t.Fatalf("deleted = %v, want one key", h.sys.deleted)
	}
	if ok, _ := h.store.Exists(context.Background(), h.sys.deleted[0]); ok {
		t.Errorf("image %s still stored", h.sys.deleted[0])
	}
}

func TestStatusErrors(t *testing.T) {
	h := newHarness(1 << 20)

	if rec := h.do(httptest.NewRequest("GET", "/", nil)); rec.Code != http.StatusBadRequest {
		t.Errorf("missing id: status = %d, want 400", rec.Code)
	}
	if rec := h.do(httptest.NewRequest("GET", "/?instanceId=unknown", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", rec.Code)
	}
}

func TestDerivedFields(t *testing.T) {
	h := newHarness(1 << 20)
	resp := upload(t, h)

	rec := h.do(httptest.NewRequest("GET", "/tags?instanceId="+resp.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("tags before persist: status = %d", rec.Code)
	}
	var tags submissions.TagsResponse
	json.NewDecoder(rec.Body).Decode(&tags)
	if tags.InstanceID != resp.ID || tags.Tags != "" {
		t.Errorf("tags before persist = %+v", tags)
	}

	value := "cat, orange, fur, pet, indoor"
	h.sys.Insert(context.Background(), submissions.Submission{InstanceID: resp.ID, Tags: &value})

	rec = h.do(httptest.NewRequest("GET", "/tags?instanceId="+resp.ID, nil))
	json.NewDecoder(rec.Body).Decode(&tags)
	if tags.Tags != value {
		t.Errorf("tags = %q, want %q", tags.Tags, value)
	}

	rec = h.do(httptest.NewRequest("GET", "/alttext?instanceId="+resp.ID, nil))
	var alt submissions.AltTextResponse
	json.NewDecoder(rec.Body).Decode(&alt)
	if rec.Code != http.StatusOK || alt.AltText != "" {
		t.Errorf("alttext = %d %+v, want empty", rec.Code, alt)
	}

	if rec := h.do(httptest.NewRequest("GET", "/alttext?instanceId=unknown", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", rec.Code)
	}
}

func TestApproval(t *testing.T) {
	h := newHarness(1 << 20)
	resp := upload(t, h)

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return h.do(req)
	}

	rec := post("/approval-for-ai-tagging", `{"instanceId":"`+resp.ID+`","approved":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var ack submissions.ApprovalResponse
	json.NewDecoder(rec.Body).Decode(&ack)
	if !ack.Success {
		t.Error("success = false")
	}

	rec = post("/approval-for-ai-alttext", `{"instanceId":"`+resp.ID+`","approved":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	want := []sentEvent{
		{id: resp.ID, kind: "tag-approval", payload: submissions.Decision{Approved: true}},
		{id: resp.ID, kind: "alttext-approval", payload: submissions.Decision{Approved: false}},
	}
	if len(h.workflows.events) != len(want) {
		t.Fatalf("events = %+v", h.workflows.events)
	}
	for i, ev := range want {
		if h.workflows.events[i] != ev {
			t.Errorf("event %d = %+v, want %+v", i, h.workflows.events[i], ev)
		}
	}

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{`, http.StatusBadRequest},
		{"missing id", `{"approved":true}`, http.StatusBadRequest},
		{"missing approved", `{"instanceId":"` + resp.ID + `"}`, http.StatusBadRequest},
		{"unknown id", `{"instanceId":"nope","approved":true}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := post("/approval-for-ai-tagging", tt.body); rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}

	h.workflows.instances[resp.ID].Status = durable.StatusComplete
	if rec := post("/approval-for-ai-tagging", `{"instanceId":"`+resp.ID+`","approved":true}`); rec.Code != http.StatusBadRequest {
		t.Errorf("finished instance: status = %d, want 400", rec.Code)
	}
}

func TestImage(t *testing.T) {
	h := newHarness(1 << 20)
	resp := upload(t, h)

	if rec := h.do(httptest.NewRequest("GET", "/image?instanceId="+resp.ID, nil)); rec.Code != http.StatusNotFound {
		t.Errorf("before persist: status = %d, want 404", rec.Code)
	}

	h.sys.Insert(context.Background(), submissions.Submission{
		InstanceID:  resp.ID,
		ImageKey:    "images/" + resp.ID + "/cat.png",
		FileName:    "cat.png",
		ContentType: "image/png",
	})

	rec := h.do(httptest.NewRequest("GET", "/image?instanceId="+resp.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), pngBytes(t)) {
		t.Error("image bytes differ")
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{submissions.ErrNotFound, http.StatusNotFound},
		{durable.ErrNotFound, http.StatusNotFound},
		{storage.ErrNotFound, http.StatusNotFound},
		{submissions.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{submissions.ErrInvalidImage, http.StatusBadRequest},
		{durable.ErrFinished, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := submissions.MapHTTPStatus(tt.err); got != tt.want {
			t.Errorf("MapHTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
