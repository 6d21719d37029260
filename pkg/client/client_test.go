package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JaimeStill/tagger/pkg/client"
	"github.com/JaimeStill/tagger/pkg/poller"
)

var _ poller.Source = (*client.Client)(nil)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/{$}", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("image")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"image field required"}`)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "cat.png" || string(data) != "png" {
			t.Errorf("upload: got %q %q", header.Filename, data)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":"abc","details":{"id":"abc","status":"queued"},"success":true,"message":"created"}`)
	})
	mux.HandleFunc("GET /api/{$}", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("instanceId") != "abc" {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":"instance not found"}`)
			return
		}
		io.WriteString(w, `{"id":"abc","status":"waiting","stage":"awaiting_tag_approval"}`)
	})
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"instanceId":"abc","tags":"cat, orange"}`)
	})
	mux.HandleFunc("GET /api/alttext", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"instanceId":"abc","altText":"An orange cat."}`)
	})
	mux.HandleFunc("POST /api/approval-for-ai-tagging", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			InstanceID string `json:"instanceId"`
			Approved   *bool  `json:"approved"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.InstanceID != "abc" || body.Approved == nil || !*body.Approved {
			t.Errorf("approval body: %+v", body)
		}
		io.WriteString(w, `{"success":true}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestUpload(t *testing.T) {
	srv := newServer(t)
	c := client.New(srv.URL+"/api/", client.WithHTTPClient(srv.Client()))

	res, err := c.Upload(context.Background(), "cat.png", strings.NewReader("png"))
	if err != nil {
		t.Fatal(err)
	}
	if res.ID != "abc" || !res.Success || res.Details == nil || res.Details.Status != "queued" {
		t.Errorf("result: %+v", res)
	}
}

func TestStatusAndDerivedFields(t *testing.T) {
	srv := newServer(t)
	c := client.New(srv.URL + "/api")
	ctx := context.Background()

	inst, err := c.Status(ctx, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if inst.Status != "waiting" || inst.Stage != "awaiting_tag_approval" {
		t.Errorf("status: %+v", inst)
	}

	tags, err := c.Tags(ctx, "abc")
	if err != nil || tags != "cat, orange" {
		t.Errorf("tags: %q %v", tags, err)
	}

	alt, err := c.AltText(ctx, "abc")
	if err != nil || alt != "An orange cat." {
		t.Errorf("alt text: %q %v", alt, err)
	}
}

func TestStatusNotFound(t *testing.T) {
	srv := newServer(t)
	c := client.New(srv.URL + "/api")

	_, err := c.Status(context.Background(), "missing")

	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %T %v, want *APIError", err, err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "instance not found" {
		t.Errorf("api error: %+v", apiErr)
	}
}

func TestApprove(t *testing.T) {
	srv := newServer(t)
	c := client.New(srv.URL + "/api")

	if err := c.Approve(context.Background(), "abc", client.StageTags, true); err != nil {
		t.Fatal(err)
	}
	if err := c.Approve(context.Background(), "abc", "colors", true); err == nil {
		t.Error("expected unknown stage error")
	}
}
