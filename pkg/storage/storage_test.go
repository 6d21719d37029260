package storage_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/JaimeStill/tagger/pkg/storage"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory(slog.New(slog.DiscardHandler))

	key := "images/abc/photo.png"
	if err := store.Upload(ctx, key, strings.NewReader("pixels"), "image/png"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	exists, err := store.Exists(ctx, key)
	if err != nil || !exists {
		t.Fatalf("exists: got %v, %v", exists, err)
	}

	rc, err := store.Download(ctx, key)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()

	if string(data) != "pixels" {
		t.Errorf("data: got %q", data)
	}
	if store.ContentType(key) != "image/png" {
		t.Errorf("content type: got %q", store.ContentType(key))
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, key); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
	if _, err := store.Download(ctx, key); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("download after delete: got %v, want ErrNotFound", err)
	}
}

func TestKeyValidation(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory(slog.New(slog.DiscardHandler))

	tests := []struct {
		name string
		key  string
		want error
	}{
		{"empty", "", storage.ErrEmptyKey},
		{"traversal", "images/../secret", storage.ErrInvalidKey},
		{"leading traversal", "../x", storage.ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Upload(ctx, tt.key, strings.NewReader("x"), "")
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	if err := store.Upload(ctx, "images/a..b.png", strings.NewReader("x"), ""); err != nil {
		t.Errorf("dots inside a segment should be allowed: %v", err)
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{storage.ErrNotFound, http.StatusNotFound},
		{storage.ErrEmptyKey, http.StatusBadRequest},
		{storage.ErrInvalidKey, http.StatusBadRequest},
		{errors.New("other"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := storage.MapHTTPStatus(tt.err); got != tt.want {
			t.Errorf("%v: got %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestConfigFinalize(t *testing.T) {
	tests := []struct {
		name    string
		cfg     storage.Config
		wantErr bool
	}{
		{"azure connection string", storage.Config{Azure: storage.AzureConfig{ConnectionString: "UseDevelopmentStorage=true"}}, false},
		{"azure service url", storage.Config{Azure: storage.AzureConfig{ServiceURL: "https://acct.blob.core.windows.net"}}, false},
		{"azure missing auth", storage.Config{}, true},
		{"s3 default chain", storage.Config{Provider: "s3"}, false},
		{"s3 partial keys", storage.Config{Provider: "s3", S3: storage.S3Config{AccessKeyID: "id"}}, true},
		{"memory", storage.Config{Provider: "memory"}, false},
		{"unknown", storage.Config{Provider: "ftp"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Finalize(nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("err: got %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv("TEST_STORAGE_PROVIDER", "s3")
	t.Setenv("TEST_STORAGE_ENDPOINT", "http://localhost:9000")
	t.Setenv("TEST_STORAGE_PATH_STYLE", "true")

	cfg := storage.Config{}
	env := &storage.Env{
		Provider:     "TEST_STORAGE_PROVIDER",
		Endpoint:     "TEST_STORAGE_ENDPOINT",
		UsePathStyle: "TEST_STORAGE_PATH_STYLE",
	}
	if err := cfg.Finalize(env); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if cfg.Provider != "s3" || cfg.S3.Endpoint != "http://localhost:9000" || !cfg.S3.UsePathStyle {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.Container != "images" {
		t.Errorf("container default: got %q", cfg.Container)
	}
}

func TestNewMemoryProvider(t *testing.T) {
	cfg := storage.Config{Provider: "memory"}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatal(err)
	}

	sys, err := storage.New(context.Background(), &cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := sys.(*storage.Memory); !ok {
		t.Errorf("got %T, want *storage.Memory", sys)
	}
}
