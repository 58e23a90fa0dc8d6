package embedsvc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kailas-cloud/vecshop/internal/domain"
	"github.com/kailas-cloud/vecshop/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

func newTestClient(url string) *Client {
	return NewClient(Config{BaseURL: url, HealthPath: "/health"})
}

func vectorJSON(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "0.5"
	}
	return `{"embedding": [` + strings.Join(parts, ",") + `]}`
}

func TestEmbedText_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/embed/text" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type: %s", ct)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["text"] != "red shoes" {
			t.Errorf("unexpected text: %q", body["text"])
		}
		_, _ = io.WriteString(w, `{"embedding": [[0.1, 0.2], [0.3]]}`)
	}))
	defer server.Close()

	vec, err := newTestClient(server.URL).EmbedText(context.Background(), "red shoes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := domain.Vector{0.1, 0.2, 0.3}
	if len(vec) != len(want) {
		t.Fatalf("expected %v, got %v", want, vec)
	}
	for i := range want {
		if vec[i] != want[i] {
			t.Errorf("vec[%d] = %v, want %v", i, vec[i], want[i])
		}
	}
}

func TestEmbedText_NoDimensionGuard(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, vectorJSON(384))
	}))
	defer server.Close()

	vec, err := newTestClient(server.URL).EmbedText(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec.Dimensions() != 384 {
		t.Errorf("expected 384 dims, got %d", vec.Dimensions())
	}
}

func TestEmbedText_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "model loading")
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).EmbedText(context.Background(), "q")

	var pe *domain.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
	if pe.Status != http.StatusServiceUnavailable || pe.Body != "model loading" {
		t.Errorf("unexpected provider error: %+v", pe)
	}
	if !errors.Is(err, domain.ErrEmbeddingFailed) {
		t.Error("provider error should match ErrEmbeddingFailed")
	}
}

func TestEmbedText_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(url).EmbedText(context.Background(), "q")
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestEmbedText_MalformedResponse(t *testing.T) {
	tests := map[string]string{
		"not json":      "<html>oops</html>",
		"missing field": `{"vector": [1, 2]}`,
		"null field":    `{"embedding": null}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, body)
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).EmbedText(context.Background(), "q")
			if !errors.Is(err, domain.ErrMalformedResponse) {
				t.Fatalf("expected ErrMalformedResponse, got %v", err)
			}
		})
	}
}

func TestEmbedText_InvalidPayload(t *testing.T) {
	tests := map[string]string{
		"string leaf":    `{"embedding": [1.0, "x"]}`,
		"object":         `{"embedding": {"a": 1}}`,
		"scalar":         `{"embedding": 3}`,
		"float overflow": `{"embedding": [1e300]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, body)
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).EmbedText(context.Background(), "q")
			if !errors.Is(err, domain.ErrInvalidEmbeddingPayload) {
				t.Fatalf("expected ErrInvalidEmbeddingPayload, got %v", err)
			}
		})
	}
}

func TestEmbedImage_MultipartShape(t *testing.T) {
	image := []byte{0xff, 0xd8, 0xff, 0xe0}

	tests := []struct {
		name        string
		contentType string
		wantType    string
	}{
		{"declared", "image/png", "image/png"},
		{"empty", "", domain.DefaultContentType},
		{"blank", "   ", domain.DefaultContentType},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/embed/image" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				file, header, err := r.FormFile("file")
				if err != nil {
					t.Fatalf("missing file part: %v", err)
				}
				defer file.Close()
				if header.Filename != "upload.jpg" {
					t.Errorf("unexpected filename: %s", header.Filename)
				}
				if got := header.Header.Get("Content-Type"); got != tc.wantType {
					t.Errorf("unexpected part content type: %s", got)
				}
				data, _ := io.ReadAll(file)
				if string(data) != string(image) {
					t.Errorf("unexpected part body: %v", data)
				}
				_, _ = io.WriteString(w, vectorJSON(512))
			}))
			defer server.Close()

			vec, err := newTestClient(server.URL).EmbedImage(context.Background(), image, tc.contentType)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if vec.Dimensions() != 512 {
				t.Errorf("expected 512 dims, got %d", vec.Dimensions())
			}
		})
	}
}

func TestEmbedImage_ForwardsUploadFilename(t *testing.T) {
	tests := []struct {
		name     string
		attached string
		want     string
	}{
		{"original name", "red-sneaker.png", "red-sneaker.png"},
		{"client path stripped", "C:\\photos\\boot.jpg", "boot.jpg"},
		{"blank falls back", "  ", "upload.jpg"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got atomic.Value
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, header, err := r.FormFile("file")
				if err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				got.Store(header.Filename)
				_, _ = io.WriteString(w, vectorJSON(512))
			}))
			defer server.Close()

			ctx := domain.WithUploadFilename(context.Background(), tc.attached)
			if _, err := newTestClient(server.URL).EmbedImage(ctx, []byte{1, 2}, "image/png"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Load() != tc.want {
				t.Errorf("expected filename %q, got %v", tc.want, got.Load())
			}
		})
	}
}

func TestEmbedImage_DimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, vectorJSON(511))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).EmbedImage(context.Background(), []byte{1}, "image/jpeg")

	var dm *domain.DimensionMismatchError
	if !errors.As(err, &dm) {
		t.Fatalf("expected *DimensionMismatchError, got %v", err)
	}
	if dm.Expected != 512 || dm.Actual != 511 {
		t.Errorf("unexpected mismatch: %+v", dm)
	}
	if errors.Is(err, domain.ErrEmbeddingFailed) {
		t.Error("dimension mismatch must stay distinct from ErrEmbeddingFailed")
	}
}

func TestEmbedImage_EmptyInputMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).EmbedImage(context.Background(), nil, "image/jpeg")
	if !errors.Is(err, domain.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no provider call, got %d", calls.Load())
	}
}

func TestHealthCheck(t *testing.T) {
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(status)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status = http.StatusInternalServerError
	if err := c.HealthCheck(context.Background()); !errors.Is(err, domain.ErrProviderError) {
		t.Fatalf("expected ErrProviderError, got %v", err)
	}

	if err := NewClient(Config{BaseURL: server.URL}).HealthCheck(context.Background()); err != nil {
		t.Fatalf("expected no-op without health path, got %v", err)
	}
}

func TestEmbedText_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, vectorJSON(2))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(server.URL).EmbedText(ctx, "q")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
}

func TestEmbedText_EmptyEmbeddingIsZeroLength(t *testing.T) {
	for _, body := range []string{`{"embedding": []}`, `{"embedding": [[]]}`} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, body)
		}))

		vec, err := newTestClient(server.URL).EmbedText(context.Background(), "q")
		server.Close()
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", body, err)
		}
		if vec.Dimensions() != 0 {
			t.Errorf("%s: expected zero-length vector, got %d", body, vec.Dimensions())
		}
	}
}

func TestEmbedImage_EmptyEmbeddingIsDimensionMismatch(t *testing.T) {
	for _, body := range []string{`{"embedding": []}`, `{"embedding": [[]]}`} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, body)
		}))

		_, err := newTestClient(server.URL).EmbedImage(context.Background(), []byte{1}, "image/jpeg")
		server.Close()

		var dm *domain.DimensionMismatchError
		if !errors.As(err, &dm) {
			t.Fatalf("%s: expected *DimensionMismatchError, got %v", body, err)
		}
		if dm.Expected != 512 || dm.Actual != 0 {
			t.Errorf("%s: unexpected mismatch: %+v", body, dm)
		}
		if errors.Is(err, domain.ErrInvalidEmbeddingPayload) {
			t.Errorf("%s: empty embedding must not be reported as an invalid payload", body)
		}
	}
}
