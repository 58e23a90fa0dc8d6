package vecshop

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/vecshop/internal/domain"
	"github.com/kailas-cloud/vecshop/internal/domain/product"
	"github.com/kailas-cloud/vecshop/internal/domain/search/match"
	healthuc "github.com/kailas-cloud/vecshop/internal/usecase/health"
)

// --- Mocks ---

type mockSearchUC struct {
	textFn  func(ctx context.Context, text string, topN int) ([]match.Match, error)
	imageFn func(ctx context.Context, data []byte, contentType string, topN int) ([]match.Match, error)
}

func (m *mockSearchUC) SearchByText(ctx context.Context, text string, topN int) ([]match.Match, error) {
	return m.textFn(ctx, text, topN)
}

func (m *mockSearchUC) SearchByImage(ctx context.Context, data []byte, contentType string, topN int) ([]match.Match, error) {
	return m.imageFn(ctx, data, contentType, topN)
}

type mockHealthUC struct {
	report healthuc.Report
}

func (m *mockHealthUC) Check(context.Context) healthuc.Report { return m.report }

type mockTextEmbedder struct {
	fn func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockTextEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return m.fn(ctx, text)
}

type mockImageEmbedder struct {
	dims int
}

func (m *mockImageEmbedder) EmbedImage(context.Context, []byte, string) ([]float32, error) {
	return make([]float32, m.dims), nil
}

type mockCatalog struct {
	products []product.Product
}

func (m *mockCatalog) EnsureIndexes(context.Context) error { return nil }
func (m *mockCatalog) DropIndexes(context.Context) error   { return nil }

func (m *mockCatalog) Upsert(_ context.Context, products []product.Product) error {
	m.products = append(m.products, products...)
	return nil
}

func newTestClient(t *testing.T, search searchUseCase, opts ...Option) *Client {
	t.Helper()
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}
	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		t.Fatalf("observer: %v", err)
	}
	return &Client{searchSvc: search, obs: obs}
}

// --- Tests ---

func TestNew_NoStore(t *testing.T) {
	_, err := New(context.Background())
	if err == nil {
		t.Fatal("expected error when no store configured")
	}
}

func TestCreateStore_UnknownDriver(t *testing.T) {
	cfg := &clientConfig{driver: "unknown", addrs: []string{"localhost:1234"}}
	if _, err := createStore(cfg); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestClientOptions(t *testing.T) {
	cfg := &clientConfig{}
	for _, o := range []Option{
		WithValkey("localhost:6379", "secret"),
		WithStandalone(),
		WithKeyPrefix("shop:"),
		WithEmbeddingService("http://embed:8000"),
		WithTextDimensions(768),
		WithHNSW(32, 400),
		WithSlowThreshold(time.Second),
		WithMaxTopN(50),
	} {
		o.apply(cfg)
	}

	if cfg.driver != "valkey" || cfg.addrs[0] != "localhost:6379" || cfg.password != "secret" {
		t.Errorf("unexpected connection config: %+v", cfg)
	}
	if !cfg.standalone || cfg.keyPrefix != "shop:" || cfg.embeddingURL != "http://embed:8000" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.textDimensions != 768 || cfg.hnswM != 32 || cfg.hnswEFConstruct != 400 {
		t.Errorf("unexpected index config: %+v", cfg)
	}
	if cfg.slowThreshold != time.Second || cfg.maxTopN != 50 {
		t.Errorf("unexpected search config: %+v", cfg)
	}

	WithSQLite("/tmp/shop.db").apply(cfg)
	if cfg.driver != "sqlite" || cfg.sqlitePath != "/tmp/shop.db" {
		t.Errorf("unexpected sqlite config: %+v", cfg)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &clientConfig{}
	applyDefaults(cfg)

	if cfg.keyPrefix != defaultKeyPrefix || cfg.textDimensions != 384 || cfg.imageDimensions != 512 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.maxTopN != 500 || cfg.embeddingTimeout != 30*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestSearch(t *testing.T) {
	search := &mockSearchUC{textFn: func(_ context.Context, text string, topN int) ([]match.Match, error) {
		if text != "navy shirt" || topN != 2 {
			t.Errorf("unexpected args %q %d", text, topN)
		}
		return []match.Match{
			match.New("1", "Navy Shirt", "Apparel", "Topwear", "Navy Blue", 0.9),
			match.New("2", "Blue Shirt", "Apparel", "Topwear", "Blue", 0.7),
		}, nil
	}}
	c := newTestClient(t, search)

	products, err := c.Search(context.Background(), "navy shirt", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(products) != 2 || products[0].ID != "1" || products[0].BaseColour != "Navy Blue" {
		t.Errorf("unexpected products: %+v", products)
	}
	if products[0].Similarity < products[1].Similarity {
		t.Error("expected descending similarity")
	}
}

func TestSearch_ErrorKindsPreserved(t *testing.T) {
	search := &mockSearchUC{textFn: func(context.Context, string, int) ([]match.Match, error) {
		return nil, &domain.DimensionMismatchError{Expected: 384, Actual: 768}
	}}
	c := newTestClient(t, search)

	_, err := c.Search(context.Background(), "shirt", 5)
	if !errors.Is(err, ErrEmbeddingDimensionMismatch) {
		t.Fatalf("expected ErrEmbeddingDimensionMismatch, got %v", err)
	}
	var dim *DimensionMismatchError
	if !errors.As(err, &dim) || dim.Actual != 768 {
		t.Errorf("expected DimensionMismatchError, got %v", err)
	}
	if errors.Is(err, ErrEmbeddingFailed) {
		t.Error("dimension mismatch must stay distinct from ErrEmbeddingFailed")
	}
}

func TestSearchImage(t *testing.T) {
	search := &mockSearchUC{imageFn: func(_ context.Context, data []byte, ct string, topN int) ([]match.Match, error) {
		if len(data) != 3 || ct != "image/png" || topN != 10 {
			t.Errorf("unexpected args %d %q %d", len(data), ct, topN)
		}
		return nil, nil
	}}
	c := newTestClient(t, search)

	products, err := c.SearchImage(context.Background(), []byte{1, 2, 3}, "image/png", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(products) != 0 {
		t.Errorf("expected no products, got %d", len(products))
	}
}

func TestObserver_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	search := &mockSearchUC{textFn: func(context.Context, string, int) ([]match.Match, error) {
		return nil, domain.ErrStoreQueryFailed
	}}
	c := newTestClient(t, search, WithPrometheus(reg))

	_, _ = c.Search(context.Background(), "shirt", 5)

	got := testutil.ToFloat64(c.obs.metrics.operations.WithLabelValues("search", "error"))
	if got != 1 {
		t.Errorf("expected 1 failed search, got %v", got)
	}
}

func TestObserver_ReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := newObserver(nil, reg); err != nil {
		t.Fatal(err)
	}
	if _, err := newObserver(nil, reg); err != nil {
		t.Fatalf("second registration must reuse collectors: %v", err)
	}
}

func TestObserver_EmitsSearchEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	reg := prometheus.NewRegistry()
	obs, err := newObserver(logger, reg)
	if err != nil {
		t.Fatal(err)
	}

	obs.Emit(context.Background(), domain.Event{
		Type: domain.EventSearchSlow, SearchID: "s-1", Modality: domain.ModalityText, TopN: 5,
	})
	obs.Emit(context.Background(), domain.Event{
		Type: domain.EventImageNoMatch, SearchID: "s-2", Modality: domain.ModalityImage,
	})

	out := buf.String()
	if !strings.Contains(out, "slow search detected") || !strings.Contains(out, "search_id=s-1") {
		t.Errorf("missing slow search log: %s", out)
	}
	if !strings.Contains(out, "level=WARN") {
		t.Errorf("expected warn level: %s", out)
	}
	got := testutil.ToFloat64(obs.metrics.events.WithLabelValues("image_no_match", "image"))
	if got != 1 {
		t.Errorf("expected 1 image_no_match event, got %v", got)
	}
}

func TestObserver_Nil(t *testing.T) {
	var obs *observer
	obs.observe("search", time.Now(), nil)
	obs.Emit(context.Background(), domain.Event{})
}

func TestHealth(t *testing.T) {
	c := &Client{healthSvc: &mockHealthUC{report: healthuc.Report{
		Status: healthuc.Degraded,
		Checks: map[string]healthuc.CheckResult{
			healthuc.CheckDatabase:  healthuc.CheckOK,
			healthuc.CheckEmbedding: healthuc.CheckError,
		},
		Products: map[domain.Modality]int{domain.ModalityText: 44000},
	}}}

	h := c.Health(context.Background())
	if h.Status != "degraded" || h.Checks["embedding"] != "error" || h.Products["text"] != 44000 {
		t.Errorf("unexpected health: %+v", h)
	}
}

func TestBuildEmbedder_CustomProviders(t *testing.T) {
	cfg := &clientConfig{
		textEmbedder: &mockTextEmbedder{fn: func(context.Context, string) ([]float32, error) {
			return []float32{0.1, 0.2}, nil
		}},
		imageEmbedder: &mockImageEmbedder{dims: 511},
	}
	applyDefaults(cfg)
	emb := buildEmbedder(cfg)

	vec, err := emb.EmbedText(context.Background(), "shirt")
	if err != nil || len(vec) != 2 {
		t.Fatalf("unexpected text result %v %v", vec, err)
	}
	_, err = emb.EmbedImage(context.Background(), []byte{1}, "image/jpeg")
	if !errors.Is(err, ErrEmbeddingDimensionMismatch) {
		t.Errorf("expected dimension mismatch for 511-dim image vector, got %v", err)
	}
}

func TestBuildEmbedder_NoProvider(t *testing.T) {
	cfg := &clientConfig{}
	applyDefaults(cfg)

	_, err := buildEmbedder(cfg).EmbedText(context.Background(), "shirt")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestImageAdapter_EmptyVector(t *testing.T) {
	a := &imageAdapter{inner: &mockImageEmbedder{dims: 0}}
	_, err := a.EmbedImage(context.Background(), []byte{1}, "image/jpeg")

	var dim *DimensionMismatchError
	if !errors.As(err, &dim) || dim.Expected != 512 || dim.Actual != 0 {
		t.Errorf("expected 512/0 dimension mismatch, got %v", err)
	}
}

func TestIngest(t *testing.T) {
	cfg := &clientConfig{textEmbedder: &mockTextEmbedder{fn: func(context.Context, string) ([]float32, error) {
		return []float32{0.5}, nil
	}}}
	applyDefaults(cfg)
	cat := &mockCatalog{}
	obs, _ := newObserver(nil, nil)
	c := &Client{embedder: buildEmbedder(cfg), catalog: cat, obs: obs}

	csv := "id,productDisplayName,masterCategory,subCategory,baseColour,text_for_embedding\n" +
		"1,Red Shoes,Footwear,Shoes,Red,red running shoes\n"
	res, err := c.Ingest(context.Background(), strings.NewReader(csv), IngestOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stored != 1 || len(cat.products) != 1 || cat.products[0].ID() != "1" {
		t.Errorf("unexpected result: %+v", res)
	}
}
