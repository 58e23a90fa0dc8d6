package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/vecshop/internal/domain"
	"github.com/kailas-cloud/vecshop/internal/domain/product"
	"github.com/kailas-cloud/vecshop/internal/logger"
	"github.com/kailas-cloud/vecshop/internal/metrics"
)

// Defaults.
const (
	DefaultBatchSize     = 100
	DefaultWorkers       = 4
	DefaultUpsertRetries = 2
	DefaultRetryBackoff  = 200 * time.Millisecond
)

// Failure reasons reported in Result.Failed and the rows_failed metric.
const (
	ReasonInvalidRow  = "invalid_row"
	ReasonEmbedText   = "embed_text"
	ReasonBatchUpsert = "batch_upsert"
)

// imageExtensions are probed in order for <images_dir>/<id>.<ext>.
var imageExtensions = []struct {
	ext         string
	contentType string
}{
	{".jpg", "image/jpeg"},
	{".jpeg", "image/jpeg"},
	{".png", "image/png"},
}

// Config tunes an ingest run.
type Config struct {
	// Images enables image embeddings when set.
	Images ImageSource
	// BatchSize defaults to DefaultBatchSize.
	BatchSize int
	// Workers defaults to DefaultWorkers.
	Workers int
	// Recreate drops both product indexes before ingesting.
	Recreate bool
	// UpsertRetries defaults to DefaultUpsertRetries; negative disables retries.
	UpsertRetries int
	// RetryBackoff is the Fibonacci base delay between upsert attempts.
	RetryBackoff time.Duration
}

// Result summarizes an ingest run.
type Result struct {
	Read         int64
	Stored       int64
	Failed       map[string]int64
	WithoutImage int64
	ImageFailed  int64
	Duration     time.Duration
}

// FailedTotal sums failures over all reasons.
func (r *Result) FailedTotal() int64 {
	var n int64
	for _, v := range r.Failed {
		n += v
	}
	return n
}

// Service loads a product catalog into the vector store.
type Service struct {
	embed   Embedder
	catalog Catalog
	cfg     Config
}

// New creates an ingest service.
func New(embed Embedder, catalog Catalog, cfg Config) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	switch {
	case cfg.UpsertRetries == 0:
		cfg.UpsertRetries = DefaultUpsertRetries
	case cfg.UpsertRetries < 0:
		cfg.UpsertRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	return &Service{embed: embed, catalog: catalog, cfg: cfg}
}

type tally struct {
	mu           sync.Mutex
	read         atomic.Int64
	stored       atomic.Int64
	withoutImage atomic.Int64
	imageFailed  atomic.Int64
	failed       map[string]int64
}

func (t *tally) fail(reason string, n int) {
	t.mu.Lock()
	t.failed[reason] += int64(n)
	t.mu.Unlock()
	metrics.IngestRowsFailed.WithLabelValues(reason).Add(float64(n))
}

// Run reads the catalog CSV, embeds every row and upserts products in batches.
// Row level failures are counted; only setup, read and cancellation errors abort the run.
func (s *Service) Run(ctx context.Context, in io.Reader) (Result, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	rows, err := newRowReader(in)
	if err != nil {
		return Result{}, err
	}

	if s.cfg.Recreate {
		if err := s.catalog.DropIndexes(ctx); err != nil {
			return Result{}, fmt.Errorf("drop indexes: %w", err)
		}
	}
	if err := s.catalog.EnsureIndexes(ctx); err != nil {
		return Result{}, fmt.Errorf("ensure indexes: %w", err)
	}

	t := &tally{failed: make(map[string]int64)}

	pending := make(chan Row, s.cfg.Workers*2)
	embedded := make(chan product.Product, s.cfg.BatchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(pending)
		return s.produce(gctx, rows, pending, t)
	})
	g.Go(func() error {
		defer close(embedded)
		var workers errgroup.Group
		for range s.cfg.Workers {
			workers.Go(func() error {
				for row := range pending {
					p, ok := s.embedRow(gctx, &row, t)
					if !ok {
						continue
					}
					select {
					case embedded <- p:
					case <-gctx.Done():
						return nil
					}
				}
				return nil
			})
		}
		return workers.Wait()
	})
	g.Go(func() error {
		s.write(gctx, embedded, t)
		return nil
	})
	readErr := g.Wait()

	res := Result{
		Read:         t.read.Load(),
		Stored:       t.stored.Load(),
		Failed:       t.failed,
		WithoutImage: t.withoutImage.Load(),
		ImageFailed:  t.imageFailed.Load(),
		Duration:     time.Since(start),
	}
	if readErr != nil {
		return res, readErr
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("ingest interrupted: %w", err)
	}

	log.Info("ingest finished",
		zap.Int64("read", res.Read),
		zap.Int64("stored", res.Stored),
		zap.Int64("failed", res.FailedTotal()),
		zap.Int64("without_image", res.WithoutImage),
		zap.Int64("image_failed", res.ImageFailed),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func (s *Service) produce(ctx context.Context, rows *rowReader, out chan<- Row, t *tally) error {
	log := logger.FromContext(ctx)
	for {
		row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		var rowErr *RowError
		if errors.As(err, &rowErr) {
			t.read.Add(1)
			t.fail(ReasonInvalidRow, 1)
			log.Warn("skip malformed catalog line", zap.Int("line", rowErr.Line), zap.Error(rowErr.Err))
			continue
		}
		if err != nil {
			return err
		}

		t.read.Add(1)
		select {
		case out <- row:
		case <-ctx.Done():
			return nil
		}
	}
}

// embedRow builds a product for one row. ok is false when the row is skipped.
func (s *Service) embedRow(ctx context.Context, row *Row, t *tally) (product.Product, bool) {
	log := logger.FromContext(ctx).With(zap.String("product_id", row.ID), zap.Int("line", row.Line))

	p, err := product.New(row.ID, row.DisplayName, row.MasterCategory, row.SubCategory, row.BaseColour)
	if err != nil {
		t.fail(ReasonInvalidRow, 1)
		log.Warn("skip invalid catalog row", zap.Error(err))
		return product.Product{}, false
	}
	text := row.EmbeddingText()
	if text == "" {
		t.fail(ReasonInvalidRow, 1)
		log.Warn("skip catalog row without text")
		return product.Product{}, false
	}

	vec, err := s.embed.EmbedText(ctx, text)
	if err != nil {
		if ctx.Err() == nil {
			t.fail(ReasonEmbedText, 1)
			log.Warn("text embedding failed", zap.Error(err))
		}
		return product.Product{}, false
	}
	p = p.WithTextEmbedding(vec)

	if s.cfg.Images == nil {
		t.withoutImage.Add(1)
		return p, true
	}

	data, contentType, err := s.cfg.Images.Image(ctx, p.ID())
	if err != nil {
		t.withoutImage.Add(1)
		if !errors.Is(err, os.ErrNotExist) && ctx.Err() == nil {
			log.Warn("read product image", zap.Error(err))
		}
		return p, true
	}

	img, err := s.embed.EmbedImage(ctx, data, contentType)
	if err != nil {
		t.imageFailed.Add(1)
		log.Warn("image embedding failed, storing product without image vector", zap.Error(err))
		return p, true
	}
	return p.WithImageEmbedding(img), true
}

// write batches embedded products into the catalog until in is closed.
func (s *Service) write(ctx context.Context, in <-chan product.Product, t *tally) {
	batch := make([]product.Product, 0, s.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.flush(ctx, batch, t)
		batch = batch[:0]
	}
	for p := range in {
		batch = append(batch, p)
		if len(batch) >= s.cfg.BatchSize {
			flush()
		}
	}
	flush()
}

func (s *Service) flush(ctx context.Context, batch []product.Product, t *tally) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	backoff := retry.WithMaxRetries(uint64(s.cfg.UpsertRetries), retry.NewFibonacci(s.cfg.RetryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.catalog.Upsert(ctx, batch); err != nil {
			if ctx.Err() != nil {
				return err
			}
			logger.FromContext(ctx).Debug("batch upsert attempt failed", zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	metrics.IngestBatchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		t.fail(ReasonBatchUpsert, len(batch))
		logger.FromContext(ctx).Error("batch upsert failed",
			zap.Int("products", len(batch)), zap.String("first_id", batch[0].ID()), zap.Error(err))
		return
	}

	stored := t.stored.Add(int64(len(batch)))
	metrics.IngestRowsProcessed.Add(float64(len(batch)))
	if stored%1000 < int64(len(batch)) {
		logger.FromContext(ctx).Info("ingest progress", zap.Int64("stored", stored))
	}
}

// DirImages reads product images from a local directory as <dir>/<id>.{jpg,jpeg,png}.
type DirImages string

// Image implements ImageSource.
func (d DirImages) Image(_ context.Context, id string) ([]byte, string, error) {
	return readImage(string(d), id)
}

// readImage returns an error wrapping os.ErrNotExist when no image exists.
func readImage(dir, id string) ([]byte, string, error) {
	for _, ie := range imageExtensions {
		path := filepath.Join(dir, id+ie.ext)
		data, err := os.ReadFile(filepath.Clean(path))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("read %s: %w", path, err)
		}
		if len(data) == 0 {
			return nil, "", fmt.Errorf("read %s: %w", path, domain.ErrEmptyInput)
		}
		return data, ie.contentType, nil
	}
	return nil, "", fmt.Errorf("no image for %s in %s: %w", strings.TrimSpace(id), dir, os.ErrNotExist)
}
