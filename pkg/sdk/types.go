package vecshop

import (
	"time"

	"github.com/kailas-cloud/vecshop/internal/domain/search/match"
	ingestuc "github.com/kailas-cloud/vecshop/internal/usecase/ingest"
)

// Product is a ranked search hit. Similarity is 1 - Euclidean distance.
type Product struct {
	ID             string
	DisplayName    string
	MasterCategory string
	SubCategory    string
	BaseColour     string
	Similarity     float64
}

func productsFromMatches(matches []match.Match) []Product {
	out := make([]Product, len(matches))
	for i := range matches {
		m := &matches[i]
		out[i] = Product{
			ID:             m.ProductID(),
			DisplayName:    m.DisplayName(),
			MasterCategory: m.Category(),
			SubCategory:    m.SubCategory(),
			BaseColour:     m.Colour(),
			Similarity:     m.Similarity(),
		}
	}
	return out
}

// IngestOptions tunes Client.Ingest.
type IngestOptions struct {
	// ImagesDir holds <id>.jpg|jpeg|png files; products without one are stored text-only.
	ImagesDir string
	// BatchSize defaults to 100.
	BatchSize int
	// Workers defaults to 4.
	Workers int
	// Recreate drops both product indexes first.
	Recreate bool
}

// IngestResult summarizes an ingest run.
type IngestResult struct {
	Read         int64
	Stored       int64
	Failed       map[string]int64
	WithoutImage int64
	ImageFailed  int64
	Duration     time.Duration
}

func ingestConfig(o IngestOptions) ingestuc.Config {
	cfg := ingestuc.Config{
		BatchSize: o.BatchSize,
		Workers:   o.Workers,
		Recreate:  o.Recreate,
	}
	if o.ImagesDir != "" {
		cfg.Images = ingestuc.DirImages(o.ImagesDir)
	}
	return cfg
}

func ingestResult(r *ingestuc.Result) IngestResult {
	return IngestResult{
		Read:         r.Read,
		Stored:       r.Stored,
		Failed:       r.Failed,
		WithoutImage: r.WithoutImage,
		ImageFailed:  r.ImageFailed,
		Duration:     r.Duration,
	}
}
