package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecshop/internal/domain"
	"github.com/kailas-cloud/vecshop/internal/domain/search/match"
	"github.com/kailas-cloud/vecshop/internal/logger"
)

// DefaultSlowThreshold marks a search as slow when its total time exceeds it.
const DefaultSlowThreshold = 500 * time.Millisecond

// Config tunes the search service.
type Config struct {
	// SlowThreshold defaults to DefaultSlowThreshold.
	SlowThreshold time.Duration
	// MaxTopN rejects larger topN values; zero means unbounded.
	MaxTopN int
	Emitter domain.EventEmitter
}

// Service embeds queries and ranks products by similarity.
type Service struct {
	embed   Embedder
	ranker  Ranker
	slow    time.Duration
	maxTopN int
	emitter domain.EventEmitter

	now   func() time.Time
	newID func() string
}

// New creates a search service.
func New(embed Embedder, ranker Ranker, cfg Config) *Service {
	s := &Service{
		embed:   embed,
		ranker:  ranker,
		slow:    cfg.SlowThreshold,
		maxTopN: cfg.MaxTopN,
		emitter: cfg.Emitter,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	if s.slow <= 0 {
		s.slow = DefaultSlowThreshold
	}
	if s.emitter == nil {
		s.emitter = domain.NopEmitter{}
	}
	return s
}

// SearchByText returns the topN products most similar to a text query.
func (s *Service) SearchByText(ctx context.Context, text string, topN int) ([]match.Match, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: query must not be blank", domain.ErrInvalidArgument)
	}
	if err := s.validateTopN(topN); err != nil {
		return nil, err
	}

	return s.run(ctx, domain.ModalityText, topN, func(ctx context.Context) (domain.Vector, error) {
		return s.embed.EmbedText(ctx, text)
	})
}

// SearchByImage returns the topN products most similar to an image.
// An empty contentType is sent as application/octet-stream.
func (s *Service) SearchByImage(
	ctx context.Context, data []byte, contentType string, topN int,
) ([]match.Match, error) {
	if len(data) == 0 {
		return nil, domain.ErrEmptyInput
	}
	if err := s.validateTopN(topN); err != nil {
		return nil, err
	}

	return s.run(ctx, domain.ModalityImage, topN, func(ctx context.Context) (domain.Vector, error) {
		return s.embed.EmbedImage(ctx, data, contentType)
	})
}

func (s *Service) validateTopN(topN int) error {
	if topN <= 0 {
		return fmt.Errorf("%w: topN must be positive, got %d", domain.ErrInvalidArgument, topN)
	}
	if s.maxTopN > 0 && topN > s.maxTopN {
		return fmt.Errorf("%w: topN must not exceed %d, got %d", domain.ErrInvalidArgument, s.maxTopN, topN)
	}
	return nil
}

// run embeds then ranks, strictly in sequence, and emits the search events.
func (s *Service) run(
	ctx context.Context, modality domain.Modality, topN int,
	embed func(context.Context) (domain.Vector, error),
) ([]match.Match, error) {
	ev := domain.Event{SearchID: s.newID(), Modality: modality, TopN: topN}
	ctx = logger.With(ctx, zap.String("search_id", ev.SearchID))
	log := logger.FromContext(ctx)

	log.Debug("search request received",
		zap.String("modality", string(modality)),
		zap.Int("top_n", topN),
	)

	start := s.now()

	vec, err := embed(ctx)
	ev.EmbedDuration = s.now().Sub(start)
	if err != nil {
		return nil, s.fail(ctx, ev, start, embeddingError(err))
	}
	ev.Dimensions = vec.Dimensions()
	log.Debug("embedding retrieved",
		zap.Int("dimensions", ev.Dimensions),
		zap.Duration("duration", ev.EmbedDuration),
	)

	rankStart := s.now()
	matches, err := s.ranker.Rank(ctx, vec, topN, modality)
	ev.RankDuration = s.now().Sub(rankStart)
	if err != nil {
		return nil, s.fail(ctx, ev, start, rankingError(err))
	}
	if len(matches) > topN {
		matches = matches[:topN]
	}
	ev.ResultCount = len(matches)
	ev.TotalDuration = s.now().Sub(start)

	if modality == domain.ModalityImage && len(matches) == 0 {
		noMatch := ev
		noMatch.Type = domain.EventImageNoMatch
		s.emitter.Emit(ctx, noMatch)
	}

	ev.Type = domain.EventSearchCompleted
	if ev.TotalDuration > s.slow {
		ev.Type = domain.EventSearchSlow
	}
	s.emitter.Emit(ctx, ev)

	return matches, nil
}

func (s *Service) fail(ctx context.Context, ev domain.Event, start time.Time, err error) error {
	ev.Type = domain.EventSearchFailed
	ev.TotalDuration = s.now().Sub(start)
	ev.Err = err
	s.emitter.Emit(ctx, ev)
	return err
}

// embeddingError keeps the error kind and guarantees ErrEmbeddingFailed in the
// chain, except for a dimension mismatch which stays distinct.
func embeddingError(err error) error {
	if errors.Is(err, domain.ErrEmbeddingFailed) || errors.Is(err, domain.ErrEmbeddingDimensionMismatch) {
		return fmt.Errorf("embed query: %w", err)
	}
	return fmt.Errorf("embed query: %w: %w", domain.ErrEmbeddingFailed, err)
}

// rankingError guarantees ErrSearchBackendFailed in the chain.
func rankingError(err error) error {
	if errors.Is(err, domain.ErrSearchBackendFailed) || errors.Is(err, domain.ErrInvalidArgument) {
		return fmt.Errorf("rank products: %w", err)
	}
	return fmt.Errorf("rank products: %w: %w", domain.ErrStoreQueryFailed, err)
}
