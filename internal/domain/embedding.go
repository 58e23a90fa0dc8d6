package domain

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// TextEmbedder turns a text query into a vector.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) (Vector, error)
}

// ImageEmbedder turns raw image bytes into a vector.
// contentType may be empty; implementations fall back to DefaultContentType.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, data []byte, contentType string) (Vector, error)
}

type uploadFilenameKey struct{}

// WithUploadFilename attaches the client's original image filename to ctx so
// image embedders can forward it.
func WithUploadFilename(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, uploadFilenameKey{}, name)
}

// UploadFilename returns the base name attached by WithUploadFilename with
// directories and control characters removed, or "" when there is none.
func UploadFilename(ctx context.Context) string {
	name, _ := ctx.Value(uploadFilenameKey{}).(string)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '"' {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "." || name == ".." {
		return ""
	}
	return name
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// InstructionEmbedder prepends a fixed instruction to every text before embedding.
// Models such as e5 expect a "query: " prefix on search inputs.
type InstructionEmbedder struct {
	inner       TextEmbedder
	instruction string
}

// NewInstructionEmbedder creates a decorator that prepends instruction text.
func NewInstructionEmbedder(inner TextEmbedder, instruction string) *InstructionEmbedder {
	return &InstructionEmbedder{inner: inner, instruction: instruction}
}

// EmbedText prepends the instruction and delegates to the inner embedder.
func (e *InstructionEmbedder) EmbedText(ctx context.Context, text string) (Vector, error) {
	vec, err := e.inner.EmbedText(ctx, e.instruction+text)
	if err != nil {
		return nil, fmt.Errorf("instruction embed: %w", err)
	}
	return vec, nil
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (e *InstructionEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
