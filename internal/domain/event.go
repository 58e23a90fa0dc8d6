package domain

import (
	"context"
	"time"
)

// EventType names a search pipeline observation.
type EventType string

const (
	// EventSearchCompleted is emitted for a successful search within the slow threshold.
	EventSearchCompleted EventType = "search_completed"
	// EventSearchSlow is emitted instead of EventSearchCompleted above the slow threshold.
	EventSearchSlow EventType = "search_slow"
	// EventImageNoMatch is emitted when an image search returns zero matches.
	EventImageNoMatch EventType = "image_no_match"
	// EventSearchFailed is emitted when a search returns an error.
	EventSearchFailed EventType = "search_failed"
)

// Event is a typed record of one search invocation.
type Event struct {
	Type          EventType
	SearchID      string
	Modality      Modality
	TopN          int
	ResultCount   int
	Dimensions    int
	EmbedDuration time.Duration
	RankDuration  time.Duration
	TotalDuration time.Duration
	Err           error
}

// EventEmitter receives search events. Emit must not block the caller for long
// and must not fail the search.
type EventEmitter interface {
	Emit(ctx context.Context, e Event)
}

// NopEmitter discards events.
type NopEmitter struct{}

// Emit implements EventEmitter.
func (NopEmitter) Emit(context.Context, Event) {}
