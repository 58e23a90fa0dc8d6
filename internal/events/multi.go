package events

import (
	"context"

	"github.com/kailas-cloud/vecshop/internal/domain"
)

// Multi fans an event out to every emitter in order.
type Multi []domain.EventEmitter

// Emit implements domain.EventEmitter.
func (m Multi) Emit(ctx context.Context, e domain.Event) {
	for _, em := range m {
		if em != nil {
			em.Emit(ctx, e)
		}
	}
}
