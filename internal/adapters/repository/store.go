// Package repository defines the event store interface and its in-memory implementation.
package repository

import (
	"context"

	"github.com/okian/formwizard/internal/domain/model"
)

// Store holds the bounded, insertion-ordered history of accepted events.
type Store interface {
	// Append records ev, defaulting a zero timestamp to the store clock.
	// When the store is full the oldest events are dropped.
	// Returns the event as stored.
	Append(ctx context.Context, ev model.Event) (model.Event, error)

	// All returns a copy of the retained events, oldest first.
	All(ctx context.Context) ([]model.Event, error)

	// Len returns the number of retained events.
	Len(ctx context.Context) int

	// Clear drops every retained event.
	Clear(ctx context.Context) error
}
