// Package dispatch sends meeting artifacts (extracted tasks, summaries) to
// external platforms exactly once per artifact and target. Delivery outcomes
// are recorded per artifact+target pair; a pair that already succeeded is
// never re-sent, and one target failing never blocks another.
package dispatch

import (
	"context"
	"time"

	"github.com/scribelab/scribed/internal/repository"
)

// ExternalRef identifies the created record on the remote platform.
type ExternalRef struct {
	ID  string
	URL string
}

// Target is one external destination for artifacts. Implementations live in
// external/dispatch.
type Target interface {
	Name() string
	Accepts(kind repository.ArtifactKind) bool
	Create(ctx context.Context, artifact repository.Artifact) (ExternalRef, error)
}

// Pending is a delivery that exhausted its immediate retries and waits for the
// reconciliation loop. It carries the full artifact so reconciliation does not
// depend on a database read.
type Pending struct {
	Artifact   repository.Artifact `json:"artifact"`
	Target     string              `json:"target"`
	RetryCount int                 `json:"retry_count"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
}

// Queue buffers pending deliveries across reconciliation rounds. Backed by
// redis in production, in-memory when no redis is configured.
type Queue interface {
	Enqueue(ctx context.Context, item Pending) error
	Dequeue(ctx context.Context, max int) ([]Pending, error)
}
