package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/scribelab/scribed/internal/config"
	"github.com/scribelab/scribed/internal/fault"
	"github.com/scribelab/scribed/internal/metrics"
	"github.com/scribelab/scribed/internal/repository"
)

// Dispatcher routes artifacts to every target that accepts their kind.
// Delivery per artifact+target pair is single-flight and idempotent: a pair
// recorded as succeeded is skipped without an external call.
type Dispatcher struct {
	repo    repository.ArtifactRepository
	queue   Queue
	targets []Target
	policy  RetryPolicy

	reconcileInterval time.Duration

	mu       sync.Mutex
	inFlight map[string]bool
}

func NewDispatcher(cfg *config.Config, repo repository.ArtifactRepository, queue Queue, targets ...Target) *Dispatcher {
	return &Dispatcher{
		repo:  repo,
		queue: queue,
		policy: RetryPolicy{
			MaxRetries:     cfg.DispatchMaxRetries,
			InitialBackoff: cfg.DispatchInitialBackoff,
			MaxBackoff:     cfg.DispatchMaxBackoff,
		},
		reconcileInterval: cfg.ReconcileInterval,
		targets:           targets,
		inFlight:          make(map[string]bool),
	}
}

func (d *Dispatcher) Targets() []Target {
	return d.targets
}

// Dispatch delivers one artifact to all accepting targets. Failures are
// isolated per target: target A failing has no effect on target B's delivery
// or recorded state.
func (d *Dispatcher) Dispatch(ctx context.Context, artifact repository.Artifact) {
	any := false
	for _, target := range d.targets {
		if !target.Accepts(artifact.Kind) {
			continue
		}
		any = true
		d.dispatchOne(ctx, artifact, target, 0)
	}
	if !any {
		// No usable platform for this kind yet. Park the artifact; the
		// reconciler re-attempts once one becomes available.
		slog.Info("no dispatch target for artifact, parking",
			"artifact_id", artifact.ID, "kind", artifact.Kind)
		if err := d.queue.Enqueue(ctx, Pending{Artifact: artifact, EnqueuedAt: time.Now()}); err != nil {
			slog.Error("failed to park artifact", "error", err, "artifact_id", artifact.ID)
		}
	}
}

// RunReconciler periodically drains the pending queue and re-attempts
// deliveries that exhausted their immediate retries.
func (d *Dispatcher) RunReconciler(ctx context.Context) {
	ticker := time.NewTicker(d.reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Reconcile(ctx)
		}
	}
}

// Reconcile runs one reconciliation round: drain the pending queue, then
// sweep the repository for artifacts no delivery was ever recorded for.
func (d *Dispatcher) Reconcile(ctx context.Context) int {
	items, err := d.queue.Dequeue(ctx, 32)
	if err != nil {
		slog.Error("failed to drain dispatch queue", "error", err)
		return 0
	}
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		seen[item.Artifact.ID] = true
		if item.Target == "" {
			// Parked with no usable platform; route afresh against the
			// currently configured targets.
			d.Dispatch(ctx, item.Artifact)
			continue
		}
		target, ok := d.targetByName(item.Target)
		if !ok {
			slog.Warn("pending dispatch names unknown target, dropping",
				"target", item.Target, "artifact_id", item.Artifact.ID)
			continue
		}
		d.dispatchOne(ctx, item.Artifact, target, item.RetryCount)
	}
	handled := len(items)

	// Artifacts with no status rows were persisted but never attempted, for
	// example when a restart dropped the in-memory queue.
	orphans, err := d.repo.ListArtifactsPendingDispatch(ctx, 32)
	if err != nil {
		slog.Error("failed to list artifacts pending dispatch", "error", err)
		return handled
	}
	for _, artifact := range orphans {
		if seen[artifact.ID] {
			continue
		}
		handled++
		d.Dispatch(ctx, artifact)
	}
	return handled
}

func (d *Dispatcher) dispatchOne(ctx context.Context, artifact repository.Artifact, target Target, baseRetries int) {
	key := artifact.ID + "/" + target.Name()

	d.mu.Lock()
	if d.inFlight[key] {
		d.mu.Unlock()
		slog.Debug("dispatch already in flight", "artifact_id", artifact.ID, "target", target.Name())
		return
	}
	d.inFlight[key] = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.inFlight, key)
		d.mu.Unlock()
	}()

	if d.alreadySucceeded(ctx, artifact.ID, target.Name()) {
		slog.Debug("dispatch already succeeded, skipping",
			"artifact_id", artifact.ID, "target", target.Name())
		return
	}

	d.recordStatus(ctx, repository.UpdateDispatchStatusInput{
		ArtifactID: artifact.ID,
		Target:     target.Name(),
		State:      repository.DispatchInFlight,
		RetryCount: baseRetries,
	})

	var lastErr error
	for attempt := 0; ; attempt++ {
		ref, err := target.Create(ctx, artifact)
		if err == nil {
			metrics.DispatchAttempts.WithLabelValues(target.Name(), "success").Inc()
			d.recordStatus(ctx, repository.UpdateDispatchStatusInput{
				ArtifactID:  artifact.ID,
				Target:      target.Name(),
				State:       repository.DispatchSucceeded,
				ExternalID:  ref.ID,
				ExternalURL: ref.URL,
				RetryCount:  baseRetries + attempt,
			})
			slog.Info("artifact dispatched",
				"artifact_id", artifact.ID, "target", target.Name(),
				"external_id", ref.ID, "attempts", attempt+1)
			return
		}
		lastErr = err

		if !fault.IsRetryable(err) {
			metrics.DispatchAttempts.WithLabelValues(target.Name(), "permanent").Inc()
			d.recordStatus(ctx, repository.UpdateDispatchStatusInput{
				ArtifactID: artifact.ID,
				Target:     target.Name(),
				State:      repository.DispatchFailed,
				Reason:     err.Error(),
				RetryCount: baseRetries + attempt,
			})
			slog.Error("artifact dispatch failed permanently",
				"error", err, "artifact_id", artifact.ID, "target", target.Name())
			return
		}

		metrics.DispatchAttempts.WithLabelValues(target.Name(), "transient").Inc()
		if !d.policy.ShouldRetry(err, attempt) {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = d.policy.MaxRetries
		case <-time.After(d.policy.Backoff(attempt)):
		}
		if ctx.Err() != nil {
			break
		}
	}

	// Immediate retries exhausted; hand the delivery to the reconciler so it
	// survives beyond this call.
	d.recordStatus(ctx, repository.UpdateDispatchStatusInput{
		ArtifactID: artifact.ID,
		Target:     target.Name(),
		State:      repository.DispatchFailed,
		Reason:     lastErr.Error(),
		RetryCount: baseRetries + d.policy.MaxRetries,
	})
	slog.Warn("artifact dispatch deferred to reconciler",
		"error", lastErr, "artifact_id", artifact.ID, "target", target.Name())
	if err := d.queue.Enqueue(ctx, Pending{
		Artifact:   artifact,
		Target:     target.Name(),
		RetryCount: baseRetries + d.policy.MaxRetries,
		EnqueuedAt: time.Now(),
	}); err != nil {
		slog.Error("failed to enqueue pending dispatch", "error", err, "artifact_id", artifact.ID)
	}
}

func (d *Dispatcher) alreadySucceeded(ctx context.Context, artifactID, target string) bool {
	statuses, err := d.repo.ListDispatchStatuses(ctx, artifactID)
	if err != nil {
		slog.Error("failed to read dispatch statuses", "error", err, "artifact_id", artifactID)
		return false
	}
	for _, st := range statuses {
		if st.Target == target && st.State == repository.DispatchSucceeded {
			return true
		}
	}
	return false
}

func (d *Dispatcher) recordStatus(ctx context.Context, input repository.UpdateDispatchStatusInput) {
	if err := d.repo.UpdateDispatchStatus(ctx, input); err != nil {
		slog.Error("failed to record dispatch status",
			"error", err, "artifact_id", input.ArtifactID, "target", input.Target)
	}
}

func (d *Dispatcher) targetByName(name string) (Target, bool) {
	for _, t := range d.targets {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}
