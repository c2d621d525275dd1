package reconciler

import (
	"context"
	"log/slog"
	"time"

	"github.com/sentinelgg/sentinel/internal/metrics"
)

// LinkLister is the part of the link store the reconciler reads.
type LinkLister interface {
	ListAllCommIDs(ctx context.Context) ([]string, error)
	PurgeExpiredCodes(ctx context.Context, olderThan time.Time) (int64, error)
}

// RoleSyncer checks presence (removing departed members) and grants the linked role.
type RoleSyncer interface {
	LinkedRoleID() string
	IsPresent(ctx context.Context, commID string) (bool, error)
	EnsureLinkedRole(ctx context.Context, commID string) (bool, error)
}

// Reconciler polls the link store and keeps the linked role on every linked
// Discord account. It holds no locks; the store's own atomic operations are the
// only coordination with concurrent logins and links.
type Reconciler struct {
	links    LinkLister
	roles    RoleSyncer
	interval time.Duration
	codeTTL  time.Duration
}

// New creates a new Reconciler. A positive codeTTL also purges expired pending codes each pass.
func New(links LinkLister, roles RoleSyncer, interval, codeTTL time.Duration) *Reconciler {
	return &Reconciler{
		links:    links,
		roles:    roles,
		interval: interval,
		codeTTL:  codeTTL,
	}
}

// Start begins the reconciliation loop. It runs one pass immediately and then
// one per interval, and blocks until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	slog.Info("reconciler started", "interval", r.interval.String())
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reconciliation pass. Failures are logged and never
// escape, panics included.
func (r *Reconciler) RunOnce(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("reconciler: pass panicked", "panic", p)
			metrics.ReconcilerPasses.WithLabelValues("panic").Inc()
		}
	}()

	if r.codeTTL > 0 {
		r.purgeCodes(ctx)
	}

	ids, err := r.links.ListAllCommIDs(ctx)
	if err != nil {
		slog.Error("reconciler: failed to list links; continuing with partial list",
			"gathered", len(ids), "error", err)
	}

	// Without a linked role the pass only prunes departed members.
	grant := r.roles.LinkedRoleID() != ""

	var granted, departed, failed int
	for _, commID := range ids {
		if ctx.Err() != nil {
			return
		}
		switch r.reconcileOne(ctx, commID, grant) {
		case outcomeGranted:
			granted++
		case outcomeDeparted:
			departed++
		case outcomeFailed:
			failed++
		}
	}

	result := "ok"
	if err != nil || failed > 0 {
		result = "partial"
	}
	metrics.ReconcilerPasses.WithLabelValues(result).Inc()
	slog.Info("reconciler: pass complete",
		"links", len(ids), "granted", granted, "departed", departed, "failed", failed)
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeGranted
	outcomeDeparted
	outcomeFailed
)

func (r *Reconciler) reconcileOne(ctx context.Context, commID string, grant bool) outcome {
	present, err := r.roles.IsPresent(ctx, commID)
	if err != nil {
		slog.Warn("reconciler: failed to check presence", "commId", commID, "error", err)
		return outcomeFailed
	}
	if !present {
		return outcomeDeparted
	}
	if !grant {
		return outcomeUnchanged
	}

	granted, err := r.roles.EnsureLinkedRole(ctx, commID)
	if err != nil {
		slog.Warn("reconciler: failed to ensure linked role", "commId", commID, "error", err)
		return outcomeFailed
	}
	if granted {
		slog.Info("reconciler: granted linked role", "commId", commID)
		return outcomeGranted
	}
	return outcomeUnchanged
}

func (r *Reconciler) purgeCodes(ctx context.Context) {
	n, err := r.links.PurgeExpiredCodes(ctx, time.Now().Add(-r.codeTTL))
	if err != nil {
		slog.Error("reconciler: failed to purge expired codes", "error", err)
		return
	}
	if n > 0 {
		slog.Info("reconciler: purged expired link codes", "count", n)
	}
}
