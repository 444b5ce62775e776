// Package reaper cleans up affiliates that were staged but never finalized.
package reaper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"affiliate-signup/internal/common/logger"
	"affiliate-signup/internal/common/metrics"
	"affiliate-signup/internal/ledger"
)

// Actions recorded per entry.
const (
	ActionDeleted  = "deleted"
	ActionFlagged  = "flagged"
	ActionSkipped  = "skipped"
	ActionConflict = "conflict"
	ActionFailed   = "failed"
)

type Store interface {
	ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]ledger.Entry, error)
	Transition(ctx context.Context, affiliateID, from, to string) (bool, error)
}

// Deleter removes an affiliate upstream. *tapfiliate.Client satisfies it.
type Deleter interface {
	DeleteAffiliate(ctx context.Context, affiliateID string) error
}

type Notifier interface {
	OrphansFound(ctx context.Context, report *Report) error
}

type Config struct {
	OrphanAfter    time.Duration
	BatchSize      int
	Concurrency    int
	DeleteUpstream bool
	DryRun         bool
}

func DefaultConfig() Config {
	return Config{
		OrphanAfter: 48 * time.Hour,
		BatchSize:   100,
		Concurrency: 4,
	}
}

type Failure struct {
	AffiliateID string `json:"affiliate_id"`
	Email       string `json:"email"`
	Error       string `json:"error"`
}

// Report summarises one sweep.
type Report struct {
	Scanned   int            `json:"scanned"`
	Deleted   []string       `json:"deleted,omitempty"`
	Flagged   []string       `json:"flagged,omitempty"`
	Skipped   []string       `json:"skipped,omitempty"`
	// Conflicts were deleted upstream after the ledger entry had moved on.
	Conflicts []string       `json:"conflicts,omitempty"`
	Failed    []Failure      `json:"failed,omitempty"`
	Entries   []ledger.Entry `json:"-"`
	DryRun    bool           `json:"dry_run"`

	mu sync.Mutex
}

func (r *Report) add(action, affiliateID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch action {
	case ActionDeleted:
		r.Deleted = append(r.Deleted, affiliateID)
	case ActionFlagged:
		r.Flagged = append(r.Flagged, affiliateID)
	case ActionSkipped:
		r.Skipped = append(r.Skipped, affiliateID)
	case ActionConflict:
		r.Conflicts = append(r.Conflicts, affiliateID)
	}
}

func (r *Report) fail(entry ledger.Entry, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed = append(r.Failed, Failure{AffiliateID: entry.AffiliateID, Email: entry.Email, Error: err.Error()})
}

type Reaper struct {
	store    Store
	deleter  Deleter
	notifier Notifier
	config   Config
	logger   logger.Logger
}

func New(store Store, deleter Deleter, notifier Notifier, cfg Config, log logger.Logger) (*Reaper, error) {
	if store == nil {
		return nil, fmt.Errorf("reaper requires a store")
	}
	if cfg.DeleteUpstream && deleter == nil {
		return nil, fmt.Errorf("upstream deletion requires a deleter")
	}
	def := DefaultConfig()
	if cfg.OrphanAfter <= 0 {
		cfg.OrphanAfter = def.OrphanAfter
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Reaper{store: store, deleter: deleter, notifier: notifier, config: cfg, logger: log}, nil
}

// Run sweeps one batch of stale entries. Per-entry failures are collected in
// the report; only listing errors and context cancellation abort the sweep.
func (r *Reaper) Run(ctx context.Context) (*Report, error) {
	entries, err := r.store.ListStale(ctx, r.config.OrphanAfter, r.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list stale affiliates: %w", err)
	}

	report := &Report{Scanned: len(entries), Entries: entries, DryRun: r.config.DryRun}
	r.logger.Info("Reaper sweep started", map[string]interface{}{
		"stale":          len(entries),
		"orphanAfter":    r.config.OrphanAfter.String(),
		"deleteUpstream": r.config.DeleteUpstream,
		"dryRun":         r.config.DryRun,
	})
	if len(entries) == 0 {
		return report, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Concurrency)
	for _, entry := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r.reap(gctx, entry, report)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	if r.notifier != nil && !r.config.DryRun {
		if err := r.notifier.OrphansFound(ctx, report); err != nil {
			r.logger.Warn("Failed to send reaper report", map[string]interface{}{"error": err.Error()})
		}
	}

	r.logger.Info("Reaper sweep finished", map[string]interface{}{
		"deleted":   len(report.Deleted),
		"flagged":   len(report.Flagged),
		"skipped":   len(report.Skipped),
		"conflicts": len(report.Conflicts),
		"failed":    len(report.Failed),
	})
	return report, nil
}

// reap claims the entry by flagging it, then deletes upstream when enabled.
// An entry finalized before the claim is skipped. Finalize refuses flagged
// entries, so only the holder of the flag deletes; an entry that is no longer
// flagged when the deletion is recorded is reported as a conflict.
func (r *Reaper) reap(ctx context.Context, entry ledger.Entry, report *Report) {
	log := r.logger.WithFields(map[string]interface{}{"affiliate_id": entry.AffiliateID})

	if r.config.DryRun {
		report.add(ActionFlagged, entry.AffiliateID)
		return
	}

	claimed, err := r.store.Transition(ctx, entry.AffiliateID, ledger.StatusPending, ledger.StatusFlagged)
	if err != nil {
		r.failed(log, report, entry, "Failed to flag ledger entry", err)
		return
	}
	if !claimed {
		metrics.OrphansReaped.WithLabelValues(ActionSkipped).Inc()
		report.add(ActionSkipped, entry.AffiliateID)
		return
	}

	action := ActionFlagged
	if r.config.DeleteUpstream {
		if err := r.deleter.DeleteAffiliate(ctx, entry.AffiliateID); err != nil {
			r.failed(log, report, entry, "Failed to delete orphaned affiliate", err)
			return
		}
		recorded, err := r.store.Transition(ctx, entry.AffiliateID, ledger.StatusFlagged, ledger.StatusDeleted)
		if err != nil {
			r.failed(log, report, entry, "Affiliate deleted but ledger not updated", err)
			return
		}
		action = ActionDeleted
		if !recorded {
			log.Warn("Affiliate deleted but ledger entry was no longer flagged", nil)
			action = ActionConflict
		}
	}

	metrics.OrphansReaped.WithLabelValues(action).Inc()
	report.add(action, entry.AffiliateID)
	log.Info("Orphaned affiliate handled", map[string]interface{}{"action": action})
}

func (r *Reaper) failed(log logger.Logger, report *Report, entry ledger.Entry, msg string, err error) {
	log.Error(msg, map[string]interface{}{"error": err.Error()})
	metrics.OrphansReaped.WithLabelValues(ActionFailed).Inc()
	report.fail(entry, err)
}
