// Package scheduler runs the ledger's background maintenance: pruning
// expired idempotency receipts and confirming submitted transactions
// against the chain gateway.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/recychain/recychain/internal/ledger"
)

const (
	// pruneSpec drops receipts that have aged out of the idempotency window.
	pruneSpec = "*/10 * * * *"
	// sweepSpec polls the gateway for finality of submitted transactions.
	sweepSpec = "* * * * *"

	jobTimeout = 30 * time.Second
)

// Config tunes the maintenance jobs.
type Config struct {
	// IdempotencyWindow must match the ledger's window; receipts older than
	// this are dead weight and get pruned. Zero means the ledger default.
	IdempotencyWindow time.Duration
	// ConfirmBatch bounds how many unconfirmed transitions one sweep checks.
	// Zero means 100.
	ConfirmBatch int
}

// Start registers the maintenance jobs and starts the cron runner. Callers
// own the returned cron and should Stop it on shutdown.
func Start(st ledger.Store, tp ledger.Transport, cfg Config) *cron.Cron {
	window := cfg.IdempotencyWindow
	if window <= 0 {
		window = ledger.DefaultIdempotencyWindow
	}
	batch := cfg.ConfirmBatch
	if batch <= 0 {
		batch = 100
	}

	c := cron.New()

	c.AddFunc(pruneSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if n, err := pruneOnce(ctx, st, window); err != nil {
			slog.Error("scheduler: prune receipts", "error", err)
		} else if n > 0 {
			slog.Info("scheduler: pruned receipts", "count", n)
		}
	})

	c.AddFunc(sweepSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		confirmed, err := sweepOnce(ctx, st, tp, batch)
		if err != nil {
			slog.Error("scheduler: confirmation sweep", "error", err)
		}
		if confirmed > 0 {
			slog.Info("scheduler: confirmed transitions", "count", confirmed)
		}
	})

	c.Start()
	return c
}

// pruneOnce deletes receipts that fell out of the idempotency window.
func pruneOnce(ctx context.Context, st ledger.Store, window time.Duration) (int64, error) {
	return st.PruneReceipts(ctx, time.Now().UTC().Add(-window))
}

// sweepOnce checks a batch of unconfirmed transitions against the transport
// and marks the final ones confirmed. Transport errors stop the sweep; the
// next run picks up where this one left off.
func sweepOnce(ctx context.Context, st ledger.Store, tp ledger.Transport, batch int) (int, error) {
	records, err := st.ListUnconfirmedTransitions(ctx, batch)
	if err != nil {
		return 0, err
	}

	confirmed := 0
	for _, rec := range records {
		ok, err := tp.Confirm(ctx, rec.TxID)
		if err != nil {
			return confirmed, err
		}
		if !ok {
			continue
		}
		if err := st.MarkTransitionConfirmed(ctx, rec.ID); err != nil {
			return confirmed, err
		}
		confirmed++
	}
	return confirmed, nil
}
