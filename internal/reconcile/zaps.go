package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/orangefortress/vote-backend/internal/evidence"
	"github.com/orangefortress/vote-backend/internal/relay"
	"github.com/orangefortress/vote-backend/internal/storage"
)

// SweepStats summarizes one zap sweep pass
type SweepStats struct {
	Relays          int `json:"relays"`
	EventsCollected int `json:"events_collected"`
	ReceiptsSaved   int `json:"receipts_saved"`
	TipsConfirmed   int `json:"tips_confirmed"`
}

// ZapSweeper pulls zap receipts from relays and reconciles them against
// pending intents.
type ZapSweeper struct {
	storage    *storage.Storage
	collector  *relay.Collector
	reconciler *Reconciler
	relays     []string
	pubkeyHex  string
	lookback   time.Duration
	budget     time.Duration
	log        *slog.Logger
}

// NewZapSweeper creates a ZapSweeper filtering receipts addressed to the
// given hex pubkey.
func NewZapSweeper(store *storage.Storage, collector *relay.Collector, rec *Reconciler, relays []string, pubkeyHex string, lookback, budget time.Duration, log *slog.Logger) *ZapSweeper {
	return &ZapSweeper{
		storage:    store,
		collector:  collector,
		reconciler: rec,
		relays:     relays,
		pubkeyHex:  pubkeyHex,
		lookback:   lookback,
		budget:     budget,
		log:        log,
	}
}

// Run performs one sweep pass: collect receipts, persist new ones, and
// reconcile each previously unseen receipt. Already-seen event ids are
// skipped before the reconciler runs, so redelivered receipts cannot
// re-confirm anything even across matcher edge cases.
func (z *ZapSweeper) Run(ctx context.Context) (*SweepStats, error) {
	filter := relay.Filter{
		Kinds: []int{relay.KindZapReceipt},
		P:     []string{z.pubkeyHex},
		Since: time.Now().Add(-z.lookback).Unix(),
	}

	events := z.collector.Sweep(ctx, z.relays, filter, z.budget)
	stats := &SweepStats{
		Relays:          len(z.relays),
		EventsCollected: len(events),
	}

	for i := range events {
		ev := &events[i]

		msat := ev.AmountMsat()
		if msat <= 0 {
			continue
		}

		createdAt := time.Unix(ev.CreatedAt, 0)
		if ev.CreatedAt <= 0 {
			createdAt = time.Now()
		}
		relaysSeen := strings.Join(ev.RelaysSeen, ",")

		isNew, err := z.storage.SaveZapReceipt(&storage.ZapReceipt{
			EventID:    ev.ID,
			Pubkey:     ev.Pubkey,
			AmountMsat: msat,
			CreatedAt:  createdAt,
			RelaysSeen: relaysSeen,
		})
		if err != nil {
			return stats, fmt.Errorf("save zap receipt: %w", err)
		}
		if !isNew {
			continue
		}
		stats.ReceiptsSaved++

		res, err := z.reconciler.Reconcile(ctx, &evidence.Tuple{
			AmountSats: int64(math.Round(float64(msat) / 1000)),
			ObservedAt: createdAt,
			Identity:   ev.Pubkey,
			Provenance: relaysSeen,
		})
		if err != nil {
			z.log.Error("reconcile zap receipt", "event_id", ev.ID, "error", err)
			continue
		}
		if res.Matched {
			stats.TipsConfirmed++
		}
	}

	z.log.Info("zap sweep complete",
		"relays", stats.Relays,
		"events", stats.EventsCollected,
		"receipts_saved", stats.ReceiptsSaved,
		"tips_confirmed", stats.TipsConfirmed,
	)

	return stats, nil
}

// Loop runs sweep passes on a fixed interval until the context is done
func (z *ZapSweeper) Loop(ctx context.Context, interval time.Duration) {
	// Initial delay so startup settles first.
	time.Sleep(5 * time.Second)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	z.log.Info("zap sweep loop started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := z.Run(ctx); err != nil {
				z.log.Error("zap sweep", "error", err)
			}
		}
	}
}
