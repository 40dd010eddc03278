// Package reconcile matches payment evidence to pending tip intents and
// drives the confirm transition.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/orangefortress/vote-backend/internal/evidence"
	"github.com/orangefortress/vote-backend/internal/match"
	"github.com/orangefortress/vote-backend/internal/storage"
)

// Notifier receives confirmed tips. Implementations must not block the
// reconcile path on delivery failures.
type Notifier interface {
	TipConfirmed(ctx context.Context, tip *storage.ConfirmedTip)
}

// Result is the terminal outcome of one reconcile attempt. Unmatched is a
// valid outcome, not an error.
type Result struct {
	Matched        bool
	IntentID       string
	ObservedAmount int64
}

// Reconciler orchestrates evidence ingestion: match, confirm, housekeeping
type Reconciler struct {
	storage *storage.Storage
	matcher *match.Matcher
	window  time.Duration
	notify  Notifier // may be nil
	log     *slog.Logger
}

// New creates a Reconciler. The window bounds how far an intent's
// timestamp may sit from the evidence timestamp to be considered at all.
func New(store *storage.Storage, matcher *match.Matcher, window time.Duration, notify Notifier, log *slog.Logger) *Reconciler {
	return &Reconciler{
		storage: store,
		matcher: matcher,
		window:  window,
		notify:  notify,
		log:     log,
	}
}

// Reconcile matches one evidence tuple against the pending intents inside
// its time window. On a match it records the confirmation with the
// observed amount, transitions the intent pending→confirmed, and expires
// any other pending intents of the same device.
//
// Replayed evidence is naturally unmatched: a confirmed intent is no
// longer in the candidate pool. Concurrent reconciles racing for the same
// intent are decided by the conditional status update in storage.
func (r *Reconciler) Reconcile(ctx context.Context, ev *evidence.Tuple) (*Result, error) {
	since := ev.ObservedAt.Add(-r.window)
	until := ev.ObservedAt.Add(r.window)

	pool, err := r.storage.PendingIntents(since, until)
	if err != nil {
		return nil, fmt.Errorf("load pending intents: %w", err)
	}

	best, ok := r.matcher.Best(ev, pool)
	if !ok {
		r.log.Info("evidence unmatched",
			"amount_sats", ev.AmountSats,
			"observed_at", ev.ObservedAt,
			"candidates", len(pool),
		)
		return &Result{Matched: false}, nil
	}

	// Insert the confirmation before touching intent state: a crash in
	// between leaves a replayable orphan row rather than a confirmed
	// intent with no record.
	now := time.Now()
	tip := &storage.ConfirmedTip{
		PendingID:        best.ID,
		TargetType:       best.TargetType,
		TargetID:         best.TargetID,
		DisplayName:      best.DisplayName,
		AmountSats:       ev.AmountSats,
		ConfirmedAt:      now,
		SourceReceivedAt: ev.ObservedAt,
		PayerPubkey:      ev.Identity,
		RelaysSeen:       ev.Provenance,
	}
	if err := r.storage.InsertConfirmedTip(tip); err != nil {
		return nil, fmt.Errorf("insert confirmed tip: %w", err)
	}

	if err := r.storage.ConfirmIntent(best.ID); err != nil {
		if errors.Is(err, storage.ErrNotPending) {
			// A concurrent reconcile got there first.
			r.log.Warn("lost confirm race", "intent_id", best.ID)
			return &Result{Matched: false}, nil
		}
		return nil, fmt.Errorf("confirm intent: %w", err)
	}

	if err := r.storage.ExpireOtherPending(best.DeviceID, best.ID); err != nil {
		// Housekeeping only; the confirmation already stands.
		r.log.Error("expire sibling intents", "device_id", best.DeviceID, "error", err)
	}

	r.log.Info("tip confirmed",
		"intent_id", best.ID,
		"device_id", best.DeviceID,
		"expected_sats", best.AmountSats,
		"observed_sats", ev.AmountSats,
	)

	if r.notify != nil {
		r.notify.TipConfirmed(ctx, tip)
	}

	return &Result{
		Matched:        true,
		IntentID:       best.ID,
		ObservedAmount: ev.AmountSats,
	}, nil
}
