// Package match selects the pending intent that best explains a piece of
// payment evidence.
package match

import (
	"math"

	"github.com/orangefortress/vote-backend/internal/evidence"
	"github.com/orangefortress/vote-backend/internal/storage"
)

// Tolerance band bounds: ±10% of the evidence amount, floored and capped.
// Wallets round displayed amounts, so exact-amount matching would misfire.
const (
	tolerancePct   = 0.10
	toleranceFloor = 20
	toleranceCeil  = 1200
)

// DefaultAmountWeight encodes "1 second of time drift is as significant
// as 5 sats of amount drift" in the candidate score.
const DefaultAmountWeight = 5

// Tolerance returns the amount window within which evidence and intent are
// considered to refer to the same payment.
func Tolerance(amountSats int64) int64 {
	tol := int64(math.Round(float64(amountSats) * tolerancePct))
	if tol < toleranceFloor {
		return toleranceFloor
	}
	if tol > toleranceCeil {
		return toleranceCeil
	}
	return tol
}

// Matcher scores pending intents against evidence tuples
type Matcher struct {
	amountWeight int64
}

// New creates a Matcher. A non-positive weight falls back to the default.
func New(amountWeight int) *Matcher {
	if amountWeight <= 0 {
		amountWeight = DefaultAmountWeight
	}
	return &Matcher{amountWeight: int64(amountWeight)}
}

// Best picks at most one intent from the pool: candidates within the
// amount tolerance band, ranked by combined time and amount distance,
// ties broken by earliest IntentAt. The second return is false when no
// candidate qualifies, which is a normal outcome, not an error.
func (m *Matcher) Best(ev *evidence.Tuple, pool []storage.TipIntent) (*storage.TipIntent, bool) {
	tol := Tolerance(ev.AmountSats)

	var best *storage.TipIntent
	var bestScore int64

	for i := range pool {
		c := &pool[i]
		if c.Status != storage.StatusPending {
			continue
		}

		amountDiff := abs64(c.AmountSats - ev.AmountSats)
		if amountDiff > tol {
			continue
		}

		timeDiff := abs64(int64(c.IntentAt.Sub(ev.ObservedAt).Seconds()))
		score := timeDiff + amountDiff*m.amountWeight

		switch {
		case best == nil, score < bestScore:
			best, bestScore = c, score
		case score == bestScore && c.IntentAt.Before(best.IntentAt):
			best = c
		}
	}

	return best, best != nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
