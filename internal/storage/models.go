package storage

import "time"

// Intent lifecycle states. Exactly one terminal transition per intent.
const (
	StatusPending    = "pending"
	StatusConfirmed  = "confirmed"
	StatusSuperseded = "superseded"
	StatusExpired    = "expired"
)

// Tip targets.
const (
	TargetPage  = "page"
	TargetImage = "image"
)

// TipIntent is a recorded expectation that a payment is about to occur
type TipIntent struct {
	ID          string
	DeviceID    string
	TargetType  string // "page" | "image"
	TargetID    string // required when TargetType is "image"
	DisplayName string
	AmountSats  int64
	IntentAt    time.Time
	Status      string
	UpdatedAt   time.Time
}

// ConfirmedTip records a matched payment. Immutable once written.
type ConfirmedTip struct {
	ID               int64
	PendingID        string
	TargetType       string
	TargetID         string
	DisplayName      string
	AmountSats       int64 // observed amount, may differ from the intent's
	ConfirmedAt      time.Time
	SourceReceivedAt time.Time
	PayerPubkey      string
	RelaysSeen       string
}

// ZapReceipt tracks which receipt events have been seen to avoid duplicates
type ZapReceipt struct {
	EventID    string
	Pubkey     string
	AmountMsat int64
	CreatedAt  time.Time
	RelaysSeen string
}

// LeaderboardRow is one aggregated tipper entry
type LeaderboardRow struct {
	Who       string `json:"who"`
	TotalSats int64  `json:"sats"`
}

// VoteTotal aggregates votes for one image
type VoteTotal struct {
	TotalVotes int64 `json:"totalVotes"`
	TotalScore int64 `json:"totalScore"`
}
