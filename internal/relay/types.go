package relay

import "strconv"

// KindZapReceipt is the nostr event kind for lightning zap receipts.
const KindZapReceipt = 9735

// Event is a nostr event as delivered by a relay. Signature validation
// happens relay-side; receipts are treated as authentic here.
type Event struct {
	ID        string     `json:"id"`
	Pubkey    string     `json:"pubkey"`
	Kind      int        `json:"kind"`
	CreatedAt int64      `json:"created_at"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`

	// RelaysSeen lists every relay that reported this event, in the
	// order they were heard from. Not part of the wire format.
	RelaysSeen []string `json:"-"`
}

// AmountMsat returns the amount tag value in millisats, 0 if absent or
// malformed.
func (e *Event) AmountMsat() int64 {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == "amount" {
			msat, err := strconv.ParseInt(tag[1], 10, 64)
			if err != nil || msat < 0 {
				return 0
			}
			return msat
		}
	}
	return 0
}

// Filter is the subscription filter sent in a REQ frame
type Filter struct {
	Kinds []int    `json:"kinds,omitempty"`
	P     []string `json:"#p,omitempty"`
	Since int64    `json:"since,omitempty"`
}
