package relay

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// NpubToHex decodes a bech32 npub profile identifier into the hex pubkey
// relays filter on. Accepts an optional "nostr:" prefix.
func NpubToHex(npub string) (string, error) {
	s := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(npub)), "nostr:")

	hrp, words, err := bech32.Decode(s)
	if err != nil {
		return "", fmt.Errorf("decode npub: %w", err)
	}
	if hrp != "npub" {
		return "", fmt.Errorf("not an npub: %q", hrp)
	}

	data, err := bech32.ConvertBits(words, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("convert npub bits: %w", err)
	}
	if len(data) != 32 {
		return "", fmt.Errorf("npub payload is %d bytes, want 32", len(data))
	}

	return hex.EncodeToString(data), nil
}
