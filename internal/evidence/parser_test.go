package evidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAmount(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int64
		ok   bool
	}{
		{"plain sats", "You received 1700 sats", 1700, true},
		{"sats with thousands separator", "You received 1,700 sats", 1700, true},
		{"sats with underscore separator", "1_700 sats received", 1700, true},
		{"singular sat", "you got 1 sat", 1, true},
		{"msats", "amount: 150000 msats", 150, true},
		{"msats rounds to nearest", "1500 msats", 2, true},
		{"lightning glyph", "⚡ 2500 incoming", 2500, true},
		{"btc fallback", "Received 0.000021 BTC", 2100, true},
		{"sats wins over btc", "0.5 BTC or 300 sats", 300, true},
		{"embedded zap payload", `receipt {"tags":[["p","ab"],["amount","21000"]],"created_at":1700000000}`, 21, true},
		{"zero amount", "0 sats", 0, false},
		{"no amount at all", "thanks for the payment", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractAmount(tt.text)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractTimestamp(t *testing.T) {
	fallback := time.Date(2025, 10, 14, 9, 0, 0, 0, time.UTC)

	t.Run("iso substring", func(t *testing.T) {
		got := ExtractTimestamp("paid at 2025-10-14 12:34:56 UTC", fallback)
		assert.Equal(t, time.Date(2025, 10, 14, 12, 34, 56, 0, time.UTC), got)
	})

	t.Run("iso without seconds", func(t *testing.T) {
		got := ExtractTimestamp("paid at 2025-10-14T12:34", fallback)
		assert.Equal(t, time.Date(2025, 10, 14, 12, 34, 0, 0, time.UTC), got)
	})

	t.Run("embedded epoch wins", func(t *testing.T) {
		text := `2025-10-14 12:34:56 {"tags":[["amount","1000"]],"created_at":1760000000}`
		got := ExtractTimestamp(text, fallback)
		assert.Equal(t, time.Unix(1760000000, 0), got)
	})

	t.Run("fallback", func(t *testing.T) {
		got := ExtractTimestamp("no date here", fallback)
		assert.Equal(t, fallback, got)
	})
}

func TestParserAllowList(t *testing.T) {
	now := time.Now()

	t.Run("empty list admits all", func(t *testing.T) {
		p := NewParser(nil)
		tuple, reason := p.Parse("anyone@example.com", "100 sats", now)
		require.NotNil(t, tuple)
		assert.Empty(t, reason)
		assert.Equal(t, int64(100), tuple.AmountSats)
		assert.Equal(t, "anyone@example.com", tuple.Identity)
	})

	t.Run("listed substring matches case-insensitively", func(t *testing.T) {
		p := NewParser([]string{"Wallet.Com", "other.org"})
		tuple, _ := p.Parse("notify@WALLET.com", "100 sats", now)
		require.NotNil(t, tuple)
	})

	t.Run("unlisted sender ignored", func(t *testing.T) {
		p := NewParser([]string{"wallet.com"})
		tuple, reason := p.Parse("spam@evil.net", "100 sats", now)
		assert.Nil(t, tuple)
		assert.Equal(t, "sender not allowed", reason)
	})

	t.Run("nothing parseable ignored", func(t *testing.T) {
		p := NewParser(nil)
		tuple, reason := p.Parse("a@b.c", "hello there", now)
		assert.Nil(t, tuple)
		assert.Equal(t, "no sats parsed", reason)
	})
}
