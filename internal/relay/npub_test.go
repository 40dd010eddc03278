package relay

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeKey(t *testing.T, hrp string, key []byte) string {
	t.Helper()
	words, err := bech32.ConvertBits(key, 8, 5, true)
	require.NoError(t, err)
	s, err := bech32.Encode(hrp, words)
	require.NoError(t, err)
	return s
}

func TestNpubToHex(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i * 7)
	}
	npub := encodeKey(t, "npub", key)

	got, err := NpubToHex(npub)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(key), got)

	t.Run("nostr prefix", func(t *testing.T) {
		got, err := NpubToHex("nostr:" + npub)
		require.NoError(t, err)
		assert.Equal(t, hex.EncodeToString(key), got)
	})

	t.Run("wrong hrp", func(t *testing.T) {
		_, err := NpubToHex(encodeKey(t, "nsec", key))
		assert.Error(t, err)
	})

	t.Run("wrong payload length", func(t *testing.T) {
		_, err := NpubToHex(encodeKey(t, "npub", key[:16]))
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := NpubToHex("npub1notvalidbech32!!!")
		assert.Error(t, err)
	})
}
