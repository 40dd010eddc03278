package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func TestCreateIntentSupersedesPrevious(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	first := &TipIntent{ID: "a", DeviceID: "dev1", TargetType: TargetPage, AmountSats: 100, IntentAt: now}
	require.NoError(t, s.CreateIntent(first))

	second := &TipIntent{ID: "b", DeviceID: "dev1", TargetType: TargetPage, AmountSats: 200, IntentAt: now}
	require.NoError(t, s.CreateIntent(second))

	intents, err := s.IntentsByDevice("dev1")
	require.NoError(t, err)
	require.Len(t, intents, 2)

	byID := map[string]string{}
	pending := 0
	for _, in := range intents {
		byID[in.ID] = in.Status
		if in.Status == StatusPending {
			pending++
		}
	}

	assert.Equal(t, 1, pending, "at most one pending intent per device")
	assert.Equal(t, StatusSuperseded, byID["a"])
	assert.Equal(t, StatusPending, byID["b"])
}

func TestCreateIntentOtherDeviceUntouched(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	require.NoError(t, s.CreateIntent(&TipIntent{ID: "a", DeviceID: "dev1", TargetType: TargetPage, AmountSats: 100, IntentAt: now}))
	require.NoError(t, s.CreateIntent(&TipIntent{ID: "b", DeviceID: "dev2", TargetType: TargetPage, AmountSats: 100, IntentAt: now}))

	got, err := s.GetIntent("a")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestConfirmIntentIsConditional(t *testing.T) {
	s := newTestStorage(t)

	intent := &TipIntent{ID: "a", DeviceID: "dev1", TargetType: TargetPage, AmountSats: 100, IntentAt: time.Now()}
	require.NoError(t, s.CreateIntent(intent))

	require.NoError(t, s.ConfirmIntent("a"))

	// Second transition attempt loses: the guard only matches pending.
	err := s.ConfirmIntent("a")
	assert.ErrorIs(t, err, ErrNotPending)

	got, err := s.GetIntent("a")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
}

func TestExpireOtherPending(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	// dev1 ends up with "b" pending; "a" was superseded on create.
	require.NoError(t, s.CreateIntent(&TipIntent{ID: "a", DeviceID: "dev1", TargetType: TargetPage, AmountSats: 100, IntentAt: now}))
	require.NoError(t, s.CreateIntent(&TipIntent{ID: "b", DeviceID: "dev1", TargetType: TargetPage, AmountSats: 200, IntentAt: now}))
	require.NoError(t, s.CreateIntent(&TipIntent{ID: "c", DeviceID: "dev2", TargetType: TargetPage, AmountSats: 300, IntentAt: now}))

	require.NoError(t, s.ExpireOtherPending("dev1", "zzz"))

	b, err := s.GetIntent("b")
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, b.Status)

	c, err := s.GetIntent("c")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, c.Status, "other devices are untouched")
}

func TestPendingIntentsWindow(t *testing.T) {
	s := newTestStorage(t)
	base := time.Now().Truncate(time.Second)

	require.NoError(t, s.CreateIntent(&TipIntent{ID: "in", DeviceID: "d1", TargetType: TargetPage, AmountSats: 100, IntentAt: base}))
	require.NoError(t, s.CreateIntent(&TipIntent{ID: "out", DeviceID: "d2", TargetType: TargetPage, AmountSats: 100, IntentAt: base.Add(-2 * time.Hour)}))

	got, err := s.PendingIntents(base.Add(-30*time.Minute), base.Add(30*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "in", got[0].ID)
}

func TestSaveZapReceiptDeduplicates(t *testing.T) {
	s := newTestStorage(t)

	r := &ZapReceipt{EventID: "ev1", Pubkey: "pk", AmountMsat: 21000, CreatedAt: time.Now()}

	isNew, err := s.SaveZapReceipt(r)
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, err = s.SaveZapReceipt(r)
	require.NoError(t, err)
	assert.False(t, isNew, "replayed receipt must not be new")
}

func TestUpsertVoteAndAverage(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.UpsertVote("cat.jpg", 8, "1.2.3.4"))
	require.NoError(t, s.UpsertVote("cat.jpg", 4, "5.6.7.8"))

	// Same caller voting again replaces the old score.
	require.NoError(t, s.UpsertVote("cat.jpg", 6, "1.2.3.4"))

	avg, count, err := s.ImageAverage("cat.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.InDelta(t, 5.0, avg, 0.001)

	totals, err := s.VoteTotals()
	require.NoError(t, err)
	assert.Equal(t, VoteTotal{TotalVotes: 2, TotalScore: 10}, totals["cat.jpg"])
}

func TestLeaderboard(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	insert := func(name, pubkey string, sats int64, targetID string, at time.Time) {
		t.Helper()
		tip := &ConfirmedTip{
			PendingID:        "p",
			TargetType:       TargetPage,
			DisplayName:      name,
			PayerPubkey:      pubkey,
			AmountSats:       sats,
			ConfirmedAt:      at,
			SourceReceivedAt: at,
		}
		if targetID != "" {
			tip.TargetType = TargetImage
			tip.TargetID = targetID
		}
		require.NoError(t, s.InsertConfirmedTip(tip))
	}

	insert("alice", "", 500, "", now)
	insert("alice", "", 700, "", now)
	insert("bob", "", 1000, "", now)
	insert("", "deadbeefcafe1234", 300, "", now)
	insert("old", "", 9000, "", now.Add(-48*time.Hour))
	insert("carol", "", 50, "img1.jpg", now)

	t.Run("all time, grouped and sorted", func(t *testing.T) {
		rows, err := s.Leaderboard("", time.Time{}, 20)
		require.NoError(t, err)
		require.Len(t, rows, 5)
		assert.Equal(t, LeaderboardRow{Who: "old", TotalSats: 9000}, rows[0])
		assert.Equal(t, LeaderboardRow{Who: "alice", TotalSats: 1200}, rows[1])
		assert.Equal(t, LeaderboardRow{Who: "bob", TotalSats: 1000}, rows[2])
		assert.Equal(t, LeaderboardRow{Who: "deadbeef…", TotalSats: 300}, rows[3])
	})

	t.Run("range filter", func(t *testing.T) {
		rows, err := s.Leaderboard("", now.Add(-24*time.Hour), 20)
		require.NoError(t, err)
		for _, r := range rows {
			assert.NotEqual(t, "old", r.Who)
		}
	})

	t.Run("image target filter", func(t *testing.T) {
		rows, err := s.Leaderboard("img1.jpg", time.Time{}, 20)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, LeaderboardRow{Who: "carol", TotalSats: 50}, rows[0])
	})

	t.Run("equal sums tie-break by identity", func(t *testing.T) {
		insert("zed", "", 1000, "", now)
		rows, err := s.Leaderboard("", time.Time{}, 20)
		require.NoError(t, err)

		var order []string
		for _, r := range rows {
			if r.TotalSats == 1000 {
				order = append(order, r.Who)
			}
		}
		assert.Equal(t, []string{"bob", "zed"}, order)
	})

	t.Run("limit", func(t *testing.T) {
		rows, err := s.Leaderboard("", time.Time{}, 2)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})
}
