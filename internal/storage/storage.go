package storage

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrNotPending = errors.New("intent is not pending")
)

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// New creates a new Storage instance and initializes the database
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tip_intents (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			amount_sats INTEGER NOT NULL,
			intent_at INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tip_intents_device_status ON tip_intents(device_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_tip_intents_status_intent_at ON tip_intents(status, intent_at)`,

		`CREATE TABLE IF NOT EXISTS confirmed_tips (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pending_id TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			amount_sats INTEGER NOT NULL,
			confirmed_at INTEGER NOT NULL,
			source_received_at INTEGER NOT NULL,
			payer_pubkey TEXT NOT NULL DEFAULT '',
			relays_seen TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_confirmed_tips_confirmed_at ON confirmed_tips(confirmed_at)`,

		`CREATE TABLE IF NOT EXISTS zap_receipts (
			event_id TEXT PRIMARY KEY,
			pubkey TEXT NOT NULL,
			amount_msat INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			relays_seen TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS votes (
			image_file TEXT NOT NULL,
			score INTEGER NOT NULL,
			user_ip TEXT NOT NULL,
			PRIMARY KEY (image_file, user_ip)
		)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// --- Tip intents ---

// CreateIntent inserts a new pending intent, demoting any prior pending
// intent for the same device to superseded first.
func (s *Storage) CreateIntent(intent *TipIntent) error {
	now := time.Now()

	_, err := s.db.Exec(
		`UPDATE tip_intents SET status = ?, updated_at = ?
		 WHERE device_id = ? AND status = ?`,
		StatusSuperseded, now.Unix(), intent.DeviceID, StatusPending,
	)
	if err != nil {
		return err
	}

	intent.Status = StatusPending
	intent.UpdatedAt = now

	_, err = s.db.Exec(
		`INSERT INTO tip_intents (id, device_id, target_type, target_id, display_name, amount_sats, intent_at, status, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		intent.ID, intent.DeviceID, intent.TargetType, intent.TargetID, intent.DisplayName,
		intent.AmountSats, intent.IntentAt.Unix(), intent.Status, intent.UpdatedAt.Unix(),
	)
	return err
}

// GetIntent returns an intent by ID
func (s *Storage) GetIntent(id string) (*TipIntent, error) {
	row := s.db.QueryRow(
		`SELECT id, device_id, target_type, target_id, display_name, amount_sats, intent_at, status, updated_at
		 FROM tip_intents WHERE id = ?`,
		id,
	)

	intent, err := scanIntent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return intent, nil
}

// PendingIntents returns pending intents with intent_at inside [since, until]
func (s *Storage) PendingIntents(since, until time.Time) ([]TipIntent, error) {
	rows, err := s.db.Query(
		`SELECT id, device_id, target_type, target_id, display_name, amount_sats, intent_at, status, updated_at
		 FROM tip_intents
		 WHERE status = ? AND intent_at >= ? AND intent_at <= ?
		 ORDER BY intent_at ASC`,
		StatusPending, since.Unix(), until.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intents []TipIntent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, *intent)
	}

	return intents, rows.Err()
}

// IntentsByDevice returns all intents for a device, newest first
func (s *Storage) IntentsByDevice(deviceID string) ([]TipIntent, error) {
	rows, err := s.db.Query(
		`SELECT id, device_id, target_type, target_id, display_name, amount_sats, intent_at, status, updated_at
		 FROM tip_intents WHERE device_id = ? ORDER BY intent_at DESC`,
		deviceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intents []TipIntent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, *intent)
	}

	return intents, rows.Err()
}

// ConfirmIntent transitions an intent from pending to confirmed. The update
// is conditional on the current status so that a replayed webhook and a
// concurrent sweep cannot both win; the loser gets ErrNotPending.
func (s *Storage) ConfirmIntent(id string) error {
	result, err := s.db.Exec(
		`UPDATE tip_intents SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		StatusConfirmed, time.Now().Unix(), id, StatusPending,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotPending
	}
	return nil
}

// ExpireOtherPending demotes every other pending intent of a device to
// expired, keeping at most one live intent lineage per device.
func (s *Storage) ExpireOtherPending(deviceID, exceptID string) error {
	_, err := s.db.Exec(
		`UPDATE tip_intents SET status = ?, updated_at = ?
		 WHERE device_id = ? AND status = ? AND id != ?`,
		StatusExpired, time.Now().Unix(), deviceID, StatusPending, exceptID,
	)
	return err
}

func scanIntent(row interface{ Scan(...any) error }) (*TipIntent, error) {
	var intent TipIntent
	var intentAt, updatedAt int64

	err := row.Scan(&intent.ID, &intent.DeviceID, &intent.TargetType, &intent.TargetID,
		&intent.DisplayName, &intent.AmountSats, &intentAt, &intent.Status, &updatedAt)
	if err != nil {
		return nil, err
	}

	intent.IntentAt = time.Unix(intentAt, 0)
	intent.UpdatedAt = time.Unix(updatedAt, 0)
	return &intent, nil
}

// --- Confirmed tips ---

// InsertConfirmedTip records a confirmation
func (s *Storage) InsertConfirmedTip(tip *ConfirmedTip) error {
	result, err := s.db.Exec(
		`INSERT INTO confirmed_tips (pending_id, target_type, target_id, display_name, amount_sats, confirmed_at, source_received_at, payer_pubkey, relays_seen)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tip.PendingID, tip.TargetType, tip.TargetID, tip.DisplayName, tip.AmountSats,
		tip.ConfirmedAt.Unix(), tip.SourceReceivedAt.Unix(), tip.PayerPubkey, tip.RelaysSeen,
	)
	if err != nil {
		return err
	}

	tip.ID, _ = result.LastInsertId()
	return nil
}

// ConfirmedTipsByPending returns confirmations referencing a pending intent
func (s *Storage) ConfirmedTipsByPending(pendingID string) ([]ConfirmedTip, error) {
	rows, err := s.db.Query(
		`SELECT id, pending_id, target_type, target_id, display_name, amount_sats, confirmed_at, source_received_at, payer_pubkey, relays_seen
		 FROM confirmed_tips WHERE pending_id = ?`,
		pendingID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tips []ConfirmedTip
	for rows.Next() {
		var t ConfirmedTip
		var confirmedAt, receivedAt int64
		err := rows.Scan(&t.ID, &t.PendingID, &t.TargetType, &t.TargetID, &t.DisplayName,
			&t.AmountSats, &confirmedAt, &receivedAt, &t.PayerPubkey, &t.RelaysSeen)
		if err != nil {
			return nil, err
		}
		t.ConfirmedAt = time.Unix(confirmedAt, 0)
		t.SourceReceivedAt = time.Unix(receivedAt, 0)
		tips = append(tips, t)
	}

	return tips, rows.Err()
}

// Leaderboard aggregates confirmed tips by tipper identity, summed and
// sorted descending. Ties are broken by the identity string so the order
// is deterministic. A zero since means no time filter; targetID narrows
// to tips on one image.
func (s *Storage) Leaderboard(targetID string, since time.Time, limit int) ([]LeaderboardRow, error) {
	query := `SELECT COALESCE(NULLIF(display_name, ''), substr(payer_pubkey, 1, 8) || '…') AS who,
			SUM(amount_sats) AS sats
		 FROM confirmed_tips WHERE 1=1`
	args := []any{}

	if targetID != "" {
		query += ` AND target_type = ? AND target_id = ?`
		args = append(args, TargetImage, targetID)
	}
	if !since.IsZero() {
		query += ` AND confirmed_at >= ?`
		args = append(args, since.Unix())
	}

	query += ` GROUP BY who ORDER BY sats DESC, who ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var board []LeaderboardRow
	for rows.Next() {
		var r LeaderboardRow
		if err := rows.Scan(&r.Who, &r.TotalSats); err != nil {
			return nil, err
		}
		board = append(board, r)
	}

	return board, rows.Err()
}

// --- Zap receipts ---

// SaveZapReceipt records a receipt event, returns true if it was new.
// Duplicate event IDs are ignored so replayed receipts never reach the
// reconciler twice.
func (s *Storage) SaveZapReceipt(r *ZapReceipt) (bool, error) {
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO zap_receipts (event_id, pubkey, amount_msat, created_at, relays_seen)
		 VALUES (?, ?, ?, ?, ?)`,
		r.EventID, r.Pubkey, r.AmountMsat, r.CreatedAt.Unix(), r.RelaysSeen,
	)
	if err != nil {
		return false, err
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// --- Votes ---

// UpsertVote records one vote per (image, caller); a repeat vote from the
// same caller replaces the previous score.
func (s *Storage) UpsertVote(imageFile string, score int, userIP string) error {
	_, err := s.db.Exec(
		`INSERT INTO votes (image_file, score, user_ip) VALUES (?, ?, ?)
		 ON CONFLICT(image_file, user_ip) DO UPDATE SET score = excluded.score`,
		imageFile, score, userIP,
	)
	return err
}

// ImageAverage returns the average score and vote count for one image
func (s *Storage) ImageAverage(imageFile string) (float64, int64, error) {
	var avg sql.NullFloat64
	var count int64

	err := s.db.QueryRow(
		`SELECT AVG(score), COUNT(*) FROM votes WHERE image_file = ?`,
		imageFile,
	).Scan(&avg, &count)
	if err != nil {
		return 0, 0, err
	}

	return avg.Float64, count, nil
}

// VoteTotals returns per-image vote counts and score sums
func (s *Storage) VoteTotals() (map[string]VoteTotal, error) {
	rows, err := s.db.Query(
		`SELECT image_file, COUNT(*), SUM(score) FROM votes GROUP BY image_file`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]VoteTotal)
	for rows.Next() {
		var file string
		var t VoteTotal
		if err := rows.Scan(&file, &t.TotalVotes, &t.TotalScore); err != nil {
			return nil, err
		}
		totals[file] = t
	}

	return totals, rows.Err()
}

// Ping checks that the votes table is reachable
func (s *Storage) Ping() error {
	var count int64
	return s.db.QueryRow(`SELECT COUNT(*) FROM votes`).Scan(&count)
}
