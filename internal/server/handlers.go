package server

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/orangefortress/vote-backend/internal/storage"
)

// --- Tips ---

type startTipRequest struct {
	DeviceID    string `json:"device_id"`
	IntentID    string `json:"intent_id"`
	TargetType  string `json:"target_type"`
	TargetID    string `json:"target_id"`
	DisplayName string `json:"display_name"`
	AmountSats  *int64 `json:"amount_sats"`
	ClientTS    string `json:"client_ts"`
}

type intentResponse struct {
	ID          string `json:"id"`
	DeviceID    string `json:"device_id"`
	TargetType  string `json:"target_type"`
	TargetID    string `json:"target_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	AmountSats  int64  `json:"amount_sats"`
	IntentAt    string `json:"intent_at"`
	Status      string `json:"status"`
	UpdatedAt   string `json:"updated_at"`
}

func (s *Server) handleStartTip(w http.ResponseWriter, r *http.Request) {
	var req startTipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		bad(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.DeviceID == "" || req.TargetType == "" || req.AmountSats == nil {
		bad(w, http.StatusBadRequest, "device_id, target_type, amount_sats required")
		return
	}
	if req.TargetType != storage.TargetPage && req.TargetType != storage.TargetImage {
		bad(w, http.StatusBadRequest, "target_type must be page or image")
		return
	}
	if req.TargetType == storage.TargetImage && req.TargetID == "" {
		bad(w, http.StatusBadRequest, "target_id required for image tips")
		return
	}
	if *req.AmountSats <= 0 {
		bad(w, http.StatusBadRequest, "amount_sats must be positive")
		return
	}

	intentAt := time.Now()
	if req.ClientTS != "" {
		if t, err := time.Parse(time.RFC3339, req.ClientTS); err == nil {
			intentAt = t
		}
	}

	targetID := req.TargetID
	if req.TargetType == storage.TargetPage {
		targetID = ""
	}

	intent := &storage.TipIntent{
		ID:          req.IntentID,
		DeviceID:    req.DeviceID,
		TargetType:  req.TargetType,
		TargetID:    targetID,
		DisplayName: req.DisplayName,
		AmountSats:  *req.AmountSats,
		IntentAt:    intentAt,
	}
	if intent.ID == "" {
		intent.ID = uuid.NewString()
	}

	if err := s.storage.CreateIntent(intent); err != nil {
		s.log.Error("create intent", "error", err)
		bad(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"pending": intentResponse{
			ID:          intent.ID,
			DeviceID:    intent.DeviceID,
			TargetType:  intent.TargetType,
			TargetID:    intent.TargetID,
			DisplayName: intent.DisplayName,
			AmountSats:  intent.AmountSats,
			IntentAt:    intent.IntentAt.UTC().Format(time.RFC3339),
			Status:      intent.Status,
			UpdatedAt:   intent.UpdatedAt.UTC().Format(time.RFC3339),
		},
	})
}

// --- Email evidence ---

func (s *Server) handleEmailReceipt(w http.ResponseWriter, r *http.Request) {
	fields := emailFields(r)

	secret := r.URL.Query().Get("secret")
	if secret == "" {
		secret = r.Header.Get("X-Webhook-Secret")
	}
	if secret == "" {
		secret = fields["secret"]
	}
	if secret == "" || secret != s.cfg.EmailWebhookSecret {
		s.log.Warn("email webhook auth failed", "remote", r.RemoteAddr)
		bad(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	from := firstOf(fields, "from", "sender")
	subject := fields["subject"]
	text := firstOf(fields, "text", "body-plain", "body")
	html := firstOf(fields, "html", "body-html")
	bodyAll := subject + "\n" + text + "\n" + html

	tuple, reason := s.parser.Parse(from, bodyAll, time.Now())
	if tuple == nil {
		// Success-shaped so the sender does not retry-storm.
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ignored": reason})
		return
	}

	res, err := s.reconciler.Reconcile(r.Context(), tuple)
	if err != nil {
		s.log.Error("reconcile email evidence", "error", err)
		bad(w, http.StatusInternalServerError, "reconcile failed")
		return
	}

	if !res.Matched {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":          true,
			"unmatched":   true,
			"sats":        tuple.AmountSats,
			"received_at": tuple.ObservedAt.UTC().Format(time.RFC3339),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                 true,
		"matched_pending_id": res.IntentID,
		"sats":               res.ObservedAmount,
	})
}

// emailFields normalizes the webhook body: the forwarding service sends
// either form fields or JSON, with some field names varying by version.
func emailFields(r *http.Request) map[string]string {
	fields := make(map[string]string)
	ct := r.Header.Get("Content-Type")

	if strings.HasPrefix(ct, "application/json") {
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err == nil {
			for k, v := range raw {
				if s, ok := v.(string); ok {
					fields[k] = s
				}
			}
		}
		return fields
	}

	if err := r.ParseForm(); err == nil {
		for k := range r.PostForm {
			fields[k] = r.PostForm.Get(k)
		}
	}
	return fields
}

func firstOf(fields map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := fields[k]; v != "" {
			return v
		}
	}
	return ""
}

// --- Zap sweep ---

func (s *Server) handleReconcileZaps(w http.ResponseWriter, r *http.Request) {
	if s.sweeper == nil {
		bad(w, http.StatusInternalServerError, "sweep not configured: PROFILE_NPUB missing")
		return
	}

	stats, err := s.sweeper.Run(r.Context())
	if err != nil {
		s.log.Error("zap sweep", "error", err)
		bad(w, http.StatusInternalServerError, "sweep failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"relays":         stats.Relays,
		"receipts_saved": stats.ReceiptsSaved,
		"tips_confirmed": stats.TipsConfirmed,
	})
}

// --- Leaderboard ---

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var since time.Time
	switch strings.ToLower(q.Get("range")) {
	case "24h":
		since = time.Now().Add(-24 * time.Hour)
	case "7d":
		since = time.Now().Add(-7 * 24 * time.Hour)
	case "30d":
		since = time.Now().Add(-30 * 24 * time.Hour)
	}

	targetID := ""
	if strings.ToLower(q.Get("target")) == storage.TargetImage {
		targetID = q.Get("target_id")
	}

	limit := 20
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		limit = v
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 50 {
		limit = 50
	}

	rows, err := s.storage.Leaderboard(targetID, since, limit)
	if err != nil {
		s.log.Error("leaderboard query", "error", err)
		bad(w, http.StatusInternalServerError, "database error")
		return
	}
	if rows == nil {
		rows = []storage.LeaderboardRow{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "rows": rows})
}

// --- Votes ---

type voteRequest struct {
	ImageFile string   `json:"imageFile"`
	Score     *float64 `json:"score"`
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		bad(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	file := strings.TrimSpace(req.ImageFile)
	if file == "" {
		bad(w, http.StatusBadRequest, "imageFile is required")
		return
	}
	if req.Score == nil || *req.Score != math.Trunc(*req.Score) || *req.Score < 1 || *req.Score > 10 {
		bad(w, http.StatusBadRequest, "score must be an integer 1-10")
		return
	}

	if err := s.storage.UpsertVote(file, int(*req.Score), callerIP(r)); err != nil {
		s.log.Error("upsert vote", "error", err)
		bad(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleVoteHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.Ping(); err != nil {
		s.log.Error("votes probe", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "db_ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "db_ok": true})
}

func (s *Server) handleAverage(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")

	avg, count, err := s.storage.ImageAverage(file)
	if err != nil {
		s.log.Error("image average", "error", err)
		bad(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"imageFile": file,
		"average":   avg,
		"votes":     count,
	})
}

func (s *Server) handleVotes(w http.ResponseWriter, r *http.Request) {
	totals, err := s.storage.VoteTotals()
	if err != nil {
		s.log.Error("vote totals", "error", err)
		bad(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"allVotes": totals})
}

func callerIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
