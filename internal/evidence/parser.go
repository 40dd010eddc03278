// Package evidence extracts normalized payment evidence from unstructured
// text such as forwarded wallet emails.
package evidence

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	satsRegex  = regexp.MustCompile(`(?i)([\d_., ]+)\s*sats?\b`)
	msatsRegex = regexp.MustCompile(`(?i)([\d_., ]+)\s*msats?\b`)
	boltRegex  = regexp.MustCompile(`⚡\s*([\d_.,]+)`)
	btcRegex   = regexp.MustCompile(`(?i)([\d_., ]+)\s*btc\b`)
	isoRegex   = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}(:\d{2})?)`)
	jsonRegex  = regexp.MustCompile(`(?s)\{.*"tags".*\}`)
)

// Tuple is one piece of normalized payment evidence
type Tuple struct {
	AmountSats int64
	ObservedAt time.Time
	Identity   string // email sender or payer pubkey, may be empty
	Provenance string // comma-separated relay URLs for swept receipts
}

// Parser turns raw email bodies into evidence tuples
type Parser struct {
	allowList []string // lowercased sender substrings; empty admits all
}

// NewParser creates a parser with an optional sender allow-list
func NewParser(allowList []string) *Parser {
	lowered := make([]string, 0, len(allowList))
	for _, s := range allowList {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			lowered = append(lowered, s)
		}
	}
	return &Parser{allowList: lowered}
}

// Parse extracts a tuple from an email body. A nil tuple with a reason is
// a valid negative outcome (filtered sender, nothing parseable), not an
// error.
func (p *Parser) Parse(from, body string, now time.Time) (*Tuple, string) {
	if !p.senderAllowed(from) {
		return nil, "sender not allowed"
	}

	sats, ok := ExtractAmount(body)
	if !ok {
		return nil, "no sats parsed"
	}

	return &Tuple{
		AmountSats: sats,
		ObservedAt: ExtractTimestamp(body, now),
		Identity:   from,
	}, ""
}

func (p *Parser) senderAllowed(from string) bool {
	if len(p.allowList) == 0 {
		return true
	}
	lowered := strings.ToLower(from)
	for _, s := range p.allowList {
		if strings.Contains(lowered, s) {
			return true
		}
	}
	return false
}

// ExtractAmount finds a satoshi amount in free text. Precedence: explicit
// sats, msats, a ⚡-prefixed number, an embedded zap-request payload, then
// a BTC amount. Returns false when nothing positive was parsed.
func ExtractAmount(text string) (int64, bool) {
	if m := satsRegex.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			return finiteSats(math.Round(v))
		}
	}

	if m := msatsRegex.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			return finiteSats(math.Round(v / 1000))
		}
	}

	if m := boltRegex.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			return finiteSats(math.Round(v))
		}
	}

	if msat, ok := embeddedAmountMsat(text); ok {
		return finiteSats(math.Round(float64(msat) / 1000))
	}

	if m := btcRegex.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			return finiteSats(math.Round(v * 100_000_000))
		}
	}

	return 0, false
}

// ExtractTimestamp finds the evidence timestamp: an epoch created_at in an
// embedded payload wins, then the first ISO-like date-time substring, then
// the fallback (normally the arrival time).
func ExtractTimestamp(text string, fallback time.Time) time.Time {
	if payload, ok := embeddedPayload(text); ok && payload.CreatedAt > 0 {
		return time.Unix(payload.CreatedAt, 0)
	}

	if m := isoRegex.FindStringSubmatch(text); m != nil {
		for _, layout := range []string{
			"2006-01-02T15:04:05", "2006-01-02 15:04:05",
			"2006-01-02T15:04", "2006-01-02 15:04",
		} {
			if t, err := time.Parse(layout, m[1]); err == nil {
				return t
			}
		}
	}

	return fallback
}

// zapPayload is the shape of a zap-request JSON object embedded in a
// receipt email (tagged array with an amount entry in msats).
type zapPayload struct {
	Tags      [][]string `json:"tags"`
	CreatedAt int64      `json:"created_at"`
}

func embeddedPayload(text string) (*zapPayload, bool) {
	m := jsonRegex.FindString(text)
	if m == "" {
		return nil, false
	}

	var payload zapPayload
	if err := json.Unmarshal([]byte(m), &payload); err != nil {
		return nil, false
	}
	return &payload, true
}

func embeddedAmountMsat(text string) (int64, bool) {
	payload, ok := embeddedPayload(text)
	if !ok {
		return 0, false
	}

	for _, tag := range payload.Tags {
		if len(tag) >= 2 && tag[0] == "amount" {
			if msat, err := strconv.ParseInt(tag[1], 10, 64); err == nil && msat > 0 {
				return msat, true
			}
		}
	}
	return 0, false
}

func parseNumber(raw string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', '_', ' ':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func finiteSats(v float64) (int64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return int64(v), true
}
