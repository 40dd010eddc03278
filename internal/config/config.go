package config

import (
	"os"
	"strconv"
	"strings"
)

// DefaultRelays is used when NOSTR_RELAYS is not set.
var DefaultRelays = []string{
	"wss://relay.damus.io",
	"wss://relay.snort.social",
	"wss://relay.primal.net",
	"wss://offchain.pub",
	"wss://nos.lol",
	"wss://nostr.wine",
	"wss://relay.current.fyi",
	"wss://relay.nostr.band",
	"wss://nostr.bitcoiner.social",
	"wss://nostr.mom",
	"wss://eden.nostr.land",
	"wss://nostr.oxtr.dev",
}

type Config struct {
	// HTTP
	Port int

	// Database
	DBPath string

	// Email webhook
	EmailWebhookSecret string
	EmailAllowList     []string

	// Matching
	MatchWindowMinutes int
	MatchAmountWeight  int

	// Zap sweep
	ProfileNpub          string
	Relays               []string
	SweepTimeoutMs       int
	SweepIntervalSeconds int
	SweepLookbackMinutes int

	// Telegram (optional operator notifications)
	BotToken    string
	AdminChatID int64
}

func Load() *Config {
	cfg := &Config{
		// HTTP
		Port: getEnvInt("PORT", 8080),

		// Database
		DBPath: getEnv("DB_PATH", "./tips.db"),

		// Email webhook
		EmailWebhookSecret: getEnv("EMAIL_WEBHOOK_SECRET", ""),
		EmailAllowList:     getEnvList("EMAIL_ALLOW_LIST"),

		// Matching
		MatchWindowMinutes: getEnvInt("MATCH_WINDOW_MINUTES", 30),
		MatchAmountWeight:  getEnvInt("MATCH_AMOUNT_WEIGHT", 5),

		// Zap sweep
		ProfileNpub:          getEnv("PROFILE_NPUB", ""),
		Relays:               getEnvList("NOSTR_RELAYS"),
		SweepTimeoutMs:       getEnvInt("SWEEP_TIMEOUT_MS", 6000),
		SweepIntervalSeconds: getEnvInt("SWEEP_INTERVAL_SECONDS", 120),
		SweepLookbackMinutes: getEnvInt("SWEEP_LOOKBACK_MINUTES", 15),

		// Telegram
		BotToken:    getEnv("BOT_TOKEN", ""),
		AdminChatID: getEnvInt64("ADMIN_CHAT_ID", 0),
	}

	if len(cfg.Relays) == 0 {
		cfg.Relays = DefaultRelays
	}

	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
