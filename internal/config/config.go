package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string
	SiteID   string

	ArchiveBasePath string // raw import uploads
	ImportMaxBytes  int64

	AuthHMACSecret string
	AdminUser      string
	AdminPassHash  string    // bcrypt; empty leaves only Accounts
	Accounts       []Account // STATS_ACCOUNTS=user:role:bcrypt,...

	CORSOrigins []string

	LogLevel  slog.Level
	LogFormat string // json|text

	// PreserveManualSchedule keeps hand-entered dates and day counts when
	// generated statistics land on a manually edited row.
	PreserveManualSchedule bool
}

// Account is an extra local login with a fixed role.
type Account struct {
	User     string
	Role     string
	PassHash string
}

// Load reads an optional .env file and then the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("config: .env not loaded", "error", err)
	}
	return FromEnv()
}

func FromEnv() Config {
	return Config{
		HTTPAddr:               envOr("HTTP_ADDR", ":8080"),
		DBDriver:               envOr("DB_DRIVER", "sqlite"),
		DBDSN:                  envOr("DB_DSN", ""),
		SiteID:                 envOr("SITE_ID", "local"),
		ArchiveBasePath:        envOr("ARCHIVE_BASE_PATH", "./data"),
		ImportMaxBytes:         envInt("IMPORT_MAX_BYTES", 10<<20),
		AuthHMACSecret:         envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		AdminUser:              envOr("ADMIN_USER", "admin"),
		AdminPassHash:          envOr("ADMIN_PASS_HASH", ""),
		Accounts:               accountsOr("STATS_ACCOUNTS"),
		CORSOrigins:            csvOr("CORS_ORIGINS", "http://localhost:3000"),
		LogLevel:               envLevel("LOG_LEVEL", slog.LevelInfo),
		LogFormat:              strings.ToLower(envOr("LOG_FORMAT", "json")),
		PreserveManualSchedule: envBool("STATS_PRESERVE_MANUAL_SCHEDULE", false),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envInt(k string, def int64) int64 {
	n, err := strconv.ParseInt(os.Getenv(k), 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envLevel(k string, def slog.Level) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(os.Getenv(k))); err != nil {
		return def
	}
	return lvl
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// accountsOr parses user:role:hash entries. Bcrypt hashes never contain
// ':' or ','. Malformed entries are skipped.
func accountsOr(k string) []Account {
	var out []Account
	for _, e := range csvOr(k, "") {
		parts := strings.SplitN(e, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			slog.Warn("config: malformed account skipped", "key", k)
			continue
		}
		out = append(out, Account{User: parts[0], Role: parts[1], PassHash: parts[2]})
	}
	return out
}
