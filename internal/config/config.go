package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "supersecretkey"

// Store backends.
const (
	BackendREST     = "rest"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	Port string

	// Env is "dev" (default) or "prod". When "prod", JWT_SECRET must be set and not the default.
	Env string

	// LogFormat is "text" (default) or "json" for structured logging.
	LogFormat string

	// StoreBackend selects the data store: rest (Supabase/PostgREST), postgres or memory.
	StoreBackend string

	SupabaseURL  string
	SupabaseKey  string
	StoreTimeout time.Duration

	DBHost string
	DBPort string
	DBName string
	DBUser string
	DBPass string

	// DBMaxOpenConns is the maximum number of open connections to the database (default 25).
	DBMaxOpenConns int
	// DBMaxIdleConns is the maximum number of idle connections (default 5).
	DBMaxIdleConns int

	JWTSecret string
	JWTIssuer string
	// JWTExpireHours is the token lifetime in hours (default 24). Set via JWT_EXPIRE_HOURS.
	JWTExpireHours int
	BcryptCost     int

	// AuthRatePerMinute and AuthRateBurst throttle register and login per client IP.
	AuthRatePerMinute int
	AuthRateBurst     int

	// UploadDir holds post attachments, served under /uploads/.
	UploadDir   string
	UploadMaxMB int

	// SweepCron is the cron spec for removing unreferenced attachments. Empty disables the sweep.
	SweepCron  string
	SweepGrace time.Duration

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string
	TLSKeyFile  string

	// TrustProxyHeaders makes the server take the client IP from X-Forwarded-For / X-Real-IP.
	// Only enable it behind a reverse proxy that overwrites those headers.
	TrustProxyHeaders bool

	// CORSAllowedOrigins is set via CORS_ALLOWED_ORIGINS (comma-separated). When empty, no CORS headers are sent.
	CORSAllowedOrigins []string
}

// Load reads a .env file when one exists, then the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("config: could not load .env", "error", err)
	}

	return Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "dev"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", BackendREST)),
		SupabaseURL:  getEnv("SUPABASE_URL", ""),
		SupabaseKey:  getEnv("SUPABASE_KEY", ""),
		StoreTimeout: time.Duration(getEnvInt("STORE_TIMEOUT_SECONDS", 10)) * time.Second,

		DBHost: getEnv("DB_HOST", "localhost"),
		DBPort: getEnv("DB_PORT", "5432"),
		DBName: getEnv("DB_NAME", "radar"),
		DBUser: getEnv("DB_USER", "radar"),
		DBPass: getEnv("DB_PASS", "radar"),

		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),

		JWTSecret:      getEnv("JWT_SECRET", defaultJWTSecret),
		JWTIssuer:      getEnv("JWT_ISSUER", "radar-api"),
		JWTExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		BcryptCost:     getEnvInt("BCRYPT_COST", 10),

		AuthRatePerMinute: getEnvInt("AUTH_RATE_PER_MINUTE", 10),
		AuthRateBurst:     getEnvInt("AUTH_RATE_BURST", 5),

		UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
		UploadMaxMB: getEnvInt("UPLOAD_MAX_MB", 10),

		SweepCron:  getEnv("SWEEP_CRON", "@every 1h"),
		SweepGrace: time.Duration(getEnvInt("SWEEP_GRACE_MINUTES", 60)) * time.Minute,

		TLSCertFile: getEnv("TLS_CERT_FILE", ""),
		TLSKeyFile:  getEnv("TLS_KEY_FILE", ""),

		TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),

		CORSAllowedOrigins: parseCORSOrigins(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	if c.Env == "prod" && (c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret) {
		return errors.New("JWT_SECRET must be set in prod")
	}
	switch c.StoreBackend {
	case BackendREST:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return errors.New("SUPABASE_URL and SUPABASE_KEY must be set for the rest store")
		}
	case BackendPostgres, BackendMemory:
	default:
		return errors.New("STORE_BACKEND must be rest, postgres or memory")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	return nil
}

// TokenTTL is the bearer token lifetime.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.JWTExpireHours) * time.Hour
}

// UploadMaxBytes caps multipart post bodies.
func (c Config) UploadMaxBytes() int64 {
	return int64(c.UploadMaxMB) << 20
}

// parseCORSOrigins splits a comma-separated list of origins and trims spaces. Empty strings are omitted.
func parseCORSOrigins(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if o := strings.TrimSpace(p); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
