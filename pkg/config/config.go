package config

import (
	"os"
	"strconv"
)

// Config holds server configuration.
type Config struct {
	Port            string
	LogLevel        string
	StoreBackend    string // "memory" | "sqlite" | "postgres"
	DatabaseURL     string
	SQLitePath      string
	RedisAddr       string
	SignerSecret    string
	ProfilesDir     string
	Profile         string
	LedgerSlots     uint8
	MaxRules        uint8 // zero disables the cap
	MaxTreeBytes    int   // zero disables the cap
	RequireApproval bool
	LockBackend     string // "memory" | "redis"; empty follows RedisAddr
	LockTTLMillis   int
	RateLimitRPS    float64
	RateLimitBurst  int
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	backend := os.Getenv("STORE_BACKEND")
	if backend == "" {
		backend = "sqlite"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://spendgate@localhost:5432/spendgate?sslmode=disable"
	}

	sqlitePath := os.Getenv("SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "spendgate.db"
	}

	slots := uint8(8)
	if v := os.Getenv("LEDGER_SLOTS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 8); err == nil && n > 0 {
			slots = uint8(n)
		}
	}

	lockTTL := 30000
	if v := os.Getenv("LOCK_TTL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			lockTTL = n
		}
	}

	rps := 10.0
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			rps = f
		}
	}

	burst := 20
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			burst = n
		}
	}

	return &Config{
		Port:            port,
		LogLevel:        logLevel,
		StoreBackend:    backend,
		DatabaseURL:     dbURL,
		SQLitePath:      sqlitePath,
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		SignerSecret:    os.Getenv("SIGNER_SECRET"),
		ProfilesDir:     os.Getenv("PROFILES_DIR"),
		Profile:         os.Getenv("PROFILE"),
		LedgerSlots:     slots,
		RequireApproval: true,
		LockBackend:     os.Getenv("LOCK_BACKEND"),
		LockTTLMillis:   lockTTL,
		RateLimitRPS:    rps,
		RateLimitBurst:  burst,
	}
}
