// Package config centralizes the environment-variable driven configuration
// enumerated in spec §6: storage host/port/database/replica-set, the
// service listen port, and the CORS origin policy for the client channel.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config holds every externally-configurable knob the service reads at
// startup, generalized from the teacher's ad hoc env(k, def) reads in
// cmd/server/main.go into one loaded struct, since this service has two
// independent listen concerns (health HTTP + WebSocket) sharing it.
type Config struct {
	PGHost       string
	PGPort       int
	PGDatabase   string
	PGUser       string
	PGPassword   string
	PGReplicaSet string // optional; appended as a replicaSet query param
	PGMaxConns   int32
	PGMinConns   int32

	HTTPAddr string

	CORSOrigins []string

	MaxRetryAttempts int
	RetryBackoff     string // "none" | "exponential"

	Env string // "dev" enables pretty console logging, matching the teacher
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt32(k string, def int32) int32 {
	return int32(envInt(k, int(def)))
}

// Load reads configuration from the process environment, applying the same
// defaults-when-unset pattern as the teacher's main.go.
func Load() Config {
	return Config{
		PGHost:       env("LISTD_PG_HOST", "localhost"),
		PGPort:       envInt("LISTD_PG_PORT", 5432),
		PGDatabase:   env("LISTD_PG_DATABASE", "listd"),
		PGUser:       env("LISTD_PG_USER", "listd"),
		PGPassword:   env("LISTD_PG_PASSWORD", ""),
		PGReplicaSet: env("LISTD_PG_REPLICA_SET", ""),
		// A listd connection sees far less concurrent write traffic per
		// connection than the teacher's multi-tenant REST API did (every
		// held connection is a single in-flight mutation transaction), so
		// the pool defaults are kept but exposed for tuning rather than
		// hardcoded.
		PGMaxConns: envInt32("LISTD_PG_MAX_CONNS", 20),
		PGMinConns: envInt32("LISTD_PG_MIN_CONNS", 2),

		HTTPAddr: env("LISTD_HTTP_ADDR", ":8080"),

		CORSOrigins: splitCSV(env("LISTD_CORS_ORIGINS", "*")),

		MaxRetryAttempts: envInt("LISTD_MAX_RETRY_ATTEMPTS", 10),
		RetryBackoff:     env("LISTD_RETRY_BACKOFF", "none"),

		Env: env("ENV", ""),
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DatabaseURL assembles the libpq connection string pgxpool.ParseConfig
// expects, including the replica-set identifier as a query parameter when
// configured (e.g. for a Postgres topology fronted by a replica-set-aware
// proxy).
func (c Config) DatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PGUser, c.PGPassword),
		Host:   fmt.Sprintf("%s:%d", c.PGHost, c.PGPort),
		Path:   "/" + c.PGDatabase,
	}
	if c.PGReplicaSet != "" {
		q := u.Query()
		q.Set("replicaSet", c.PGReplicaSet)
		u.RawQuery = q.Encode()
	}
	return u.String()
}
