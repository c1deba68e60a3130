// Copyright 2025 Certen Protocol
//
// Config loads the KERI engine's environment-variable-driven configuration
// the way the teacher's validator service does (pkg/config in the original
// certen-validator repository): a flat struct, a Load() that reads
// os.Getenv with typed defaults, and a Validate() callers run before
// starting the engine. Fields here name this repository's own concerns
// (storage backend selection, witness/watcher endpoints, mailbox polling)
// rather than the teacher's blockchain-anchoring ones.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the KERI engine process.
type Config struct {
	// Identity
	Prefix         string // this agent's own identifier prefix, once incepted; empty until first inception
	KeyPath        string // path to the local signing key material (pkg/codec/keymanager)
	DataDir        string // KERI_DATA_DIR; not consulted by the storage backends or the key manager

	// Storage backend: "memory", "sql", or "kv" (CometBFT-style embedded KV)
	StorageBackend string
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int
	DBConnMaxLifetime time.Duration
	KVDir          string

	// Server
	ListenAddr  string
	MetricsAddr string

	// Witness/watcher endpoints this agent's Identifier Agent submits
	// events to and polls mailboxes from: "prefix=url" pairs.
	Peers map[string]string

	// Role this process plays: controller | witness | watcher | messagebox
	Role string

	// Escrow tuning
	EscrowTTL           time.Duration
	MailboxPollInterval time.Duration

	// Digest/hash code used to self-address new events (see pkg/codec.DigestCode)
	HashCode string

	LogLevel string
}

// Load reads configuration from environment variables, applying the same
// safe-default style the teacher's Load() uses for non-secret fields while
// leaving identity/storage secrets unset by default.
func Load() (*Config, error) {
	cfg := &Config{
		Prefix:  getEnv("KERI_PREFIX", ""),
		KeyPath: getEnv("KERI_KEY_PATH", ""),
		DataDir: getEnv("KERI_DATA_DIR", "./data"),

		StorageBackend:    getEnv("KERI_STORAGE_BACKEND", "memory"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		DBMaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		KVDir:             getEnv("KERI_KV_DIR", "./data/kv"),

		ListenAddr:  getEnv("KERI_LISTEN_ADDR", "0.0.0.0:5631"),
		MetricsAddr: getEnv("KERI_METRICS_ADDR", "0.0.0.0:9090"),

		Peers: parsePeers(getEnv("KERI_PEERS", "")),

		Role: getEnv("KERI_ROLE", "controller"),

		EscrowTTL:           getEnvDuration("KERI_ESCROW_TTL", 24*time.Hour),
		MailboxPollInterval: getEnvDuration("KERI_MAILBOX_POLL_INTERVAL", 5*time.Second),

		HashCode: getEnv("KERI_HASH_CODE", "E"), // Blake3-256

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	return cfg, nil
}

// Validate checks that the fields required to run the engine in cfg.Role
// are present.
func (c *Config) Validate() error {
	var errs []string

	switch c.StorageBackend {
	case "memory":
	case "sql":
		if c.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required when KERI_STORAGE_BACKEND=sql")
		}
	case "kv":
		if c.KVDir == "" {
			errs = append(errs, "KERI_KV_DIR is required when KERI_STORAGE_BACKEND=kv")
		}
	default:
		errs = append(errs, fmt.Sprintf("KERI_STORAGE_BACKEND %q is not one of memory|sql|kv", c.StorageBackend))
	}

	switch c.Role {
	case "controller", "witness", "watcher", "messagebox":
	default:
		errs = append(errs, fmt.Sprintf("KERI_ROLE %q is not one of controller|witness|watcher|messagebox", c.Role))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// parsePeers parses "prefix1=url1,prefix2=url2" into a map.
func parsePeers(value string) map[string]string {
	out := make(map[string]string)
	if value == "" {
		return out
	}
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[kv[0]] = kv[1]
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
