// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for all engine and server settings.
//
// IMPORTANT: When changing values, only modify this file.
// All other parts of the codebase should reference these values.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// RANKING ENGINE CONFIGURATION
// =============================================================================

// RankingConfig holds the constants the ranking-and-fusion engine depends on.
// These are fixed per process; the engine never reloads them mid-flight.
type RankingConfig struct {
	ActiveWindow      time.Duration // Max gap between liveness signals before an entity counts as offline
	HighRiskThreshold int           // Fused threat level at or above which an online entity is "suspicious"
	MaxPageSize       int           // Hard cap on page limit, enforced by callers before the engine
	ChunkMultiplier   int           // Windowed range reads fetch limit*ChunkMultiplier entries per call
	ChunkMinimum      int           // Floor for the per-call chunk size
}

// DefaultRanking returns the default engine configuration.
func DefaultRanking() RankingConfig {
	return RankingConfig{
		ActiveWindow:      5 * time.Minute,
		HighRiskThreshold: 70,
		MaxPageSize:       100,
		ChunkMultiplier:   4,
		ChunkMinimum:      100,
	}
}

// RankingFromEnv returns engine configuration with environment variable overrides.
// Environment variables take precedence over defaults.
func RankingFromEnv() RankingConfig {
	cfg := DefaultRanking()

	if s := getEnvInt("ACTIVE_WINDOW_SECONDS", 0); s > 0 {
		cfg.ActiveWindow = time.Duration(s) * time.Second
	}
	if t := getEnvInt("HIGH_RISK_THRESHOLD", 0); t > 0 {
		cfg.HighRiskThreshold = t
	}
	if m := getEnvInt("MAX_PAGE_SIZE", 0); m > 0 {
		cfg.MaxPageSize = m
	}

	return cfg
}

// =============================================================================
// REDIS CONFIGURATION
// =============================================================================

// RedisConfig holds connection settings for the backing store.
// The ranking index (sorted sets) and the per-entity detail records live
// in the same instance; the engine tolerates them drifting apart.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedis returns the default store configuration.
func DefaultRedis() RedisConfig {
	return RedisConfig{
		Addr:         "127.0.0.1:6379",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// RedisFromEnv returns store configuration with environment variable overrides.
func RedisFromEnv() RedisConfig {
	cfg := DefaultRedis()

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Password = pw
	}
	if db := getEnvInt("REDIS_DB", -1); db >= 0 {
		cfg.DB = db
	}
	if s := getEnvInt("REDIS_TIMEOUT_SECONDS", 0); s > 0 {
		cfg.DialTimeout = time.Duration(s) * time.Second
		cfg.ReadTimeout = time.Duration(s) * time.Second
		cfg.WriteTimeout = time.Duration(s) * time.Second
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int
	CORSOrigins []string
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port: 3000,
		CORSOrigins: []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		},
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitAndTrim(origins)
	}

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Ranking RankingConfig
	Redis   RedisConfig
	Server  ServerConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Ranking: RankingFromEnv(),
		Redis:   RedisFromEnv(),
		Server:  ServerFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
