// Package config reads the environment variables recognized by the core
// (spec.md §6) into a typed struct with the documented defaults.
package config

import (
	"os"
	"strconv"
)

// Config holds every environment-driven setting the gateway needs at
// startup. Nothing here is reloaded at runtime; a config change requires a
// restart, matching the teacher's getenv-at-startup convention.
type Config struct {
	ListenAddr string
	ListenPort string

	RedisURL string

	JWTSecret string

	CacheEnabled bool

	// RepositoryURL is the Postgres DSN for the record-of-truth database
	// (C2). Empty means no repository is configured: the core runs against
	// repository.NewUnavailable (spec §4.2/§7, RepositoryUnavailable).
	RepositoryURL string

	DiscordToken   string
	DiscordGuildID string

	BehindProxy       bool
	RESTRateLimitRPS  int
	SocketRateLimitHz int
}

// Load reads the process environment into a Config, applying the defaults
// named in spec.md §6.
func Load() Config {
	return Config{
		ListenAddr: getenv("BIND_ADDR", "0.0.0.0"),
		ListenPort: getenv("PORT", "3001"),

		RedisURL: getenv("REDIS_URL", "redis://localhost:6379"),

		JWTSecret: getenv("JWT_SECRET", "your-secret-key"),

		CacheEnabled: getenv("CACHE_ENABLED", "true") != "false",

		RepositoryURL: os.Getenv("REPOSITORY_URL"),

		DiscordToken:   os.Getenv("DISCORD_TOKEN"),
		DiscordGuildID: os.Getenv("GUILD_ID"),

		BehindProxy:       getenv("BEHIND_PROXY", "false") == "true",
		RESTRateLimitRPS:  getenvInt("REST_RATE_LIMIT_RPS", 10),
		SocketRateLimitHz: getenvInt("SOCKET_RATE_LIMIT_HZ", 5),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
