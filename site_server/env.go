package main

import (
	"os"
	"strconv"
	"strings"
)

func envOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func isProduction() bool {
	return os.Getenv("APP_ENV") == "production"
}

func defaultAllowedOrigins() []string {
	return []string{
		"http://localhost:3000",
		"http://localhost:3009",
	}
}

func parseAllowedOriginsFromEnv(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return defaultAllowedOrigins()
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		out = append(out, origin)
	}
	if len(out) == 0 {
		return defaultAllowedOrigins()
	}
	return out
}
