package config

import (
	"os"
	"strconv"
	"time"
)

// envOr parses the named variable with parse. Unset, empty and unparsable
// values all yield fallback.
func envOr[T any](key string, fallback T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := parse(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envString(key, fallback string) string {
	return envOr(key, fallback, func(s string) (string, error) { return s, nil })
}

func envInt(key string, fallback int) int { return envOr(key, fallback, strconv.Atoi) }

func envBool(key string, fallback bool) bool { return envOr(key, fallback, strconv.ParseBool) }

func envDuration(key string, fallback time.Duration) time.Duration {
	return envOr(key, fallback, time.ParseDuration)
}

func envFloat(key string, fallback float64) float64 {
	return envOr(key, fallback, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}
