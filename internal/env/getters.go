package env

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// String returns the trimmed environment variable or fallback when unset.
func String(key, fallback string) string {
	_ = Ensure()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// Duration parses a time duration from environment or returns fallback.
// A bare "0" is accepted and yields a zero duration.
func Duration(key string, fallback time.Duration) time.Duration {
	_ = Ensure()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if val == "0" {
			return 0
		}
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// Int returns an integer environment variable or fallback when invalid.
func Int(key string, fallback int) int {
	_ = Ensure()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// Bool parses a boolean environment variable.
func Bool(key string, fallback bool) bool {
	_ = Ensure()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		switch strings.ToLower(val) {
		case "1", "true", "yes":
			return true
		case "0", "false", "no":
			return false
		}
	}
	return fallback
}
