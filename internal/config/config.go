package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnv возвращает значение переменной окружения или fallback
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func GetEnvAsInt(name string, defaultValue int) int {
	valueStr := GetEnv(name, "")
	if value, err := strconv.Atoi(strings.TrimSpace(valueStr)); err == nil {
		return value
	}
	return defaultValue
}

func GetEnvAsUint32(name string, defaultValue uint32) uint32 {
	valueStr := GetEnv(name, "")
	if value, err := strconv.ParseUint(strings.TrimSpace(valueStr), 10, 32); err == nil {
		return uint32(value)
	}
	return defaultValue
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	val, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return val
}

// GetEnvAsDuration понимает как "150ms", так и целое число миллисекунд.
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}
