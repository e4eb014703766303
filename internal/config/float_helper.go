package config

import (
	"log"
	"os"
	"strconv"
)

// getEnvAsFloat64 reads a float variable, falling back on absence or a
// value that does not parse.
func getEnvAsFloat64(key string, fallback float64) float64 {
	valStr, exists := os.LookupEnv(key)
	if !exists || valStr == "" {
		return fallback
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid float64 for config %s=%s, using default %f", key, valStr, fallback)
		return fallback
	}
	return val
}
