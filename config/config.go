package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var loadOnce sync.Once

// Config returns the value of an environment variable. The .env file is read
// once, variables already present in the environment take precedence.
func Config(key string) string {
	loadOnce.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Printf("no .env file loaded: %v", err)
		}
	})
	return strings.TrimSpace(os.Getenv(key))
}

func Int(key string, def int) int {
	value := Config(key)
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("invalid integer for %s: %q, using %d", key, value, def)
		return def
	}
	return n
}

func Bool(key string, def bool) bool {
	value := Config(key)
	if value == "" {
		return def
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("invalid boolean for %s: %q, using %t", key, value, def)
		return def
	}
	return b
}

// Duration parses values like "5s" or "15m".
func Duration(key string, def time.Duration) time.Duration {
	value := Config(key)
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Printf("invalid duration for %s: %q, using %s", key, value, def)
		return def
	}
	return d
}

// List splits a comma separated variable, dropping empty items.
func List(key string) []string {
	var out []string
	for _, item := range strings.Split(Config(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
