package config

import (
	"os"
	"strings"
)

// LoadDotEnv populates the process environment from a simple KEY=VALUE
// file, skipping blank lines and "#" comments, without overriding
// variables already set. Ported line-for-line from
// original_source/app/config.py:load_dotenv; no pack library covers this
// (joho/godotenv never appears in any example's go.mod), and the
// reference implementation itself hand-rolls the same dozen lines rather
// than reach for python-dotenv, so a stdlib-only port is the faithful
// choice here.
func LoadDotEnv(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		entry := strings.TrimSpace(line)
		if entry == "" || strings.HasPrefix(entry, "#") || !strings.Contains(entry, "=") {
			continue
		}

		key, value, _ := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
