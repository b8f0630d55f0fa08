package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// LoadEnvFiles loads API keys from .env files into the process environment.
// Checks both ~/.cortex/.env (shared with other Cortex tools) and
// ~/.cortexvoice/.env. Variables already set in the environment win.
func LoadEnvFiles() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	envPaths := []string{
		filepath.Join(home, ".cortex", ".env"),
		filepath.Join(home, ".cortexvoice", ".env"),
	}

	var loaded []string
	for _, envPath := range envPaths {
		file, err := os.Open(envPath)
		if err != nil {
			continue // File doesn't exist, skip
		}

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			value := strings.Trim(strings.TrimSpace(parts[1]), "\"'")

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
				loaded = append(loaded, key)
			}
		}
		file.Close()
	}
	return loaded
}
