package config

import (
	"os"

	"github.com/joho/godotenv"
)

// dotenvCandidates in load order. godotenv never overwrites variables
// that are already set, so earlier files and the process environment
// take precedence over later ones.
var dotenvCandidates = []string{".env.local", ".env"}

// LoadDotEnv loads the env files that exist in the working directory
// and returns their names so the caller can log what was picked up.
func LoadDotEnv() []string {
	var found []string
	for _, name := range dotenvCandidates {
		if _, err := os.Stat(name); err == nil {
			found = append(found, name)
		}
	}
	if len(found) == 0 {
		return nil
	}
	_ = godotenv.Load(found...)
	return found
}
