package utils

import (
	"fmt"
	"os"
	"slices"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
)

// insecureKeyPerms flags key files readable by group or others
const insecureKeyPerms = 0077

// LoadServiceAccountConfig reads a Google service account key and returns a JWT config
// that impersonates subject (domain-wide delegation) with the given scopes
func LoadServiceAccountConfig(path, subject string, scopes ...string) (*jwt.Config, error) {
	if len(scopes) == 0 {
		return nil, fmt.Errorf("at least one oauth scope is required")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat service account key: %w", err)
	}
	if info.Mode().Perm()&insecureKeyPerms != 0 {
		return nil, fmt.Errorf("service account key %s must not be readable by group or others (mode %v)", path, info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account key: %w", err)
	}

	cfg, err := google.JWTConfigFromJSON(data, dedupeScopes(scopes)...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account key: %w", err)
	}
	cfg.Subject = subject

	return cfg, nil
}

func dedupeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
