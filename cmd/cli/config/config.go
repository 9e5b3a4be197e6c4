package config

import (
	"os"
	"path/filepath"
)

const (
	defaultAPIURL = "http://localhost:8080"
	tokenFileName = ".recychain_token"
)

// APIURL returns the base URL for the RecyChain API.
// It can be overridden with the RECYCHAIN_API_URL environment variable.
func APIURL() string {
	if v := os.Getenv("RECYCHAIN_API_URL"); v != "" {
		return v
	}
	return defaultAPIURL
}

// TokenPath returns where the JWT token is stored. RECYCHAIN_TOKEN_FILE
// overrides the default of ~/.recychain_token.
func TokenPath() string {
	if v := os.Getenv("RECYCHAIN_TOKEN_FILE"); v != "" {
		return v
	}
	dir, _ := os.UserHomeDir()
	return filepath.Join(dir, tokenFileName)
}

// SaveToken stores the JWT token for subsequent commands.
func SaveToken(token string) error {
	return os.WriteFile(TokenPath(), []byte(token), 0600)
}

// LoadToken reads the stored JWT token.
func LoadToken() (string, error) {
	data, err := os.ReadFile(TokenPath())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ClearToken removes the stored token. Missing file is not an error.
func ClearToken() error {
	err := os.Remove(TokenPath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
