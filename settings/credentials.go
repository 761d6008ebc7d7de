// Package settings stores bilibook user credentials.
//
// Credentials live in the XDG data directory:
//
//	$XDG_DATA_HOME/bilibook/auth.json  (default: ~/.local/share/bilibook/)
//
// The file holds the API key rotation list and an optional endpoint
// override, with 0600 permissions (owner read/write only).
//
// Lookup order for keys:
//  1. --api-key flag (highest priority, comma-separated for rotation)
//  2. BILIBOOK_API_KEY environment variable
//  3. This credential store
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	dataDirName = "bilibook"
	fileName    = "auth.json"
)

// Credentials is the auth.json structure.
type Credentials struct {
	// Keys is the API key rotation list.
	Keys []string `json:"keys,omitempty"`
	// BaseURL is an optional endpoint override.
	BaseURL string `json:"baseUrl,omitempty"`
}

// EnvKey is the environment variable consulted before the store.
const EnvKey = "BILIBOOK_API_KEY"

// ---------------------------------------------------------------------------
// File path
// ---------------------------------------------------------------------------

// DataDir returns the bilibook data directory.
// Respects $XDG_DATA_HOME, falling back to ~/.local/share.
func DataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

// FilePath returns the auth.json path, or "" if it cannot be determined.
func FilePath() string {
	dir, err := DataDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, fileName)
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads the credential store. Returns an empty store if the file is
// missing or invalid.
func Load() *Credentials {
	path := FilePath()
	if path == "" {
		return &Credentials{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return &Credentials{}
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return &Credentials{}
	}
	return &c
}

// Save writes the credential store with 0600 permissions.
func Save(c *Credentials) error {
	path := FilePath()
	if path == "" {
		return fmt.Errorf("cannot determine credentials path")
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing auth file: %w", err)
	}
	return nil
}

// Remove deletes the credential store.
func Remove() error {
	path := FilePath()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing auth file: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Key resolution
// ---------------------------------------------------------------------------

// ResolveKeys returns the API key rotation list, applying the documented
// lookup order. The flag value may be a comma-separated list.
func ResolveKeys(flagValue string) []string {
	if flagValue != "" {
		return SplitKeys(flagValue)
	}
	if env := os.Getenv(EnvKey); env != "" {
		return SplitKeys(env)
	}
	return Load().Keys
}

// SplitKeys splits a comma-separated key list, dropping empty elements.
func SplitKeys(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// MaskKey returns a masked version of a key for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
