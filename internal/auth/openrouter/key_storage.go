// Package openrouter persists and resolves OpenRouter API keys.
package openrouter

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// KeyFileName is the file written under auth-dir by the login command.
const KeyFileName = "openrouter-key.json"

const storageType = "openrouter"

// KeyStorage is the on-disk record of a verified API key.
type KeyStorage struct {
	// APIKey is the bearer credential sent to OpenRouter.
	APIKey string `json:"apiKey"`

	// VerifiedAt is when the key last passed verification.
	VerifiedAt time.Time `json:"verifiedAt"`

	// ModelCount is the number of models the key could access at verification.
	ModelCount int `json:"modelCount"`

	// Type is always "openrouter".
	Type string `json:"type"`
}

// Masked renders the key with everything but its prefix and last four characters hidden.
func (ks *KeyStorage) Masked() string {
	if ks == nil {
		return ""
	}
	return MaskKey(ks.APIKey)
}

// MaskKey hides the middle of key for display and logs.
func MaskKey(key string) string {
	key = strings.TrimSpace(key)
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:5] + strings.Repeat("*", len(key)-9) + key[len(key)-4:]
}

// SaveKeyToFile writes the key record to authFilePath with owner-only permissions.
func (ks *KeyStorage) SaveKeyToFile(authFilePath string) error {
	if ks == nil || strings.TrimSpace(ks.APIKey) == "" {
		return fmt.Errorf("openrouter key storage: api key is empty")
	}
	log.Debugf("saving credentials to %s", authFilePath)
	ks.Type = storageType
	if err := os.MkdirAll(filepath.Dir(authFilePath), 0o700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.OpenFile(authFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	defer func() {
		if errClose := f.Close(); errClose != nil {
			log.Errorf("failed to close file: %v", errClose)
		}
	}()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err = enc.Encode(ks); err != nil {
		return fmt.Errorf("failed to write key to file: %w", err)
	}
	return nil
}

// LoadKeyFromFile reads a key record written by SaveKeyToFile.
func LoadKeyFromFile(authFilePath string) (*KeyStorage, error) {
	data, err := os.ReadFile(authFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file: %w", err)
	}
	var ks KeyStorage
	if err = json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("failed to decode key file: %w", err)
	}
	ks.APIKey = strings.TrimSpace(ks.APIKey)
	if ks.APIKey == "" {
		return nil, fmt.Errorf("key file %s holds no api key", authFilePath)
	}
	ks.Type = storageType
	return &ks, nil
}

// KeyFilePath returns the key file location inside authDir.
func KeyFilePath(authDir string) string {
	return filepath.Join(authDir, KeyFileName)
}

// ResolveCredential picks the credential for a call: an explicit key first,
// then the configured key, then the stored key under authDir. It returns ""
// when none is available.
func ResolveCredential(explicit, configured, authDir string) string {
	if key := strings.TrimSpace(explicit); key != "" {
		return key
	}
	if key := strings.TrimSpace(configured); key != "" {
		return key
	}
	if strings.TrimSpace(authDir) == "" {
		return ""
	}
	ks, err := LoadKeyFromFile(KeyFilePath(authDir))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warnf("openrouter auth: ignoring stored key: %v", err)
		}
		return ""
	}
	return ks.APIKey
}
