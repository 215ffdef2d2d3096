package util

import (
	"os"
	"path/filepath"
)

// GetDataDir returns the data directory path
func GetDataDir() string {
	if envDir := os.Getenv("HOTSPOT_BLUE_DIR"); envDir != "" {
		return envDir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "hotspot-blue-data")
	}
	return filepath.Join(home, ".hotspot-blue-data")
}

// GetSessionDir returns the directory for one pairing session's audit files,
// creating it if needed.
func GetSessionDir(sessionID string) (string, error) {
	dir := filepath.Join(GetDataDir(), sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// ShortID returns the first eight characters of an identifier for log prefixes
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
