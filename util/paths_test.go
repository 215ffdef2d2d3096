package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDataDirFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOTSPOT_BLUE_DIR", dir)

	if got := GetDataDir(); got != dir {
		t.Fatalf("Expected %s, got %s", dir, got)
	}

	session, err := GetSessionDir("session-1")
	if err != nil {
		t.Fatalf("GetSessionDir: %v", err)
	}
	if session != filepath.Join(dir, "session-1") {
		t.Errorf("Unexpected session dir %s", session)
	}
	if info, err := os.Stat(session); err != nil || !info.IsDir() {
		t.Errorf("Session dir not created: %v", err)
	}
}

func TestShortID(t *testing.T) {
	if got := ShortID("0fda92b2-44a2-4af2"); got != "0fda92b2" {
		t.Errorf("Expected 0fda92b2, got %s", got)
	}
	if got := ShortID("abc"); got != "abc" {
		t.Errorf("Short ids pass through, got %s", got)
	}
}
