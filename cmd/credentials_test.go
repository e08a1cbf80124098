package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateHostSecret_GeneratesAndPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credential.secret")

	secret, err := loadOrCreateHostSecret(path)
	if err != nil {
		t.Fatalf("loadOrCreateHostSecret failed: %v", err)
	}
	if len(secret) != 32 {
		t.Errorf("len(secret) = %d, want 32", len(secret))
	}

	again, err := loadOrCreateHostSecret(path)
	if err != nil {
		t.Fatalf("second loadOrCreateHostSecret failed: %v", err)
	}
	if string(again) != string(secret) {
		t.Error("expected the second read to return the persisted secret, got a new one")
	}
}

func TestLoadOrCreateHostSecret_MissingParentDirCreated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "credential.secret")

	if _, err := loadOrCreateHostSecret(path); err != nil {
		t.Fatalf("loadOrCreateHostSecret failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected secret file to exist, got %v", err)
	}
}
