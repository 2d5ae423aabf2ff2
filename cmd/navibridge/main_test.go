package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("NAVIBRIDGE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingCredentials verifies config validation rejects a file
// without cloud credentials.
func TestRun_MissingCredentials(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
database:
  path: ` + filepath.Join(tmpDir, "test.db") + `
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	t.Setenv("NAVIBRIDGE_CONFIG", configPath)
	t.Setenv("NAVIBRIDGE_CLOUD_EMAIL", "")
	t.Setenv("NAVIBRIDGE_CLOUD_PASSWORD", "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail without cloud credentials")
	}
}

// TestRun_InvalidDatabasePath verifies run fails when the database cannot
// be created.
func TestRun_InvalidDatabasePath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
cloud:
  email: test@example.com
  password: hunter2
database:
  path: /proc/invalid/navibridge.db
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	t.Setenv("NAVIBRIDGE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with unwritable database path")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("NAVIBRIDGE_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("NAVIBRIDGE_CONFIG", "/etc/navibridge/config.yaml")
	if got := getConfigPath(); got != "/etc/navibridge/config.yaml" {
		t.Errorf("getConfigPath() = %q, want override", got)
	}
}
