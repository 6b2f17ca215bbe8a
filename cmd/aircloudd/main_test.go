package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/aircloud-bridge/internal/auth"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("AIRCLOUD_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("AIRCLOUD_CONFIG", path)
}

// TestRun_MissingCredentials verifies validation runs before anything connects.
func TestRun_MissingCredentials(t *testing.T) {
	t.Setenv("AIRCLOUD_ACCOUNT_EMAIL", "")
	t.Setenv("AIRCLOUD_ACCOUNT_PASSWORD", "")
	writeConfig(t, `
aircloud:
  email: ""
database:
  path: "`+filepath.Join(t.TempDir(), "aircloud.db")+`"
mqtt:
  enabled: false
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail without credentials")
	}
	if !strings.Contains(err.Error(), "aircloud.email") {
		t.Errorf("error = %v, want it to name aircloud.email", err)
	}
}

// TestRun_RejectedCredentials verifies an auth failure on the first
// refresh aborts startup.
func TestRun_RejectedCredentials(t *testing.T) {
	vendor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer vendor.Close()

	writeConfig(t, `
aircloud:
  email: "user@example.com"
  password: "wrong"
  base_url: "`+vendor.URL+`"
database:
  path: "`+filepath.Join(t.TempDir(), "aircloud.db")+`"
mqtt:
  enabled: false
logging:
  level: error
  format: text
`)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail when AirCloud rejects the account")
	}
	if !strings.Contains(err.Error(), "signing in to AirCloud") {
		t.Errorf("error = %v", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("AIRCLOUD_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("AIRCLOUD_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestIssueToken(t *testing.T) {
	writeConfig(t, `
aircloud:
  email: "user@example.com"
  password: "secret"
api:
  auth:
    jwt_secret: "test-secret-key-at-least-32-characters-long"
`)

	var out bytes.Buffer
	if err := issueToken([]string{"-subject", "grafana", "-role", "operator", "-ttl", "24h"}, &out); err != nil {
		t.Fatalf("issueToken() error = %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), "test-secret-key-at-least-32-characters-long")
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "grafana" || claims.Role != auth.RoleOperator {
		t.Errorf("claims = %+v", claims)
	}
}

func TestIssueToken_Errors(t *testing.T) {
	writeConfig(t, `
aircloud:
  email: "user@example.com"
  password: "secret"
`)

	var out bytes.Buffer
	if err := issueToken([]string{"-subject", "x"}, &out); err == nil {
		t.Error("issueToken() without a secret should fail")
	}
	if err := issueToken([]string{"-bogus"}, &out); err == nil {
		t.Error("issueToken() with an unknown flag should fail")
	}
}
