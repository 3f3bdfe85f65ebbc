package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/shelf/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Backup.Enabled() {
		t.Error("backups should be off by default")
	}
	if cfg.Library.WriteTimeout != 5*time.Second {
		t.Errorf("write timeout = %v, want 5s", cfg.Library.WriteTimeout)
	}
}

func TestLibraryConfig_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*LibraryConfig)
	}{
		{"empty path", func(c *LibraryConfig) { c.Path = "" }},
		{"zero write timeout", func(c *LibraryConfig) { c.WriteTimeout = 0 }},
		{"blank extra genre", func(c *LibraryConfig) { c.Genres = []string{"Manga", ""} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig().Library
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestBackupConfig_Validation(t *testing.T) {
	cfg := BackupConfig{Schedule: "@daily", Dir: "./b", Keep: 3}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid backup config: %v", err)
	}
	if !cfg.Enabled() {
		t.Error("schedule set, backups should be enabled")
	}

	bad := []BackupConfig{
		{Schedule: "whenever", Dir: "./b"},
		{Dir: ""},
		{Dir: "./b", Keep: -1},
	}
	for _, c := range bad {
		if err := c.Validate(); err == nil {
			t.Errorf("%+v should fail validation", c)
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("SHELF_TEST_TOKEN", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `app:
  log_level: DEBUG
  http:
    port: 9090
    read_timeout: 3s
    write_timeout: 4s
library:
  path: /tmp/shelf/library.json
  write_timeout: 2s
  genres: [Manga, Cookbook]
  watch: false
sqlite:
  path: /tmp/shelf/shelf.db
auth:
  mode: token
  token: ${SHELF_TEST_TOKEN}
backup:
  schedule: "0 3 * * *"
  dir: /tmp/shelf/backups
  keep: 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v", cfg.App.LogLevel)
	}
	if cfg.App.HTTP.Address() != ":9090" || cfg.App.HTTP.ReadTimeout != 3*time.Second {
		t.Errorf("http = %+v", cfg.App.HTTP)
	}
	if cfg.Library.WriteTimeout != 2*time.Second || cfg.Library.Watch || len(cfg.Library.Genres) != 2 {
		t.Errorf("library = %+v", cfg.Library)
	}
	if cfg.Auth.Token != "s3cret" || !cfg.Auth.AuthEnabled() {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Backup.Keep != 3 || !cfg.Backup.Enabled() {
		t.Errorf("backup = %+v", cfg.Backup)
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg := NewDefaultConfig()
	loaded, err := pkgconfig.LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"), cfg)
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if loaded {
		t.Error("missing file should report not loaded")
	}
	if cfg.Library.Path != "./data/library.json" {
		t.Errorf("defaults changed: %+v", cfg.Library)
	}
}
