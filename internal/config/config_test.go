package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Query.PageSize != 20 {
		t.Errorf("expected default page size 20, got %d", cfg.Query.PageSize)
	}
	if cfg.Transfer.MaxConcurrent != 5 {
		t.Errorf("expected default max_concurrent 5, got %d", cfg.Transfer.MaxConcurrent)
	}
	if cfg.Proxy.Mode != "no-proxy" {
		t.Errorf("expected default proxy mode no-proxy, got %s", cfg.Proxy.Mode)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.ini")

	cfg := NewConfig()
	cfg.Server.Address = "https://files.example.com"
	cfg.Session.Username = "alice"
	cfg.Session.DownloadDir = "/tmp/downloads"
	cfg.Transfer.Timeout = 90 * time.Second
	cfg.Query.PageSize = 50
	cfg.Proxy.Mode = "basic"
	cfg.Proxy.Host = "proxy.local"
	cfg.Proxy.Password = "secret"

	if err := Save(cfg, configPath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read saved config: %v", err)
	}
	if strings.Contains(string(data), "secret") {
		t.Error("proxy password must not be written to disk")
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Server.Address != cfg.Server.Address {
		t.Errorf("expected address %s, got %s", cfg.Server.Address, loaded.Server.Address)
	}
	if loaded.Session.Username != "alice" {
		t.Errorf("expected username alice, got %s", loaded.Session.Username)
	}
	if loaded.Transfer.Timeout != 90*time.Second {
		t.Errorf("expected timeout 90s, got %v", loaded.Transfer.Timeout)
	}
	if loaded.Query.PageSize != 50 {
		t.Errorf("expected page size 50, got %d", loaded.Query.PageSize)
	}
	if loaded.Proxy.Host != "proxy.local" {
		t.Errorf("expected proxy host, got %q", loaded.Proxy.Host)
	}
	if loaded.Proxy.Password != "" {
		t.Error("expected empty password after load")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.ini"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Query.PageSize != 20 {
		t.Errorf("expected defaults, got page size %d", cfg.Query.PageSize)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.ini")
	if err := os.WriteFile(path, []byte("[server\naddress"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed ini")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"bad address", func(c *Config) { c.Server.Address = "ftp://x" }, ErrInvalidAddress},
		{"page size zero", func(c *Config) { c.Query.PageSize = 0 }, ErrInvalidPageSize},
		{"too many workers", func(c *Config) { c.Transfer.MaxConcurrent = 100 }, ErrInvalidMaxConcurrent},
		{"negative timeout", func(c *Config) { c.Transfer.Timeout = -time.Second }, ErrInvalidTimeout},
		{"unknown proxy mode", func(c *Config) { c.Proxy.Mode = "socks" }, ErrInvalidProxyMode},
		{"ntlm without host", func(c *Config) { c.Proxy.Mode = "ntlm" }, ErrMissingProxyHost},
		{"bad zone", func(c *Config) { c.Query.DateZone = "Mars/Olympus" }, ErrInvalidDateZone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateForConnection(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.ValidateForConnection(); !errors.Is(err, ErrMissingAddress) {
		t.Errorf("expected ErrMissingAddress, got %v", err)
	}
	cfg.Server.Address = "http://localhost:5000"
	if err := cfg.ValidateForConnection(); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvAddress, "https://env.example.com/")
	t.Setenv(EnvUsername, "bob")

	cfg := NewConfig()
	cfg.Session.Username = "alice"
	cfg.ApplyEnv()

	if cfg.Server.Address != "https://env.example.com" {
		t.Errorf("expected env address without trailing slash, got %s", cfg.Server.Address)
	}
	if cfg.Session.Username != "bob" {
		t.Errorf("expected env username bob, got %s", cfg.Session.Username)
	}
}

func TestSet(t *testing.T) {
	cfg := NewConfig()

	if err := cfg.Set("query.page_size", "40"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if cfg.Query.PageSize != 40 {
		t.Errorf("expected 40, got %d", cfg.Query.PageSize)
	}
	if err := cfg.Set("transfer.timeout", "2m"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if cfg.Transfer.Timeout != 2*time.Minute {
		t.Errorf("expected 2m, got %v", cfg.Transfer.Timeout)
	}
	if err := cfg.Set("query.page_size", "abc"); err == nil {
		t.Error("expected parse error")
	}
	if err := cfg.Set("query.page_size", "0"); !errors.Is(err, ErrInvalidPageSize) {
		t.Errorf("expected validation error, got %v", err)
	}
	if err := cfg.Set("nope.key", "x"); err == nil {
		t.Error("expected unknown key error")
	}
	if len(Keys()) == 0 || Keys()[0] != "notify.desktop" {
		t.Errorf("expected sorted keys, got %v", Keys())
	}
}

func TestLocation(t *testing.T) {
	cfg := NewConfig()
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("expected UTC, got %v (%v)", loc, err)
	}
}
