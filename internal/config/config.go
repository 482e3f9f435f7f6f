// Package config provides configuration management for vaultlink.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/vaultlink/vaultlink/internal/constants"
)

// Config is the on-disk client configuration.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\vaultlink\config.ini
//   - Unix: ~/.config/vaultlink/config.ini
//
// INI format:
//
//	[server]
//	address = https://files.example.com
//	timeout = 60s
//
//	[session]
//	username = alice
//	private_key_file = ~/.config/vaultlink/alice.key
//	download_dir = ~/Downloads/vaultlink
//
//	[transfer]
//	max_concurrent = 5
//	timeout = 0s
//
//	[query]
//	page_size = 20
//	date_zone = UTC
//
//	[proxy]
//	mode = no-proxy
//	host =
//	port = 8080
//	user =
//	no_proxy = localhost,127.0.0.1
//	warmup = false
//
//	[notify]
//	desktop = false
type Config struct {
	Server   ServerConfig
	Session  SessionConfig
	Transfer TransferConfig
	Query    QueryConfig
	Proxy    ProxyConfig
	Notify   NotifyConfig
}

// ServerConfig holds the storage service connection settings.
type ServerConfig struct {
	Address string
	Timeout time.Duration
}

// SessionConfig holds identity and local paths. The private key itself is
// never stored here, only the path to it.
type SessionConfig struct {
	Username       string
	PrivateKeyFile string
	DownloadDir    string
}

// TransferConfig tunes the transfer supervisor.
type TransferConfig struct {
	MaxConcurrent int
	Timeout       time.Duration // 0 disables the per-attempt timeout
}

// QueryConfig holds catalog browsing defaults.
type QueryConfig struct {
	PageSize int
	DateZone string // IANA zone used to derive upload days
}

// ProxyConfig describes how outbound HTTP reaches the server.
type ProxyConfig struct {
	Mode     string // no-proxy, system, basic, ntlm
	Host     string
	Port     int
	User     string
	Password string // never persisted
	NoProxy  string
	Warmup   bool
}

// NotifyConfig controls transfer notifications.
type NotifyConfig struct {
	Desktop bool // also raise desktop notifications
}

// Validation errors
var (
	ErrMissingAddress       = errors.New("server address is required")
	ErrInvalidAddress       = errors.New("server address must start with http:// or https://")
	ErrInvalidPageSize      = fmt.Errorf("page_size must be between 1 and %d", constants.MaxPageSize)
	ErrInvalidMaxConcurrent = fmt.Errorf("max_concurrent must be between 1 and %d", constants.MaxMaxConcurrent)
	ErrInvalidTimeout       = errors.New("timeouts must not be negative")
	ErrInvalidProxyMode     = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
	ErrMissingProxyHost     = errors.New("proxy host is required for basic and ntlm modes")
	ErrInvalidDateZone      = errors.New("date_zone is not a known time zone")
)

// Environment overrides
const (
	EnvAddress        = "VAULTLINK_ADDRESS"
	EnvUsername       = "VAULTLINK_USERNAME"
	EnvPrivateKeyFile = "VAULTLINK_PRIVATE_KEY_FILE"
	EnvDownloadDir    = "VAULTLINK_DOWNLOAD_DIR"
)

// DefaultConfigPath returns the default path for the config file.
func DefaultConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.ini"), nil
}

func configDir() (string, error) {
	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		return filepath.Join(userProfile, ".config", "vaultlink"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "vaultlink"), nil
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Timeout: constants.DefaultAPITimeout,
		},
		Transfer: TransferConfig{
			MaxConcurrent: constants.DefaultMaxConcurrent,
			Timeout:       constants.DefaultTransferTimeout,
		},
		Query: QueryConfig{
			PageSize: constants.DefaultPageSize,
			DateZone: "UTC",
		},
		Proxy: ProxyConfig{
			Mode: "no-proxy",
			Port: 8080,
		},
	}
}

// Load reads configuration from an INI file.
// A missing file yields defaults and no error.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	server := iniFile.Section("server")
	cfg.Server.Address = strings.TrimRight(server.Key("address").String(), "/")
	cfg.Server.Timeout = server.Key("timeout").MustDuration(cfg.Server.Timeout)

	session := iniFile.Section("session")
	cfg.Session.Username = session.Key("username").String()
	cfg.Session.PrivateKeyFile = expandHome(session.Key("private_key_file").String())
	cfg.Session.DownloadDir = expandHome(session.Key("download_dir").String())

	transfer := iniFile.Section("transfer")
	cfg.Transfer.MaxConcurrent = transfer.Key("max_concurrent").MustInt(cfg.Transfer.MaxConcurrent)
	cfg.Transfer.Timeout = transfer.Key("timeout").MustDuration(cfg.Transfer.Timeout)

	query := iniFile.Section("query")
	cfg.Query.PageSize = query.Key("page_size").MustInt(cfg.Query.PageSize)
	cfg.Query.DateZone = query.Key("date_zone").MustString(cfg.Query.DateZone)

	proxy := iniFile.Section("proxy")
	cfg.Proxy.Mode = proxy.Key("mode").MustString(cfg.Proxy.Mode)
	cfg.Proxy.Host = proxy.Key("host").String()
	cfg.Proxy.Port = proxy.Key("port").MustInt(cfg.Proxy.Port)
	cfg.Proxy.User = proxy.Key("user").String()
	cfg.Proxy.NoProxy = proxy.Key("no_proxy").String()
	cfg.Proxy.Warmup = proxy.Key("warmup").MustBool(false)

	cfg.Notify.Desktop = iniFile.Section("notify").Key("desktop").MustBool(false)

	return cfg, nil
}

// Save writes configuration to an INI file with owner-only permissions.
// The proxy password is not written.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()
	sections := []struct {
		name string
		keys [][2]string
	}{
		{"server", [][2]string{
			{"address", cfg.Server.Address},
			{"timeout", cfg.Server.Timeout.String()},
		}},
		{"session", [][2]string{
			{"username", cfg.Session.Username},
			{"private_key_file", cfg.Session.PrivateKeyFile},
			{"download_dir", cfg.Session.DownloadDir},
		}},
		{"transfer", [][2]string{
			{"max_concurrent", fmt.Sprintf("%d", cfg.Transfer.MaxConcurrent)},
			{"timeout", cfg.Transfer.Timeout.String()},
		}},
		{"query", [][2]string{
			{"page_size", fmt.Sprintf("%d", cfg.Query.PageSize)},
			{"date_zone", cfg.Query.DateZone},
		}},
		{"proxy", [][2]string{
			{"mode", cfg.Proxy.Mode},
			{"host", cfg.Proxy.Host},
			{"port", fmt.Sprintf("%d", cfg.Proxy.Port)},
			{"user", cfg.Proxy.User},
			{"no_proxy", cfg.Proxy.NoProxy},
			{"warmup", fmt.Sprintf("%t", cfg.Proxy.Warmup)},
		}},
		{"notify", [][2]string{
			{"desktop", fmt.Sprintf("%t", cfg.Notify.Desktop)},
		}},
	}
	for _, sec := range sections {
		section, err := iniFile.NewSection(sec.name)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", sec.name, err)
		}
		for _, kv := range sec.keys {
			section.Key(kv[0]).SetValue(kv[1])
		}
	}

	// temporary file + rename for atomicity
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// ApplyEnv overrides settings from VAULTLINK_* environment variables.
func (cfg *Config) ApplyEnv() {
	if v := os.Getenv(EnvAddress); v != "" {
		cfg.Server.Address = strings.TrimRight(v, "/")
	}
	if v := os.Getenv(EnvUsername); v != "" {
		cfg.Session.Username = v
	}
	if v := os.Getenv(EnvPrivateKeyFile); v != "" {
		cfg.Session.PrivateKeyFile = expandHome(v)
	}
	if v := os.Getenv(EnvDownloadDir); v != "" {
		cfg.Session.DownloadDir = expandHome(v)
	}
}

// Validate checks ranges and formats. Missing session fields are not an
// error here; they are reported per operation by the session package.
func (cfg *Config) Validate() error {
	if addr := strings.TrimSpace(cfg.Server.Address); addr != "" &&
		!strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		return ErrInvalidAddress
	}
	if cfg.Query.PageSize < 1 || cfg.Query.PageSize > constants.MaxPageSize {
		return ErrInvalidPageSize
	}
	if cfg.Transfer.MaxConcurrent < 1 || cfg.Transfer.MaxConcurrent > constants.MaxMaxConcurrent {
		return ErrInvalidMaxConcurrent
	}
	if cfg.Transfer.Timeout < 0 || cfg.Server.Timeout < 0 {
		return ErrInvalidTimeout
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}

	switch strings.ToLower(cfg.Proxy.Mode) {
	case "", "no-proxy", "system":
	case "basic", "ntlm":
		if strings.TrimSpace(cfg.Proxy.Host) == "" {
			return ErrMissingProxyHost
		}
	default:
		return ErrInvalidProxyMode
	}
	return nil
}

// ValidateForConnection checks only that a usable server address is set.
func (cfg *Config) ValidateForConnection() error {
	if strings.TrimSpace(cfg.Server.Address) == "" {
		return ErrMissingAddress
	}
	return cfg.Validate()
}

// Location resolves Query.DateZone.
func (cfg *Config) Location() (*time.Location, error) {
	if cfg.Query.DateZone == "" || strings.EqualFold(cfg.Query.DateZone, "UTC") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(cfg.Query.DateZone)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDateZone, cfg.Query.DateZone)
	}
	return loc, nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
