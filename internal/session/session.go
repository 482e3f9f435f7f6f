// Package session carries the per-login context (server address, identity,
// credentials and local paths) explicitly into each component instead of
// through globals. A Session is created at login and cleared at logout.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/vaultlink/vaultlink/internal/config"
	"github.com/vaultlink/vaultlink/internal/errs"
)

// Operation names what the caller is about to do; each needs a different
// subset of the session.
type Operation int

const (
	OpBrowse Operation = iota // list and delete
	OpUpload
	OpDownload
)

func (o Operation) String() string {
	switch o {
	case OpBrowse:
		return "browse"
	case OpUpload:
		return "upload"
	case OpDownload:
		return "download"
	}
	return "unknown"
}

// Parameter names reported in ConfigError.Missing.
const (
	ParamAddress      = "server address"
	ParamSystemParams = "system parameters"
	ParamUsername     = "username"
	ParamPrivateKey   = "private key"
	ParamDownloadDir  = "download directory"
)

// Session is safe for concurrent use.
type Session struct {
	mu           sync.RWMutex
	address      string
	username     string
	credentials  []byte
	downloadDir  string
	systemParams json.RawMessage
}

// New creates a session from explicit values.
func New(address, username string, credentials []byte, downloadDir string) *Session {
	return &Session{
		address:     strings.TrimRight(address, "/"),
		username:    username,
		credentials: credentials,
		downloadDir: downloadDir,
	}
}

// FromConfig builds a session from configuration, reading the private key
// file when one is configured.
func FromConfig(cfg *config.Config) (*Session, error) {
	var creds []byte
	if path := cfg.Session.PrivateKeyFile; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		creds = []byte(strings.TrimSpace(string(data)))
	}
	return New(cfg.Server.Address, cfg.Session.Username, creds, cfg.Session.DownloadDir), nil
}

// Address returns the server base address without a trailing slash.
func (s *Session) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// Username returns the logged-in user.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// Credentials returns the opaque credential blob handed to the transfer provider.
func (s *Session) Credentials() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credentials
}

// DownloadDir returns the local directory downloads are saved to.
func (s *Session) DownloadDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.downloadDir
}

// SystemParams returns the server-issued parameters, nil until set.
func (s *Session) SystemParams() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.systemParams
}

// SetSystemParams stores the parameters fetched from the server.
func (s *Session) SetSystemParams(p json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.systemParams = p
}

// Clear wipes every field (logout).
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.credentials {
		s.credentials[i] = 0
	}
	s.address, s.username, s.downloadDir = "", "", ""
	s.credentials = nil
	s.systemParams = nil
}

// Check returns an *errs.ConfigError naming every parameter op needs that
// is missing, or nil. A nil session is missing everything.
func (s *Session) Check(op Operation) error {
	if s == nil {
		return &errs.ConfigError{Missing: required(op)}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	present := map[string]bool{
		ParamAddress:      s.address != "",
		ParamSystemParams: len(s.systemParams) > 0,
		ParamUsername:     s.username != "",
		ParamPrivateKey:   len(s.credentials) > 0,
		ParamDownloadDir:  s.downloadDir != "",
	}

	var missing []string
	for _, p := range required(op) {
		if !present[p] {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return &errs.ConfigError{Missing: missing}
	}
	return nil
}

func required(op Operation) []string {
	switch op {
	case OpUpload:
		return []string{ParamAddress, ParamSystemParams, ParamUsername}
	case OpDownload:
		return []string{ParamAddress, ParamSystemParams, ParamUsername, ParamPrivateKey, ParamDownloadDir}
	default:
		return []string{ParamAddress, ParamUsername}
	}
}
