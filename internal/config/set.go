package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// setters maps "section.key" to a parser writing into Config.
var setters = map[string]func(cfg *Config, v string) error{
	"server.address": func(cfg *Config, v string) error {
		cfg.Server.Address = strings.TrimRight(v, "/")
		return nil
	},
	"server.timeout":           durationSetter(func(cfg *Config) *time.Duration { return &cfg.Server.Timeout }),
	"session.username":         stringSetter(func(cfg *Config) *string { return &cfg.Session.Username }),
	"session.private_key_file": func(cfg *Config, v string) error { cfg.Session.PrivateKeyFile = expandHome(v); return nil },
	"session.download_dir":     func(cfg *Config, v string) error { cfg.Session.DownloadDir = expandHome(v); return nil },
	"transfer.max_concurrent":  intSetter(func(cfg *Config) *int { return &cfg.Transfer.MaxConcurrent }),
	"transfer.timeout":         durationSetter(func(cfg *Config) *time.Duration { return &cfg.Transfer.Timeout }),
	"query.page_size":          intSetter(func(cfg *Config) *int { return &cfg.Query.PageSize }),
	"query.date_zone":          stringSetter(func(cfg *Config) *string { return &cfg.Query.DateZone }),
	"proxy.mode":               stringSetter(func(cfg *Config) *string { return &cfg.Proxy.Mode }),
	"proxy.host":               stringSetter(func(cfg *Config) *string { return &cfg.Proxy.Host }),
	"proxy.port":               intSetter(func(cfg *Config) *int { return &cfg.Proxy.Port }),
	"proxy.user":               stringSetter(func(cfg *Config) *string { return &cfg.Proxy.User }),
	"proxy.no_proxy":           stringSetter(func(cfg *Config) *string { return &cfg.Proxy.NoProxy }),
	"proxy.warmup":             boolSetter(func(cfg *Config) *bool { return &cfg.Proxy.Warmup }),
	"notify.desktop":           boolSetter(func(cfg *Config) *bool { return &cfg.Notify.Desktop }),
}

func stringSetter(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}
}

func intSetter(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}
}

func boolSetter(field func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}
}

func durationSetter(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}
}

// Keys lists every settable key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set assigns a value by "section.key" name and re-validates the result.
func (cfg *Config) Set(key, value string) error {
	set, ok := setters[strings.ToLower(key)]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	if err := set(cfg, strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return cfg.Validate()
}
