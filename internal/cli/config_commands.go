// Package cli provides configuration management commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultlink/vaultlink/internal/config"
	"github.com/vaultlink/vaultlink/internal/session"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage vaultlink configuration",
		Long: `Configuration management commands for vaultlink.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  set   - Change one setting
  keys  - List settable keys
  test  - Test the connection to the storage service
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigSetCmd())
	configCmd.AddCommand(newConfigKeysCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// configPath returns --config or the default location.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for vaultlink.

The configuration is saved to ~/.config/vaultlink/config.ini unless
--config is given. Use --force to overwrite an existing file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(w, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(w, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			fmt.Fprintln(w, "vaultlink Configuration Setup")
			fmt.Fprintln(w, "=============================")
			fmt.Fprintln(w)

			p := newPrompter(cmd)
			cfg := config.NewConfig()

			for attempt := 0; cfg.Server.Address == ""; attempt++ {
				if attempt == 3 {
					return config.ErrMissingAddress
				}
				if cfg.Server.Address, err = p.line("Server address (required)", ""); err != nil {
					return err
				}
				if cfg.Server.Address == "" {
					fmt.Fprintln(w, "  Error: server address is required")
				}
			}
			cfg.Server.Address = strings.TrimRight(cfg.Server.Address, "/")

			if cfg.Session.Username, err = p.line("Username", ""); err != nil {
				return err
			}
			if cfg.Session.PrivateKeyFile, err = p.line("Private key file (needed for downloads)", ""); err != nil {
				return err
			}
			if cfg.Session.DownloadDir, err = p.line("Download directory", "~/Downloads/vaultlink"); err != nil {
				return err
			}
			if cfg.Transfer.MaxConcurrent, err = p.number("Concurrent transfers", cfg.Transfer.MaxConcurrent); err != nil {
				return err
			}

			fmt.Fprintln(w)
			useProxy, err := p.confirm("Configure proxy?")
			if err != nil {
				return err
			}
			if useProxy {
				fmt.Fprintln(w, "Proxy modes: no-proxy, system, basic, ntlm")
				if cfg.Proxy.Mode, err = p.line("Proxy mode", "system"); err != nil {
					return err
				}
				if cfg.Proxy.Mode == "basic" || cfg.Proxy.Mode == "ntlm" {
					if cfg.Proxy.Host, err = p.line("Proxy host", ""); err != nil {
						return err
					}
					if cfg.Proxy.Port, err = p.number("Proxy port", cfg.Proxy.Port); err != nil {
						return err
					}
					if cfg.Proxy.User, err = p.line("Proxy user (password is asked at run time)", ""); err != nil {
						return err
					}
				}
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}
			GetLogger().Info().Str("path", path).Msg("Configuration saved")

			fmt.Fprintln(w)
			fmt.Fprintf(w, "✓ Configuration saved to: %s\n", path)
			fmt.Fprintln(w, "Test your configuration with: vaultlink config test")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// configView is the displayable form of a Config. The proxy password is
// never shown.
type configView struct {
	Server struct {
		Address string `json:"address" yaml:"address"`
		Timeout string `json:"timeout" yaml:"timeout"`
	} `json:"server" yaml:"server"`
	Session struct {
		Username       string `json:"username" yaml:"username"`
		PrivateKeyFile string `json:"private_key_file" yaml:"private_key_file"`
		DownloadDir    string `json:"download_dir" yaml:"download_dir"`
	} `json:"session" yaml:"session"`
	Transfer struct {
		MaxConcurrent int    `json:"max_concurrent" yaml:"max_concurrent"`
		Timeout       string `json:"timeout" yaml:"timeout"`
	} `json:"transfer" yaml:"transfer"`
	Query struct {
		PageSize int    `json:"page_size" yaml:"page_size"`
		DateZone string `json:"date_zone" yaml:"date_zone"`
	} `json:"query" yaml:"query"`
	Proxy struct {
		Mode    string `json:"mode" yaml:"mode"`
		Host    string `json:"host,omitempty" yaml:"host,omitempty"`
		Port    int    `json:"port,omitempty" yaml:"port,omitempty"`
		User    string `json:"user,omitempty" yaml:"user,omitempty"`
		NoProxy string `json:"no_proxy,omitempty" yaml:"no_proxy,omitempty"`
		Warmup  bool   `json:"warmup" yaml:"warmup"`
	} `json:"proxy" yaml:"proxy"`
	Notify struct {
		Desktop bool `json:"desktop" yaml:"desktop"`
	} `json:"notify" yaml:"notify"`
}

func newConfigView(cfg *config.Config) configView {
	var v configView
	v.Server.Address = cfg.Server.Address
	v.Server.Timeout = cfg.Server.Timeout.String()
	v.Session.Username = cfg.Session.Username
	v.Session.PrivateKeyFile = cfg.Session.PrivateKeyFile
	v.Session.DownloadDir = cfg.Session.DownloadDir
	v.Transfer.MaxConcurrent = cfg.Transfer.MaxConcurrent
	v.Transfer.Timeout = cfg.Transfer.Timeout.String()
	v.Query.PageSize = cfg.Query.PageSize
	v.Query.DateZone = cfg.Query.DateZone
	v.Proxy.Mode = cfg.Proxy.Mode
	if cfg.Proxy.Host != "" {
		v.Proxy.Host = cfg.Proxy.Host
		v.Proxy.Port = cfg.Proxy.Port
	}
	v.Proxy.User = cfg.Proxy.User
	v.Proxy.NoProxy = cfg.Proxy.NoProxy
	v.Proxy.Warmup = cfg.Proxy.Warmup
	v.Notify.Desktop = cfg.Notify.Desktop
	return v
}

func orNotSet(s string) string {
	if s == "" {
		return "<not set>"
	}
	return s
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (~/.config/vaultlink/config.ini)
  2. Environment variables (VAULTLINK_ADDRESS, VAULTLINK_USERNAME, ...)
  3. Command-line flags (--address, --username)

Priority: flags > environment > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			v := newConfigView(cfg)
			if ok, err := out.structured(v); ok {
				return err
			}

			tw := out.table()
			fmt.Fprintln(tw, "Server:")
			fmt.Fprintf(tw, "  Address:\t%s\n", orNotSet(v.Server.Address))
			fmt.Fprintf(tw, "  Timeout:\t%s\n", v.Server.Timeout)
			fmt.Fprintln(tw, "Session:")
			fmt.Fprintf(tw, "  Username:\t%s\n", orNotSet(v.Session.Username))
			fmt.Fprintf(tw, "  Private key file:\t%s\n", orNotSet(v.Session.PrivateKeyFile))
			fmt.Fprintf(tw, "  Download directory:\t%s\n", orNotSet(v.Session.DownloadDir))
			fmt.Fprintln(tw, "Transfer:")
			fmt.Fprintf(tw, "  Max concurrent:\t%d\n", v.Transfer.MaxConcurrent)
			fmt.Fprintf(tw, "  Timeout:\t%s\n", v.Transfer.Timeout)
			fmt.Fprintln(tw, "Query:")
			fmt.Fprintf(tw, "  Page size:\t%d\n", v.Query.PageSize)
			fmt.Fprintf(tw, "  Date zone:\t%s\n", v.Query.DateZone)
			fmt.Fprintln(tw, "Proxy:")
			fmt.Fprintf(tw, "  Mode:\t%s\n", v.Proxy.Mode)
			if v.Proxy.Host != "" {
				fmt.Fprintf(tw, "  Host:\t%s:%d\n", v.Proxy.Host, v.Proxy.Port)
			}
			if v.Proxy.User != "" {
				fmt.Fprintf(tw, "  User:\t%s\n", v.Proxy.User)
			}
			if v.Proxy.NoProxy != "" {
				fmt.Fprintf(tw, "  No proxy:\t%s\n", v.Proxy.NoProxy)
			}
			fmt.Fprintln(tw, "Notify:")
			fmt.Fprintf(tw, "  Desktop:\t%t\n", v.Notify.Desktop)
			if err := tw.Flush(); err != nil {
				return err
			}

			path, err := configPath()
			if err != nil {
				return err
			}
			fmt.Fprintf(out.w, "\nConfiguration file: %s\n", path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(out.w, "  (file does not exist - using defaults)")
			}
			return nil
		},
	}

	return cmd
}

// newConfigSetCmd creates the 'config set' command.
func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting",
		Long: `Change one setting in the configuration file.

Keys are written as section.key, for example:
  vaultlink config set server.address https://vault.example.com
  vaultlink config set transfer.max_concurrent 8
  vaultlink config set query.date_zone Europe/Berlin

Run 'vaultlink config keys' for the full list.`,
		Args: cobra.ExactArgs(2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return config.Keys(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			// Only the file is edited; environment and flags are not saved.
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s updated in %s\n", strings.ToLower(args[0]), path)
			return nil
		},
	}
}

// newConfigKeysCmd creates the 'config keys' command.
func newConfigKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List settable configuration keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, k := range config.Keys() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test the connection",
		Long: `Test the connection to the storage service with the current
configuration: fetch the system parameters and the file listing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateForConnection(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			e, err := newEnv(cmd, cfg, session.OpBrowse)
			if err != nil {
				return err
			}
			defer e.close()

			fmt.Fprintf(w, "Server: %s\n", e.client.BaseURL())
			fmt.Fprintln(w, "Testing connection...")

			ctx, cancel := context.WithTimeout(GetContext(), 30*time.Second)
			defer cancel()

			params, err := e.client.SystemParameters(ctx)
			if err != nil {
				fmt.Fprintln(w, "✗ Connection FAILED")
				return fmt.Errorf("connection test failed: %w", err)
			}
			e.sess.SetSystemParams(params)
			snap, err := e.refresh(ctx)
			if err != nil {
				fmt.Fprintln(w, "✗ Listing FAILED")
				return fmt.Errorf("connection test failed: %w", err)
			}
			GetLogger().Info().Int("files", snap.TotalCount).Msg("Connection test successful")

			fmt.Fprintln(w, "✓ Connection SUCCESSFUL")
			fmt.Fprintf(w, "  User %s has %d files\n", e.sess.Username(), snap.TotalCount)
			if err := e.sess.Check(session.OpDownload); err != nil {
				fmt.Fprintf(w, "  Downloads not ready: %v\n", err)
			}
			return nil
		},
	}

	return cmd
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			path, err := configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(w, path)

			if info, err := os.Stat(path); err == nil {
				fmt.Fprintf(w, "Status:   ✓ File exists (%d bytes, modified %s)\n", info.Size(), info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(w, "Status:   File does not exist")
				fmt.Fprintln(w, "Create a configuration file with: vaultlink config init")
			}
			return nil
		},
	}

	return cmd
}
