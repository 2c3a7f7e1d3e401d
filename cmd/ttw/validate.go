package main

import (
	"fmt"
	"io"
	"reflect"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/ttw/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the ttw configuration file for syntax and semantic errors.`,
	Args:  rangeArgs(0, 0),
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	// The tracker's rules apply: the file must exist and be complete
	cfg, err := config.LoadForDaemon(configPath)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "❌ Configuration validation failed: %v\n", err)
		return err
	}

	// Check for unknown keys
	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(out, "✅ Configuration is valid: %s\n", configPath)

	// Warn about unknown keys
	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(out)
		_, _ = red.Fprintf(out, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(out, "   - %s\n", key)
		}
		fmt.Fprintln(out, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	// If dump requested, show full configuration with defaults highlighted
	if validateDump {
		_, _ = fmt.Fprintln(out, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(out, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(out, strings.Repeat("=", 80))

		dumpConfig(out, cfg, config.Default())
	}

	return nil
}

// findUnknownKeys loads the config file and checks for unknown keys
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	validKeys := config.Keys()

	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !validKeys[key] {
			unknown = append(unknown, key)
		}
	}
	slices.Sort(unknown)

	return unknown, nil
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(w io.Writer, cfg, defaultCfg *config.Config) {
	cyan := color.New(color.FgCyan, color.Bold)
	d := dumper{w: w, modified: color.New(color.FgYellow, color.Bold), unchanged: color.New(color.FgGreen)}

	// Storage
	_, _ = cyan.Fprintln(w, "\n[storage]")
	d.field("  type", cfg.Storage.Type, defaultCfg.Storage.Type)
	d.field("  path", cfg.Storage.Path, defaultCfg.Storage.Path)
	_, _ = cyan.Fprintln(w, "  [storage.redis]")
	d.field("    host", cfg.Storage.Redis.Host, defaultCfg.Storage.Redis.Host)
	d.field("    port", cfg.Storage.Redis.Port, defaultCfg.Storage.Redis.Port)
	d.field("    password", redactPassword(cfg.Storage.Redis.Password), redactPassword(defaultCfg.Storage.Redis.Password))
	d.field("    db", cfg.Storage.Redis.DB, defaultCfg.Storage.Redis.DB)
	d.field("    key", cfg.Storage.Redis.Key, defaultCfg.Storage.Redis.Key)
	d.field("    dial_timeout", cfg.Storage.Redis.DialTimeout, defaultCfg.Storage.Redis.DialTimeout)
	d.field("    read_timeout", cfg.Storage.Redis.ReadTimeout, defaultCfg.Storage.Redis.ReadTimeout)
	d.field("    write_timeout", cfg.Storage.Redis.WriteTimeout, defaultCfg.Storage.Redis.WriteTimeout)

	// Tracker
	_, _ = cyan.Fprintln(w, "\n[tracker]")
	d.field("  poll_interval", cfg.Tracker.PollInterval, defaultCfg.Tracker.PollInterval)
	d.field("  idle_threshold", cfg.Tracker.IdleThreshold, defaultCfg.Tracker.IdleThreshold)
	d.field("  startup_attempts", cfg.Tracker.StartupAttempts, defaultCfg.Tracker.StartupAttempts)
	d.field("  startup_backoff", cfg.Tracker.StartupBackoff, defaultCfg.Tracker.StartupBackoff)

	// Observer
	_, _ = cyan.Fprintln(w, "\n[observer]")
	d.field("  window_command", cfg.Observer.WindowCommand, defaultCfg.Observer.WindowCommand)
	d.field("  idle_command", cfg.Observer.IdleCommand, defaultCfg.Observer.IdleCommand)
	d.field("  playback_command", cfg.Observer.PlaybackCommand, defaultCfg.Observer.PlaybackCommand)
	d.field("  playback_override", cfg.Observer.PlaybackOverride, defaultCfg.Observer.PlaybackOverride)

	// Instance
	_, _ = cyan.Fprintln(w, "\n[instance]")
	d.field("  lock_path", cfg.Instance.LockPath, defaultCfg.Instance.LockPath)

	// Logging
	_, _ = cyan.Fprintln(w, "\n[logging]")
	d.field("  level", cfg.Logging.Level, defaultCfg.Logging.Level)
	d.field("  format", cfg.Logging.Format, defaultCfg.Logging.Format)

	// Metrics
	_, _ = cyan.Fprintln(w, "\n[metrics]")
	d.field("  enabled", cfg.Metrics.Enabled, defaultCfg.Metrics.Enabled)
	d.field("  listen_address", cfg.Metrics.ListenAddress, defaultCfg.Metrics.ListenAddress)

	// Summary
	_, _ = cyan.Fprintln(w, "\n[summary]")
	d.field("  daily_time", cfg.Summary.DailyTime, defaultCfg.Summary.DailyTime)
	d.field("  top", cfg.Summary.Top, defaultCfg.Summary.Top)

	_, _ = fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
}

type dumper struct {
	w         io.Writer
	modified  *color.Color
	unchanged *color.Color
}

// field prints a field with color if it differs from default
func (d dumper) field(name string, value, defaultValue any) {
	valueStr := fmt.Sprintf("%v", value)

	if reflect.DeepEqual(value, defaultValue) {
		_, _ = d.unchanged.Fprintf(d.w, "%s = %s\n", name, valueStr)
	} else {
		_, _ = d.modified.Fprintf(d.w, "%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// redactPassword redacts password if not empty
func redactPassword(password string) string {
	if password == "" {
		return ""
	}
	return "***REDACTED***"
}
