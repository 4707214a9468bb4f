// Package config parses process configuration from flags and environment
// variables, following the teacher repo's cobra/pflag/viper wiring. No
// config file is read.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const releaseVersion = "0.1.0"

// Config holds every knob the process accepts. Fields map directly onto
// spec.md §6 "Process config": listen address, database path, optional TLS
// material, static asset directory, and the rate-limit bucket size (stored
// only — enforcing a rate limiter is an external collaborator per spec.md §1).
type Config struct {
	Bind string
	Port int

	DatabasePath string

	TLSCert string
	TLSKey  string

	StaticAssetDir  string
	RateLimitBucket int

	DisconnectGrace time.Duration
	SessionTTL      time.Duration
	NonceTTL        time.Duration

	Profile bool
	Verbose bool
	Version bool
}

func (c *Config) Validate() error {
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.DatabasePath == "" {
		return errors.New("--db must not be empty")
	}
	if c.RateLimitBucket < 0 {
		return errors.New("--rate-limit-bucket must not be negative")
	}
	return nil
}

func (c *Config) Scheme() string {
	if c.TLSCert != "" && c.TLSKey != "" {
		return "https"
	}
	return "http"
}

// NewCommand builds the root cobra command, binding flags to env vars under
// the TURNSERVER_ prefix exactly as the teacher binds PARTYBOX_*.
func NewCommand(cfg *Config, run func(cmd *cobra.Command, args []string) error) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("TURNSERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "turnserver",
		Short:         "Authenticated real-time server for turn-based two-player games.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: TURNSERVER_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: TURNSERVER_PORT)")
	fs.StringVar(&cfg.DatabasePath, "db", "turnserver.sqlite3", "path to the sqlite database file (env: TURNSERVER_DB)")
	fs.StringVar(&cfg.TLSCert, "tls-cert", "", "path to tls certificate (env: TURNSERVER_TLS_CERT)")
	fs.StringVar(&cfg.TLSKey, "tls-key", "", "path to tls keyfile (env: TURNSERVER_TLS_KEY)")
	fs.StringVar(&cfg.StaticAssetDir, "static-dir", "", "directory of static client assets, served by an external file server (env: TURNSERVER_STATIC_DIR)")
	fs.IntVar(&cfg.RateLimitBucket, "rate-limit-bucket", 60, "per-IP rate-limit bucket size, consumed by external middleware (env: TURNSERVER_RATE_LIMIT_BUCKET)")
	fs.DurationVar(&cfg.DisconnectGrace, "disconnect-grace", 30*time.Second, "grace period before an unexpected disconnect forfeits a match (env: TURNSERVER_DISCONNECT_GRACE)")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", 24*time.Hour, "bearer session token lifetime (env: TURNSERVER_SESSION_TTL)")
	fs.DurationVar(&cfg.NonceTTL, "nonce-ttl", 60*time.Second, "challenge nonce lifetime (env: TURNSERVER_NONCE_TTL)")
	fs.BoolVar(&cfg.Profile, "profile", false, "register net/http/pprof handlers (env: TURNSERVER_PROFILE)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "display additional output (env: TURNSERVER_VERBOSE)")
	fs.BoolVarP(&cfg.Version, "version", "V", false, "display version and exit (env: TURNSERVER_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("turnserver v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
