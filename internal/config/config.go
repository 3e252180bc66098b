// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Session  SessionConfig
	SMTP     SMTPConfig
	OTP      OTPConfig
	Flow     FlowConfig
	Account  AccountConfig
	Cleanup  CleanupConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	CookieName string // Session cookie name
	MaxAge     int    // Session max age in seconds
	HashKey    string // 32-byte hex string for HMAC signing
	BlockKey   string // 32-byte hex string for AES encryption (optional)
}

// SMTPConfig configures outgoing mail. An empty Host selects the log sender.
type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
	Timeout  time.Duration
}

// OTPConfig holds the passcode lifetime and issuance policy.
type OTPConfig struct {
	TTL            time.Duration
	SignupCooldown time.Duration
	ResetCooldown  time.Duration
	MaxAttempts    int
}

// FlowConfig bounds how long an idle signup or reset flow survives.
type FlowConfig struct {
	TTL time.Duration
}

type AccountConfig struct {
	EmailReuseCooldown time.Duration
	PasswordMinLength  int
	BcryptCost         int
}

type CleanupConfig struct {
	Interval               time.Duration
	PasscodeRetention      time.Duration
	PendingSignupRetention time.Duration
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		Session: SessionConfig{
			CookieName: cmd.String("session-cookie-name"),
			MaxAge:     int(cmd.Int("session-max-age")),
			HashKey:    cmd.String("session-hash-key"),
			BlockKey:   cmd.String("session-block-key"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
			Timeout:  cmd.Duration("smtp-timeout"),
		},
		OTP: OTPConfig{
			TTL:            cmd.Duration("otp-ttl"),
			SignupCooldown: cmd.Duration("otp-signup-cooldown"),
			ResetCooldown:  cmd.Duration("otp-reset-cooldown"),
			MaxAttempts:    int(cmd.Int("otp-max-attempts")),
		},
		Flow: FlowConfig{
			TTL: cmd.Duration("flow-ttl"),
		},
		Account: AccountConfig{
			EmailReuseCooldown: cmd.Duration("email-reuse-cooldown"),
			PasswordMinLength:  int(cmd.Int("password-min-length")),
			BcryptCost:         int(cmd.Int("bcrypt-cost")),
		},
		Cleanup: CleanupConfig{
			Interval:               cmd.Duration("cleanup-interval"),
			PasscodeRetention:      cmd.Duration("passcode-retention"),
			PendingSignupRetention: cmd.Duration("pending-signup-retention"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	return cfg
}

// Validate rejects settings the OTP and account services cannot work with.
func (c *Config) Validate() error {
	var errs []error

	if c.OTP.TTL <= 0 {
		errs = append(errs, errors.New("otp ttl must be positive"))
	}
	if c.OTP.SignupCooldown < 0 || c.OTP.ResetCooldown < 0 {
		errs = append(errs, errors.New("otp cooldowns must not be negative"))
	}
	if c.OTP.MaxAttempts < 1 {
		errs = append(errs, errors.New("otp max attempts must be at least 1"))
	}
	if c.Flow.TTL < c.OTP.TTL {
		errs = append(errs, fmt.Errorf("flow ttl %s is shorter than otp ttl %s", c.Flow.TTL, c.OTP.TTL))
	}
	if c.Account.EmailReuseCooldown < 0 {
		errs = append(errs, errors.New("email reuse cooldown must not be negative"))
	}
	if c.Account.PasswordMinLength < 1 {
		errs = append(errs, errors.New("password min length must be at least 1"))
	}
	if c.Cleanup.PasscodeRetention < c.OTP.TTL {
		errs = append(errs, errors.New("passcode retention must cover the otp ttl"))
	}
	if c.Cleanup.PasscodeRetention < max(c.OTP.SignupCooldown, c.OTP.ResetCooldown) {
		errs = append(errs, errors.New("passcode retention must cover the resend cooldowns"))
	}
	if c.Cleanup.Interval <= 0 {
		errs = append(errs, errors.New("cleanup interval must be positive"))
	}

	return errors.Join(errs...)
}

// SecureCookies reports whether cookies should carry the Secure attribute.
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.Server.BaseURL, "https://")
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port

	scheme := "https"
	if IsLocalhost(host) {
		scheme = "http"
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/app.db",
			Usage:   "Database DSN",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		// Session flags
		&cli.StringFlag{
			Name:    "session-cookie-name",
			Value:   "_session",
			Usage:   "Session cookie name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_COOKIE_NAME"), toml.TOML("session.cookie_name", configFile)),
		},
		&cli.IntFlag{
			Name:    "session-max-age",
			Value:   604800, // 7 days in seconds
			Usage:   "Session max age in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_MAX_AGE"), toml.TOML("session.max_age", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "Session hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_HASH_KEY"), toml.TOML("session.hash_key", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Session block key for encryption (32-byte hex, optional)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_BLOCK_KEY"), toml.TOML("session.block_key", configFile)),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host (empty logs mails instead of sending them)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Value:   "noreply@localhost",
			Usage:   "Sender address",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "Resumekit",
			Usage:   "Sender display name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP (implicit TLS on port 465, STARTTLS otherwise)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		&cli.DurationFlag{
			Name:    "smtp-timeout",
			Value:   10 * time.Second,
			Usage:   "Timeout for a single SMTP delivery",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TIMEOUT"), toml.TOML("smtp.timeout", configFile)),
		},
		// OTP flags
		&cli.DurationFlag{
			Name:    "otp-ttl",
			Value:   10 * time.Minute,
			Usage:   "How long an issued passcode stays valid",
			Sources: cli.NewValueSourceChain(cli.EnvVar("OTP_TTL"), toml.TOML("otp.ttl", configFile)),
		},
		&cli.DurationFlag{
			Name:    "otp-signup-cooldown",
			Value:   60 * time.Second,
			Usage:   "Minimum time between signup passcodes for the same email",
			Sources: cli.NewValueSourceChain(cli.EnvVar("OTP_SIGNUP_COOLDOWN"), toml.TOML("otp.signup_cooldown", configFile)),
		},
		&cli.DurationFlag{
			Name:    "otp-reset-cooldown",
			Value:   60 * time.Second,
			Usage:   "Minimum time between password reset passcodes for the same email",
			Sources: cli.NewValueSourceChain(cli.EnvVar("OTP_RESET_COOLDOWN"), toml.TOML("otp.reset_cooldown", configFile)),
		},
		&cli.IntFlag{
			Name:    "otp-max-attempts",
			Value:   5,
			Usage:   "Failed verifications allowed before a flow must restart",
			Sources: cli.NewValueSourceChain(cli.EnvVar("OTP_MAX_ATTEMPTS"), toml.TOML("otp.max_attempts", configFile)),
		},
		&cli.DurationFlag{
			Name:    "flow-ttl",
			Value:   30 * time.Minute,
			Usage:   "Idle lifetime of a signup or password reset flow",
			Sources: cli.NewValueSourceChain(cli.EnvVar("FLOW_TTL"), toml.TOML("flow.ttl", configFile)),
		},
		// Account flags
		&cli.DurationFlag{
			Name:    "email-reuse-cooldown",
			Value:   30 * 24 * time.Hour,
			Usage:   "How long the email of a deleted account stays blocked",
			Sources: cli.NewValueSourceChain(cli.EnvVar("EMAIL_REUSE_COOLDOWN"), toml.TOML("account.email_reuse_cooldown", configFile)),
		},
		&cli.IntFlag{
			Name:    "password-min-length",
			Value:   8,
			Usage:   "Minimum password length",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PASSWORD_MIN_LENGTH"), toml.TOML("account.password_min_length", configFile)),
		},
		&cli.IntFlag{
			Name:    "bcrypt-cost",
			Value:   12,
			Usage:   "bcrypt cost for password hashes",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BCRYPT_COST"), toml.TOML("account.bcrypt_cost", configFile)),
		},
		// Cleanup flags
		&cli.DurationFlag{
			Name:    "cleanup-interval",
			Value:   time.Hour,
			Usage:   "Interval between housekeeping sweeps",
			Sources: cli.NewValueSourceChain(cli.EnvVar("CLEANUP_INTERVAL"), toml.TOML("cleanup.interval", configFile)),
		},
		&cli.DurationFlag{
			Name:    "passcode-retention",
			Value:   24 * time.Hour,
			Usage:   "How long passcode records are kept after issuance",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PASSCODE_RETENTION"), toml.TOML("cleanup.passcode_retention", configFile)),
		},
		&cli.DurationFlag{
			Name:    "pending-signup-retention",
			Value:   24 * time.Hour,
			Usage:   "How long pending signups are kept",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PENDING_SIGNUP_RETENTION"), toml.TOML("cleanup.pending_signup_retention", configFile)),
		},
	}
}
