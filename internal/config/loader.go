package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "DESK_APP"

// Config captures configuration values for the desk reservation service.
type Config struct {
	HTTPPort           int
	DataFile           string
	BackupDir          string
	LockFile           string
	LockTimeout        time.Duration
	LockRetryDelay     time.Duration
	OTPTTL             time.Duration
	OTPMaxAttempts     int
	OTPLength          int
	SessionTTL         time.Duration
	AllowedEmailDomain string
	OTPRatePerMinute   int
	LogLevel           string
	LogFormat          string
	SMTP               SMTPConfig
}

// SMTPConfig holds outbound mail settings. An empty Host disables SMTP and
// codes are written to the log instead.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", 8080)
	v.SetDefault("data_file", "data/reservations.xlsx")
	v.SetDefault("backup_dir", "data/backups")
	v.SetDefault("lock_file", "data/reservations.lock")
	v.SetDefault("lock_timeout", "10s")
	v.SetDefault("lock_retry_delay", "50ms")
	v.SetDefault("otp_ttl_minutes", 10)
	v.SetDefault("otp_max_attempts", 5)
	v.SetDefault("otp_length", 6)
	v.SetDefault("session_ttl_hours", 12)
	v.SetDefault("allowed_email_domain", "ide-tech.com")
	v.SetDefault("otp_rate_per_minute", 5)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("smtp_host", "")
	v.SetDefault("smtp_port", 587)
	v.SetDefault("smtp_username", "")
	v.SetDefault("smtp_password", "")
	v.SetDefault("smtp_from", "noreply@ide-tech.com")
}

// Load reads configuration from defaults, the optional YAML file and the
// environment, in increasing order of precedence.
//
// Environment variables use the DESK_APP_ prefix (DESK_APP_HTTP_PORT). The
// SMTP settings additionally accept the unprefixed SMTP_HOST, SMTP_PORT,
// SMTP_USERNAME, SMTP_PASSWORD and SMTP_FROM variables. Every missing or
// invalid value is reported in a single error.
func Load(file string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"smtp_host", "smtp_port", "smtp_username", "smtp_password", "smtp_from"} {
		upper := strings.ToUpper(key)
		if err := v.BindEnv(key, EnvPrefix+"_"+upper, upper); err != nil {
			return Config{}, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 4)

	positiveInt := func(key string) int {
		raw := strings.TrimSpace(v.GetString(key))
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			invalid = append(invalid, key)
			return 0
		}
		return value
	}
	duration := func(key string) time.Duration {
		raw := strings.TrimSpace(v.GetString(key))
		value, err := time.ParseDuration(raw)
		if err != nil || value <= 0 {
			invalid = append(invalid, key)
			return 0
		}
		return value
	}
	required := func(key string) string {
		value := strings.TrimSpace(v.GetString(key))
		if value == "" {
			missing = append(missing, key)
		}
		return value
	}

	cfg := Config{
		HTTPPort:           positiveInt("http_port"),
		DataFile:           required("data_file"),
		BackupDir:          strings.TrimSpace(v.GetString("backup_dir")),
		LockFile:           strings.TrimSpace(v.GetString("lock_file")),
		LockTimeout:        duration("lock_timeout"),
		LockRetryDelay:     duration("lock_retry_delay"),
		OTPTTL:             time.Duration(positiveInt("otp_ttl_minutes")) * time.Minute,
		OTPMaxAttempts:     positiveInt("otp_max_attempts"),
		OTPLength:          positiveInt("otp_length"),
		SessionTTL:         time.Duration(positiveInt("session_ttl_hours")) * time.Hour,
		AllowedEmailDomain: strings.ToLower(strings.TrimPrefix(strings.TrimSpace(v.GetString("allowed_email_domain")), "@")),
		OTPRatePerMinute:   positiveInt("otp_rate_per_minute"),
		LogLevel:           strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
		LogFormat:          strings.ToLower(strings.TrimSpace(v.GetString("log_format"))),
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(v.GetString("smtp_host")),
			Port:     positiveInt("smtp_port"),
			Username: v.GetString("smtp_username"),
			Password: v.GetString("smtp_password"),
			From:     strings.TrimSpace(v.GetString("smtp_from")),
		},
	}

	if cfg.HTTPPort > 65535 {
		invalid = append(invalid, "http_port")
	}
	if cfg.SMTP.Host != "" && cfg.SMTP.From == "" {
		missing = append(missing, "smtp_from")
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		invalid = append(invalid, "log_format")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		invalid = append(invalid, "log_level")
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", ")))
	}
	if len(invalid) > 0 {
		errs = append(errs, fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", ")))
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}

	return cfg, nil
}
