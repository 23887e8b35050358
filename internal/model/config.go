package model

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/viper"
)

// MailConfig holds the mailbox account settings.
type MailConfig struct {
	Username string `mapstructure:"gmail_account_email"`
	Password string `mapstructure:"gmail_account_password"`
	Host     string `mapstructure:"imap_host"`
	Port     string `mapstructure:"imap_port"`

	// TLS selects implicit TLS; false means STARTTLS on a plain connection.
	TLS bool `mapstructure:"imap_tls"`
}

// CalendarConfig holds the calendar target and the OAuth credential locations.
type CalendarConfig struct {
	CalendarID       string `mapstructure:"google_calendar_id"`
	ClientSecretPath string `mapstructure:"client_secret_path"`

	// TokenDir is where the file keyring backend keeps the cached token.
	TokenDir string `mapstructure:"token_dir"`

	// KeyringBackend is "file" or "system" (OS keychain / secret service).
	KeyringBackend string `mapstructure:"keyring_backend"`
}

// MarkerConfig holds the sentinel tokens that delimit the description and
// date fields inside a message body. Empty fields keep the extractor's
// defaults.
type MarkerConfig struct {
	Description string `mapstructure:"marker_description"`
	Date        string `mapstructure:"marker_date"`
	Delimiter   string `mapstructure:"marker_delimiter"`
}

// AppConfig is the top-level application configuration. Every key maps to an
// environment variable of the same name in upper case.
type AppConfig struct {
	Mail     MailConfig     `mapstructure:",squash"`
	Calendar CalendarConfig `mapstructure:",squash"`
	Markers  MarkerConfig   `mapstructure:",squash"`

	LedgerPath string `mapstructure:"ledger_path"`

	// HistoryPath is the SQLite run history file. Empty disables history.
	HistoryPath string `mapstructure:"history_path"`

	LogLevel string `mapstructure:"log_level"`
}

var configDefaults = map[string]any{
	"gmail_account_email":    "",
	"gmail_account_password": "",
	"imap_host":              "imap.gmail.com",
	"imap_port":              "993",
	"imap_tls":               true,
	"google_calendar_id":     "primary",
	"client_secret_path":     "google_client_secret.json",
	"token_dir":              ".",
	"keyring_backend":        "file",
	"marker_description":     "",
	"marker_date":            "",
	"marker_delimiter":       "",
	"ledger_path":            "bday_cal_entries.csv",
	"history_path":           "bdaycal.db",
	"log_level":              "info",
}

// LoadConfig reads configuration from an optional dotenv file at path and
// from the process environment using Viper. Environment variables win over
// the file. A missing file is not an error. The account settings are not
// validated here; a missing value surfaces later as an authentication
// failure.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Every key needs a default so AutomaticEnv values reach Unmarshal.
	for key, value := range configDefaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var pathErr *fs.PathError
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Calendar.CalendarID == "" {
		cfg.Calendar.CalendarID = "primary"
	}

	return cfg, nil
}
