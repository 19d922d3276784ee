package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.yaml.in/yaml/v4"
)

// ErrMissing is returned (wrapped with the setting name) when a required
// setting is absent from both the config file and the environment.
var ErrMissing = errors.New("missing required setting")

// Config is the top-level application configuration.
type Config struct {
	LogLevel            string  `yaml:"log_level"`
	Provider            string  `yaml:"provider"` // "gmail" or "imap"
	NewLabel            string  `yaml:"new_label"`
	OldLabel            string  `yaml:"old_label"`
	PollIntervalSeconds int     `yaml:"poll_interval_seconds"`
	Webhook             Webhook `yaml:"webhook"`
	Gmail               Gmail   `yaml:"gmail"`
	IMAP                IMAP    `yaml:"imap"`
}

// Webhook holds the chat webhook delivery settings.
type Webhook struct {
	URL          string `yaml:"url"`
	Username     string `yaml:"username"`
	AvatarURL    string `yaml:"avatar_url"`
	ErrorMessage string `yaml:"error_message"`
	DelaySeconds *int   `yaml:"delay_seconds"`
}

// Gmail holds the Gmail API credential settings.
type Gmail struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	TokenStore      string `yaml:"token_store"` // "file" or "keyring"
	KeyringService  string `yaml:"keyring_service"`
}

// IMAP describes an IMAP account whose folders act as labels.
type IMAP struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   bool   `yaml:"use_tls"`
}

// Delay returns the pause between webhook batches, defaulting to one second.
func (w *Webhook) Delay() time.Duration {
	if w.DelaySeconds == nil {
		return time.Second
	}
	if *w.DelaySeconds <= 0 {
		return 0
	}
	return time.Duration(*w.DelaySeconds) * time.Second
}

// Extra returns the display fields merged into every webhook payload.
func (w *Webhook) Extra() map[string]any {
	return map[string]any{
		"username":   w.Username,
		"avatar_url": w.AvatarURL,
	}
}

// PollInterval returns the interval between passes; zero means a single pass.
func (c *Config) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Load reads an optional YAML configuration file and overlays the process
// environment on top of it. A missing file is only an error when
// mustExist is set.
func Load(path string, mustExist bool) (*Config, error) {
	cfg := &Config{
		LogLevel: "info",
		Provider: "gmail",
		Gmail: Gmail{
			CredentialsFile: "credentials.json",
			TokenFile:       "token.json",
			TokenStore:      "file",
			KeyringService:  "labelhook",
		},
		IMAP: IMAP{
			Port:   993,
			UseTLS: true,
		},
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err) && !mustExist:
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set("LOG_LEVEL", &c.LogLevel)
	set("NEW_LABEL", &c.NewLabel)
	set("OLD_LABEL", &c.OldLabel)
	set("URL", &c.Webhook.URL)
	set("USERNAME", &c.Webhook.Username)
	set("AVATAR_URL", &c.Webhook.AvatarURL)
	set("ERROR_MSG", &c.Webhook.ErrorMessage)
}

func (c *Config) validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"NEW_LABEL", c.NewLabel},
		{"OLD_LABEL", c.OldLabel},
		{"URL", c.Webhook.URL},
		{"USERNAME", c.Webhook.Username},
		{"AVATAR_URL", c.Webhook.AvatarURL},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: %s", ErrMissing, r.key)
		}
	}

	switch c.Provider {
	case "gmail":
		if c.Gmail.TokenStore != "file" && c.Gmail.TokenStore != "keyring" {
			return fmt.Errorf("gmail.token_store must be file or keyring")
		}
	case "imap":
		if c.IMAP.Host == "" {
			return fmt.Errorf("%w: imap.host", ErrMissing)
		}
		if c.IMAP.Port == 0 {
			return fmt.Errorf("%w: imap.port", ErrMissing)
		}
		if c.IMAP.Username == "" {
			return fmt.Errorf("%w: imap.username", ErrMissing)
		}
	default:
		return fmt.Errorf("provider must be gmail or imap")
	}
	return nil
}
