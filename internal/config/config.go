package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultStaleHours is the staleness threshold applied when the config leaves
// questmaster.stale_hours unset.
const DefaultStaleHours = 48

// Config models questboard.yml.
type Config struct {
	Org struct {
		ID   string `yaml:"id" json:"id"`
		Name string `yaml:"name" json:"name"`
	} `yaml:"org" json:"org"`
	Questmaster struct {
		StaleHours      int    `yaml:"stale_hours" json:"stale_hours"`
		DeadlineSeconds int    `yaml:"deadline_seconds" json:"deadline_seconds"`
		SourceApp       string `yaml:"source_app" json:"source_app"`
	} `yaml:"questmaster" json:"questmaster"`
	Notifications struct {
		Slack SlackConfig `yaml:"slack" json:"slack"`
		Email EmailConfig `yaml:"email" json:"email"`
	} `yaml:"notifications" json:"notifications"`
}

type SlackConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	WebhookURL string `yaml:"webhook_url" json:"webhook_url"`
	Channel    string `yaml:"channel" json:"channel"`
	TimeoutSec int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

type EmailConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	SMTPHost string `yaml:"smtp_host" json:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port" json:"smtp_port"`
	From     string `yaml:"from" json:"from"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with qb org config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Org.ID == "" {
		return fmt.Errorf("config.org.id is required")
	}
	if c.Questmaster.StaleHours < 0 {
		return fmt.Errorf("config.questmaster.stale_hours must not be negative")
	}
	if c.Questmaster.DeadlineSeconds < 0 {
		return fmt.Errorf("config.questmaster.deadline_seconds must not be negative")
	}
	if c.Notifications.Slack.Enabled {
		if c.Notifications.Slack.WebhookURL == "" {
			return fmt.Errorf("slack notifications enabled but webhook_url is empty")
		}
		if c.Notifications.Slack.Channel == "" {
			return fmt.Errorf("slack notifications enabled but channel is empty")
		}
	}
	if c.Notifications.Email.Enabled {
		if c.Notifications.Email.SMTPHost == "" {
			return fmt.Errorf("email notifications enabled but smtp_host is empty")
		}
		if c.Notifications.Email.From == "" {
			return fmt.Errorf("email notifications enabled but from is empty")
		}
	}
	return nil
}

// StaleHours returns the configured staleness threshold or the default.
func (c *Config) StaleHours() int {
	if c == nil || c.Questmaster.StaleHours == 0 {
		return DefaultStaleHours
	}
	return c.Questmaster.StaleHours
}

// SourceApp identifies this app in published events.
func (c *Config) SourceApp() string {
	if c == nil || c.Questmaster.SourceApp == "" {
		return "questboard"
	}
	return c.Questmaster.SourceApp
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "questboard.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(orgID string) string {
	return fmt.Sprintf(defaultTemplate, orgID, orgID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for an org.
func Default(orgID string) *Config {
	var cfg Config
	cfg.Org.ID = orgID
	cfg.Org.Name = orgID
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(orgID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `org:
  id: %s
  name: %s

questmaster:
  stale_hours: 48
  deadline_seconds: 0
  source_app: questboard

notifications:
  slack:
    enabled: false
    webhook_url: ""
    channel: "#questboard"
    timeout_seconds: 5
  email:
    enabled: false
    smtp_host: ""
    smtp_port: 587
    from: ""
`
