// Package config holds whisperbot's two configuration layers: Zulip
// credentials resolved from the environment, and the runtime feature config
// persisted as YAML and editable at runtime through admin commands.
package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"

	"github.com/whisperlabs/whisperbot/pkg/logger"
	"github.com/whisperlabs/whisperbot/pkg/store"
)

// Credentials identify the bot against the Zulip server. They come from the
// environment only, never from the config file, so the file stays safe to
// echo back via `!config show`.
type Credentials struct {
	Site   string `env:"ZULIP_SITE"`
	Email  string `env:"ZULIP_EMAIL"`
	APIKey string `env:"ZULIP_API_KEY"`
}

func LoadCredentials() (*Credentials, error) {
	creds := &Credentials{}
	if err := env.Parse(creds); err != nil {
		return nil, fmt.Errorf("parsing credentials from environment: %w", err)
	}
	if creds.Site == "" {
		return nil, errors.New("ZULIP_SITE is required (e.g. https://chat.example.com)")
	}
	if creds.Email == "" {
		return nil, errors.New("ZULIP_EMAIL is required")
	}
	if creds.APIKey == "" {
		return nil, errors.New("ZULIP_API_KEY is required")
	}
	return creds, nil
}

// AnonymousPostingConfig controls the anonymous posting feature.
type AnonymousPostingConfig struct {
	Enabled            bool   `yaml:"enabled"`
	TargetStream       string `yaml:"target_stream"`
	TargetTopic        string `yaml:"target_topic"`
	DeleteAfterMinutes int    `yaml:"delete_after_minutes"`
}

// WatchRule maps a trigger phrase in one (stream, topic) thread to a private
// stream the sender gets subscribed to.
type WatchRule struct {
	Stream       string `yaml:"stream"`
	Topic        string `yaml:"topic"`
	Phrase       string `yaml:"phrase"`
	TargetStream string `yaml:"target_stream"`
}

// PrivateAccessConfig controls the phrase-triggered access grants.
type PrivateAccessConfig struct {
	Enabled    bool        `yaml:"enabled"`
	WatchRules []WatchRule `yaml:"watch_rules"`
}

type LoggingConfig struct {
	Level            string `yaml:"level"`
	AnonymizeUserIDs bool   `yaml:"anonymize_user_ids"`
}

// Config is the runtime feature configuration. Credentials live elsewhere.
type Config struct {
	AnonymousPosting AnonymousPostingConfig `yaml:"anonymous_posting"`
	PrivateAccess    PrivateAccessConfig    `yaml:"private_access"`
	Logging          LoggingConfig          `yaml:"logging"`
}

// DefaultConfig returns the configuration written on first start.
func DefaultConfig() *Config {
	return &Config{
		AnonymousPosting: AnonymousPostingConfig{
			Enabled:            true,
			TargetStream:       "anonymous",
			TargetTopic:        "general",
			DeleteAfterMinutes: 7 * 24 * 60,
		},
		PrivateAccess: PrivateAccessConfig{
			Enabled: true,
			WatchRules: []WatchRule{
				{
					Stream:       "access-requests",
					Topic:        "example-topic",
					Phrase:       "Default string 1",
					TargetStream: "private-room-1",
				},
				{
					Stream:       "access-requests",
					Topic:        "example-topic",
					Phrase:       "Default string 2",
					TargetStream: "private-room-2",
				},
			},
		},
		Logging: LoggingConfig{
			Level:            "INFO",
			AnonymizeUserIDs: true,
		},
	}
}

// clone returns a deep copy so callers can't mutate the manager's state
// behind its lock.
func (c *Config) clone() *Config {
	out := *c
	out.PrivateAccess.WatchRules = make([]WatchRule, len(c.PrivateAccess.WatchRules))
	copy(out.PrivateAccess.WatchRules, c.PrivateAccess.WatchRules)
	return &out
}

// Manager loads, serves, and persists the runtime config. Get is called from
// every dispatch while Update arrives from the admin handler, so access is
// guarded.
type Manager struct {
	mu    sync.RWMutex
	store *store.Store
	cfg   *Config
}

func NewManager(path string) *Manager {
	return &Manager{
		store: store.New(path),
		cfg:   DefaultConfig(),
	}
}

// Load reads the config file, creating it with defaults when absent. Fields
// missing from the file keep their default values. A file that fails to
// parse is reset to defaults rather than taking the bot down.
func (m *Manager) Load() (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.store.Exists() {
		logger.InfoCF("config", "Config file not found, creating defaults",
			map[string]any{"path": m.store.Path()})
		m.cfg = DefaultConfig()
		if err := m.store.Write(m.cfg); err != nil {
			return nil, err
		}
		return m.cfg.clone(), nil
	}

	cfg := DefaultConfig()
	if err := m.store.Read(cfg); err != nil {
		logger.WarnCF("config", "Config file malformed, resetting to defaults",
			map[string]any{"path": m.store.Path(), "error": err.Error()})
		cfg = DefaultConfig()
		if err := m.store.Write(cfg); err != nil {
			return nil, err
		}
	}

	m.cfg = cfg
	return m.cfg.clone(), nil
}

// Get returns a snapshot of the current config.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.clone()
}

// Update replaces the config and persists it.
func (m *Manager) Update(cfg *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Write(cfg); err != nil {
		return fmt.Errorf("persisting config: %w", err)
	}
	m.cfg = cfg.clone()
	logger.InfoCF("config", "Config updated", map[string]any{"path": m.store.Path()})
	return nil
}
