package config

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"archscore/internal/domain"
)

// Config models archscore.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Evaluation struct {
		Preset  string             `yaml:"preset"`
		Weights map[string]float64 `yaml:"weights"`
	} `yaml:"evaluation"`
	Heuristics struct {
		File  string `yaml:"file"`
		Watch bool   `yaml:"watch"`
	} `yaml:"heuristics"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with archscore init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Evaluation.Preset != "" {
		if _, err := domain.ParsePreset(c.Evaluation.Preset); err != nil {
			return fmt.Errorf("config.evaluation.preset: %w", err)
		}
	}
	if _, err := c.Weights(); err != nil {
		return fmt.Errorf("config.evaluation.weights: %w", err)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be one of debug, info, warn, error")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json")
	}
	if c.Heuristics.Watch && c.Heuristics.File == "" {
		return fmt.Errorf("config.heuristics.watch requires config.heuristics.file")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("webhook %d url must be http or https", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d timeout_seconds cannot be negative", i)
		}
		for _, evt := range hook.Events {
			if strings.TrimSpace(evt) == "" {
				return fmt.Errorf("webhook %d has empty event type", i)
			}
		}
	}
	return nil
}

// Weights builds the parameter weights: defaults, then the preset, then the
// per-parameter overrides.
func (c *Config) Weights() (domain.ParameterWeights, error) {
	w := domain.DefaultWeights()
	if c.Evaluation.Preset != "" {
		p, err := domain.ParsePreset(c.Evaluation.Preset)
		if err != nil {
			return w, err
		}
		w.ApplyPreset(p)
	}
	overrides := make(map[domain.Parameter]float64, len(c.Evaluation.Weights))
	for name, v := range c.Evaluation.Weights {
		p, err := domain.ParseParameter(name)
		if err != nil {
			return w, err
		}
		overrides[p] = v
	}
	if err := w.SetAll(overrides); err != nil {
		return w, err
	}
	return w, nil
}

// HeuristicsPath resolves heuristics.file against the workspace. Empty when
// the built-in table is used.
func (c *Config) HeuristicsPath(workspace string) string {
	if c.Heuristics.File == "" {
		return ""
	}
	if filepath.IsAbs(c.Heuristics.File) {
		return c.Heuristics.File
	}
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, c.Heuristics.File)
}

// NewLogger builds the slog logger described by the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Log.Level)}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "archscore.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
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

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

evaluation:
  # BALANCED, PERFORMANCE_FOCUSED, COST_OPTIMIZED or RELIABILITY_FOCUSED
  preset: BALANCED
  # per-parameter overrides applied after the preset
  weights: {}

heuristics:
  # optional YAML table replacing the built-in defaults, relative to the workspace
  file: ""
  watch: false

log:
  level: info
  format: text

webhooks: []
`
