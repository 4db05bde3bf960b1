package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/tidwall/jsonc"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".aibom-emitter"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("AIBOM_EMITTER_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := resolveHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("AIBOM_EMITTER_HOME")); h != "" {
		if strings.HasPrefix(h, "~") {
			base, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(base, h[1:]), nil
		}
		return h, nil
	}
	return os.UserHomeDir()
}

// Load loads the configuration from file and environment variables.
// Priority: environment > file > defaults. The file may contain comments and
// trailing commas, and string values may reference ${VAR} from the environment.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	LoadEnvFileCandidates()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil // Use defaults if we can't find config path
	}

	data, err := loadResolvedConfig(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	groups := []struct {
		prefix string
		target any
	}{
		{"AIBOM_SERVER", &cfg.Server},
		{"AIBOM_SOURCE", &cfg.Source},
		{"AIBOM_SINK", &cfg.Sink},
		{"AIBOM_KAFKA", &cfg.Kafka},
		{"AIBOM_LEDGER", &cfg.Ledger},
		{"AIBOM_SLACK", &cfg.Slack},
		{"AIBOM_LOG", &cfg.Log},
		{"AIBOM_OTEL", &cfg.Otel},
		{"AIBOM_OBSERVER", &cfg.Observer},
		{"AIBOM_EXPORT", &cfg.Export},
	}
	for _, g := range groups {
		if err := envconfig.Process(g.prefix, g.target); err != nil {
			return nil, fmt.Errorf("env %s: %w", g.prefix, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated fields and bounds.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceSimulated, SourceHTTP:
	default:
		return fmt.Errorf("source.kind %q: want %s or %s", c.Source.Kind, SourceSimulated, SourceHTTP)
	}
	switch c.Sink.Kind {
	case SinkLog, SinkHTTP, SinkKafka:
	default:
		return fmt.Errorf("sink.kind %q: want %s, %s or %s", c.Sink.Kind, SinkLog, SinkHTTP, SinkKafka)
	}
	if c.Sink.Kind == SinkKafka && (strings.TrimSpace(c.Kafka.Brokers) == "" || strings.TrimSpace(c.Kafka.Topic) == "") {
		return fmt.Errorf("sink.kind kafka requires kafka.brokers and kafka.topic")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Source.FetchTimeoutMs < 0 || c.Sink.TimeoutMs < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.Observer.MaxTrackedEpisodes < 0 {
		return fmt.Errorf("observer.maxTrackedEpisodes must not be negative")
	}
	if c.Otel.SampleRatio < 0 {
		return fmt.Errorf("otel.sampleRatio must not be negative")
	}
	return nil
}

// Save saves the configuration to file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func loadResolvedConfig(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return json.Marshal(substituteEnvValues(raw))
}

func substituteEnvValues(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = substituteEnvValues(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = substituteEnvValues(item)
		}
		return t
	case string:
		return envPattern.ReplaceAllStringFunc(t, func(match string) string {
			parts := envPattern.FindStringSubmatch(match)
			if len(parts) != 2 {
				return match
			}
			if value, ok := os.LookupEnv(parts[1]); ok {
				return value
			}
			return match
		})
	default:
		return v
	}
}
