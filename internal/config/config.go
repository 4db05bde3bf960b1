// Package config holds the emitter configuration.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Source   SourceConfig   `json:"source"`
	Sink     SinkConfig     `json:"sink"`
	Kafka    KafkaConfig    `json:"kafka"`
	Ledger   LedgerConfig   `json:"ledger"`
	Slack    SlackConfig    `json:"slack"`
	Log      LogConfig      `json:"log"`
	Otel     OtelConfig     `json:"otel"`
	Observer ObserverConfig `json:"observer"`
	Export   ExportConfig   `json:"export"`
}

// ---------------------------------------------------------------------------
// Server – HTTP listener
// ---------------------------------------------------------------------------

// ServerConfig contains the HTTP listener settings.
type ServerConfig struct {
	Host string `json:"host" envconfig:"HOST"`
	Port int    `json:"port" envconfig:"PORT"`
}

// ---------------------------------------------------------------------------
// Source – where episodes come from
// ---------------------------------------------------------------------------

const (
	SourceSimulated = "simulated"
	SourceHTTP      = "http"
)

// SourceConfig selects and configures the episode source.
type SourceConfig struct {
	Kind              string `json:"kind" envconfig:"KIND"`
	URL               string `json:"url" envconfig:"URL"`
	FetchTimeoutMs    int    `json:"fetchTimeoutMs" envconfig:"FETCH_TIMEOUT_MS"`
	SimulatedEpisodes int    `json:"simulatedEpisodes" envconfig:"SIMULATED_EPISODES"`
}

// FetchTimeout returns the per-fetch timeout.
func (c SourceConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMs) * time.Millisecond
}

// ---------------------------------------------------------------------------
// Sink – where published components go
// ---------------------------------------------------------------------------

const (
	SinkLog   = "log"
	SinkHTTP  = "http"
	SinkKafka = "kafka"
)

// SinkConfig selects and configures the publish sink.
type SinkConfig struct {
	Kind      string `json:"kind" envconfig:"KIND"`
	APIURL    string `json:"apiUrl" envconfig:"API_URL"`
	TimeoutMs int    `json:"timeoutMs" envconfig:"TIMEOUT_MS"`
}

// Timeout returns the per-delivery timeout.
func (c SinkConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// KafkaConfig is used when the sink kind is kafka.
type KafkaConfig struct {
	Brokers          string `json:"brokers" envconfig:"BROKERS"` // comma-separated
	Topic            string `json:"topic" envconfig:"TOPIC"`
	SecurityProtocol string `json:"securityProtocol" envconfig:"SECURITY_PROTOCOL"`
	SASLMechanism    string `json:"saslMechanism" envconfig:"SASL_MECHANISM"`
	Username         string `json:"username" envconfig:"SASL_USERNAME"`
	Password         string `json:"password" envconfig:"SASL_PASSWORD"`
	CAFile           string `json:"caFile" envconfig:"CA_FILE"`
	CertFile         string `json:"certFile" envconfig:"CERT_FILE"`
	KeyFile          string `json:"keyFile" envconfig:"KEY_FILE"`
}

// ---------------------------------------------------------------------------
// Ledger, notifications, observability
// ---------------------------------------------------------------------------

// LedgerConfig enables the SQLite delivery ledger when DBPath is set.
type LedgerConfig struct {
	DBPath string `json:"dbPath" envconfig:"DB_PATH"`
}

// SlackConfig enables publish notifications when token and channel are set.
type SlackConfig struct {
	BotToken string `json:"botToken" envconfig:"BOT_TOKEN"`
	Channel  string `json:"channel" envconfig:"CHANNEL"`
	APIBase  string `json:"apiBase" envconfig:"API_BASE"`
}

// Enabled reports whether notifications should be sent.
func (c SlackConfig) Enabled() bool {
	return c.BotToken != "" && c.Channel != ""
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `json:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `json:"format" envconfig:"FORMAT"` // text or json
}

// OtelConfig enables trace export when Endpoint is set.
// SampleRatio is the fraction of root traces kept; 0 or above 1 keeps all.
type OtelConfig struct {
	Endpoint    string  `json:"endpoint" envconfig:"ENDPOINT"`
	ServiceName string  `json:"serviceName" envconfig:"SERVICE_NAME"`
	SampleRatio float64 `json:"sampleRatio" envconfig:"SAMPLE_RATIO"`
}

// ObserverConfig bounds observer state.
type ObserverConfig struct {
	MaxTrackedEpisodes int `json:"maxTrackedEpisodes" envconfig:"MAX_TRACKED_EPISODES"`
}

// ExportConfig controls the snapshot written on shutdown.
type ExportConfig struct {
	OnShutdown string `json:"onShutdown" envconfig:"ON_SHUTDOWN"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8700,
		},
		Source: SourceConfig{
			Kind:              SourceSimulated,
			URL:               "http://localhost:8000",
			FetchTimeoutMs:    5000,
			SimulatedEpisodes: 5,
		},
		Sink: SinkConfig{
			Kind:      SinkLog,
			APIURL:    "http://localhost:8600/v1",
			TimeoutMs: 5000,
		},
		Kafka: KafkaConfig{
			Brokers: "localhost:9092",
			Topic:   "aibom.components",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Otel: OtelConfig{
			ServiceName: "runtime-aibom-emitter",
			SampleRatio: 1,
		},
	}
}
