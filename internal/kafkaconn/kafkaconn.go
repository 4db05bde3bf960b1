// Package kafkaconn builds authenticated kafka-go transports and checks broker
// reachability for the Kafka sink.
package kafkaconn

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

const defaultDialTimeout = 8 * time.Second

// ErrTopicNotFound is returned by CheckTopic when the broker does not list
// the topic (missing, or Describe not granted).
var ErrTopicNotFound = errors.New("topic not found or not authorized")

// Settings describes how to reach the cluster.
type Settings struct {
	Brokers          []string
	SecurityProtocol string // PLAINTEXT, SSL, SASL_PLAINTEXT, SASL_SSL
	SASLMechanism    string // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	Username         string
	Password         string
	CAFile           string
	CertFile         string
	KeyFile          string
	DialTimeout      time.Duration
}

// SplitBrokers parses a comma-separated broker list.
func SplitBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func (s Settings) protocol() string {
	p := strings.ToUpper(strings.TrimSpace(s.SecurityProtocol))
	if p == "" {
		return "PLAINTEXT"
	}
	return p
}

func (s Settings) dialTimeout() time.Duration {
	if s.DialTimeout > 0 {
		return s.DialTimeout
	}
	return defaultDialTimeout
}

// TLSConfig returns nil when the protocol does not use TLS.
func (s Settings) TLSConfig(serverName string) (*tls.Config, error) {
	switch s.protocol() {
	case "SSL", "SASL_SSL":
	default:
		return nil, nil
	}
	conf := &tls.Config{ServerName: serverName, MinVersion: tls.VersionTLS12}
	if s.CAFile != "" {
		pem, err := os.ReadFile(s.CAFile)
		if err != nil {
			return nil, fmt.Errorf("load CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("bad CA PEM")
		}
		conf.RootCAs = pool
	}
	if s.CertFile != "" && s.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.CertFile, s.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		conf.Certificates = []tls.Certificate{cert}
	}
	return conf, nil
}

// Mechanism returns the SASL mechanism, or nil when SASL is not configured.
func (s Settings) Mechanism() (sasl.Mechanism, error) {
	mech := strings.ToUpper(strings.TrimSpace(s.SASLMechanism))
	switch mech {
	case "":
		if strings.HasPrefix(s.protocol(), "SASL_") {
			return nil, fmt.Errorf("missing sasl mechanism for security protocol %s", s.protocol())
		}
		return nil, nil
	case "PLAIN":
		return plain.Mechanism{Username: s.Username, Password: s.Password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, s.Username, s.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, s.Username, s.Password)
	default:
		return nil, fmt.Errorf("unsupported sasl mechanism: %s", mech)
	}
}

// Transport builds a kafka.Transport for writers.
func (s Settings) Transport() (*kafka.Transport, error) {
	tlsConf, err := s.TLSConfig("")
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}
	mech, err := s.Mechanism()
	if err != nil {
		return nil, fmt.Errorf("sasl config: %w", err)
	}
	return &kafka.Transport{
		TLS:         tlsConf,
		SASL:        mech,
		DialTimeout: s.dialTimeout(),
	}, nil
}

// Dialer builds a kafka.Dialer for direct broker connections.
func (s Settings) Dialer(hostForSNI string) (*kafka.Dialer, error) {
	tlsConf, err := s.TLSConfig(hostForSNI)
	if err != nil {
		return nil, err
	}
	mech, err := s.Mechanism()
	if err != nil {
		return nil, err
	}
	return &kafka.Dialer{
		Timeout:       s.dialTimeout(),
		DualStack:     true,
		TLS:           tlsConf,
		SASLMechanism: mech,
	}, nil
}

// TopicStatus is the result of a successful CheckTopic.
type TopicStatus struct {
	Broker     string
	Partitions int
	Leaders    int
}

// CheckTopic dials the first broker, confirms the API handshake and that
// topic is visible.
func CheckTopic(ctx context.Context, s Settings, topic string) (TopicStatus, error) {
	if len(s.Brokers) == 0 {
		return TopicStatus{}, errors.New("no brokers configured")
	}
	addr := s.Brokers[0]
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	dialer, err := s.Dialer(host)
	if err != nil {
		return TopicStatus{}, fmt.Errorf("dialer: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.dialTimeout())
	defer cancel()
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return TopicStatus{}, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := conn.ApiVersions(); err != nil {
		return TopicStatus{}, fmt.Errorf("api versions %s: %w", addr, err)
	}
	parts, err := conn.ReadPartitions(topic)
	if err != nil {
		if errors.Is(err, kafka.UnknownTopicOrPartition) {
			return TopicStatus{}, fmt.Errorf("%w: %s", ErrTopicNotFound, topic)
		}
		return TopicStatus{}, fmt.Errorf("read partitions: %w", err)
	}
	st := TopicStatus{Broker: addr}
	for _, p := range parts {
		if p.Topic != topic {
			continue
		}
		st.Partitions++
		if p.Leader.Host != "" {
			st.Leaders++
		}
	}
	if st.Partitions == 0 {
		return TopicStatus{}, fmt.Errorf("%w: %s", ErrTopicNotFound, topic)
	}
	return st, nil
}

// Redacted returns a printable copy with credentials masked.
func (s Settings) Redacted() Settings {
	if s.Password != "" {
		s.Password = "***"
	}
	return s
}
