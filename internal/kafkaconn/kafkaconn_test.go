package kafkaconn

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go/sasl/plain"
)

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" a:9092, ,b:9092,")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("brokers = %q", got)
	}
	if SplitBrokers("") != nil {
		t.Fatal("expected nil for empty list")
	}
}

func TestTLSConfigBranches(t *testing.T) {
	conf, err := Settings{}.TLSConfig("broker")
	if err != nil || conf != nil {
		t.Fatalf("plaintext: conf=%v err=%v", conf, err)
	}

	conf, err = Settings{SecurityProtocol: "ssl"}.TLSConfig("broker")
	if err != nil || conf == nil || conf.ServerName != "broker" {
		t.Fatalf("ssl: conf=%v err=%v", conf, err)
	}

	if _, err := (Settings{SecurityProtocol: "SSL", CAFile: "/no/such/ca.pem"}).TLSConfig(""); err == nil {
		t.Fatal("expected missing CA error")
	}

	bad := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(bad, []byte("not a pem"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := (Settings{SecurityProtocol: "SASL_SSL", CAFile: bad}).TLSConfig(""); err == nil || !strings.Contains(err.Error(), "bad CA PEM") {
		t.Fatalf("expected bad PEM error, got %v", err)
	}
}

func TestMechanism(t *testing.T) {
	m, err := Settings{}.Mechanism()
	if err != nil || m != nil {
		t.Fatalf("none: %v %v", m, err)
	}
	m, err = Settings{SASLMechanism: "plain", Username: "u", Password: "p"}.Mechanism()
	if err != nil {
		t.Fatal(err)
	}
	if pm, ok := m.(plain.Mechanism); !ok || pm.Username != "u" {
		t.Fatalf("plain = %#v", m)
	}
	for _, mech := range []string{"SCRAM-SHA-256", "SCRAM-SHA-512"} {
		m, err := Settings{SASLMechanism: mech, Username: "u", Password: "p"}.Mechanism()
		if err != nil || m == nil || m.Name() != mech {
			t.Fatalf("%s: %v %v", mech, m, err)
		}
	}
	if _, err := (Settings{SecurityProtocol: "SASL_SSL"}).Mechanism(); err == nil {
		t.Fatal("expected error for SASL protocol without mechanism")
	}
	if _, err := (Settings{SASLMechanism: "GSSAPI"}).Mechanism(); err == nil {
		t.Fatal("expected unsupported mechanism error")
	}
}

func TestTransport(t *testing.T) {
	tr, err := Settings{SecurityProtocol: "SASL_SSL", SASLMechanism: "PLAIN", Username: "u", Password: "p", DialTimeout: time.Second}.Transport()
	if err != nil {
		t.Fatal(err)
	}
	if tr.TLS == nil || tr.SASL == nil || tr.DialTimeout != time.Second {
		t.Fatalf("transport = %+v", tr)
	}
	if _, err := (Settings{SASLMechanism: "bogus"}).Transport(); err == nil {
		t.Fatal("expected sasl error")
	}
}

func TestCheckTopicErrors(t *testing.T) {
	if _, err := CheckTopic(context.Background(), Settings{}, "t"); err == nil {
		t.Fatal("expected error without brokers")
	}
	s := Settings{Brokers: []string{"127.0.0.1:1"}, DialTimeout: 500 * time.Millisecond}
	if _, err := CheckTopic(context.Background(), s, "t"); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestRedacted(t *testing.T) {
	s := Settings{Username: "u", Password: "secret"}
	if r := s.Redacted(); r.Password != "***" || r.Username != "u" {
		t.Fatalf("redacted = %+v", r)
	}
	if s.Password != "secret" {
		t.Fatal("original modified")
	}
}
