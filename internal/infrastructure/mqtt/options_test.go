package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/nerrad567/annunciator-core/internal/infrastructure/config"
)

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker:    config.MQTTBrokerConfig{Host: "broker.lan", Port: 8883, TLS: true, ClientID: "annunciator-1"},
		Auth:      config.MQTTAuthConfig{Username: "svc", Password: "pw"},
		Reconnect: config.MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 30},
	}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://broker.lan:8883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "annunciator-1" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "svc" || opts.Password != "pw" {
		t.Error("credentials not applied")
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect and clean session")
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config not applied")
	}
}

func TestBrokerURL_Plain(t *testing.T) {
	cfg := config.MQTTConfig{Broker: config.MQTTBrokerConfig{Host: "127.0.0.1", Port: 1883}}
	if got := brokerURL(cfg); got != "tcp://127.0.0.1:1883" {
		t.Errorf("brokerURL() = %q", got)
	}
}

func TestConfigureLWT(t *testing.T) {
	cfg := config.MQTTConfig{Broker: config.MQTTBrokerConfig{Host: "h", Port: 1, ClientID: "c1"}}
	opts := buildClientOptions(cfg)
	configureLWT(opts, NewTopics("ann"), "c1")

	if !opts.WillEnabled || opts.WillTopic != "ann/status" || !opts.WillRetained {
		t.Errorf("will = enabled:%v topic:%q retained:%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}

	var p statusPayload
	if err := json.Unmarshal(opts.WillPayload, &p); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if p.Status != "offline" || p.ClientID != "c1" || p.Reason != "unexpected_disconnect" {
		t.Errorf("will payload = %+v", p)
	}
}

func TestBuildStatusPayload_Online(t *testing.T) {
	var p statusPayload
	if err := json.Unmarshal([]byte(buildStatusPayload("online", "c1", "")), &p); err != nil {
		t.Fatal(err)
	}
	if p.Status != "online" || p.Reason != "" || p.Timestamp == "" {
		t.Errorf("payload = %+v", p)
	}
}
