package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  open_detected_topic_name: "registration.open_detected"
redis:
  host: "localhost"
  port: 6379
regbox:
  http_addr: ":8080"
  kafka_consumer_group: "reg-api"
  settlement_shared_secret: "s3cret"
  magic_link_base_url: "https://regbox.example.com"
  ticket_ttl_seconds: 600
  notify_throttle_seconds: 120
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "registration.open_detected", cfg.Kafka.OpenDetectedTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.RegBox.HTTPAddr)
	require.Equal(t, "s3cret", cfg.RegBox.SettlementSharedSecret)
	require.Equal(t, 600, cfg.RegBox.TicketTTLSeconds)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/no/such/file.yaml")
	require.Error(t, err)
}
