package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	RegBox   RegBoxConfig   `yaml:"regbox"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	OpenDetectedTopicName string `yaml:"open_detected_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type RegBoxConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	// Shared secrets. Missing values are configuration errors: main panics.
	SettlementSharedSecret string `yaml:"settlement_shared_secret"`
	ExecutorSharedSecret   string `yaml:"executor_shared_secret"`
	SMSWebhookAuthToken    string `yaml:"sms_webhook_auth_token"`
	MagicLinkSecret        string `yaml:"magic_link_secret"`

	MagicLinkBaseURL string `yaml:"magic_link_base_url"`

	ReservationTTLSeconds int `yaml:"reservation_ttl_seconds"`

	TicketTTLSeconds           int `yaml:"ticket_ttl_seconds"`
	NotifyThrottleSeconds      int `yaml:"notify_throttle_seconds"`
	TicketSweepIntervalSeconds int `yaml:"ticket_sweep_interval_seconds"`

	CheckpointKeep               int `yaml:"checkpoint_keep"`
	CheckpointMaxRecoverySeconds int `yaml:"checkpoint_max_recovery_seconds"`

	WatcherHTTPAddr                  string `yaml:"watcher_http_addr"`
	WatcherCycleSeconds              int    `yaml:"watcher_cycle_seconds"`
	WatcherConcurrency               int    `yaml:"watcher_concurrency"`
	WatcherRateLimitPerHostPerMinute int    `yaml:"watcher_rate_limit_per_host_per_minute"`

	// Detection page fetching. "render" goes through a headless rendering
	// service for JS-heavy provider pages; empty/other falls back to the
	// local fake.
	PageFetchMode     string `yaml:"page_fetch_mode"` // "direct" | "render"
	PageRenderBaseURL string `yaml:"page_render_base_url"`
	PageRenderAPIKey  string `yaml:"page_render_api_key"`

	ExecutorBaseURL string `yaml:"executor_base_url"`

	SMSGatewayBaseURL string `yaml:"sms_gateway_base_url"`
	SMSAccountSID     string `yaml:"sms_account_sid"`
	SMSAuthToken      string `yaml:"sms_auth_token"`
	SMSFromNumber     string `yaml:"sms_from_number"`

	EmailAPIBaseURL string `yaml:"email_api_base_url"`
	EmailAPIKey     string `yaml:"email_api_key"`
	EmailFrom       string `yaml:"email_from"`

	PaymentsBaseURL string `yaml:"payments_base_url"`
	PaymentsAPIKey  string `yaml:"payments_api_key"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
