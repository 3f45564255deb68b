package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creasty/defaults"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	var c Config
	if err := defaults.Set(&c); err != nil {
		t.Fatalf("defaults: %v", err)
	}
	c.Source.BaseURL = "https://api.example.test"
	return &c
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: test
server:
  port: 9999
source:
  base_url: https://api.example.test
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.Environment != "test" {
		t.Errorf("environment = %q, want test", c.Environment)
	}
	if c.Server.Port != 9999 {
		t.Errorf("server.port = %d, want 9999", c.Server.Port)
	}
	if c.Server.ReadTimeout != 10*time.Second {
		t.Errorf("server.read_timeout = %v, want 10s", c.Server.ReadTimeout)
	}
	if c.Cache.Backend != "redis" {
		t.Errorf("cache.backend = %q, want redis", c.Cache.Backend)
	}
	if len(c.Source.Symbols) != 5 || c.Source.Symbols[0] != "BTC" {
		t.Errorf("source.symbols = %v, want the default five", c.Source.Symbols)
	}
	if c.Kafka.Consumer.DLQTopic != "coinpulse.samples.dlq" {
		t.Errorf("kafka.consumer.dlq_topic = %q", c.Kafka.Consumer.DLQTopic)
	}
	if c.Scheduler.DailyAt != "02:00" {
		t.Errorf("scheduler.daily_at = %q, want 02:00", c.Scheduler.DailyAt)
	}
	if c.Quality.Threshold != 0.5 || c.Quality.RejectMultiple != 2 {
		t.Errorf("quality = %+v, want threshold 0.5 multiple 2", c.Quality)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load = nil for a missing file, want error")
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	if _, err := Load(path); err == nil {
		t.Fatal("Load = nil for broken yaml, want error")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty environment", func(c *Config) { c.Environment = "" }},
		{"missing base url", func(c *Config) { c.Source.BaseURL = "" }},
		{"no symbols", func(c *Config) { c.Source.Symbols = nil }},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "mongo" }},
		{"zero tick", func(c *Config) { c.Scheduler.Tick = 0 }},
		{"tick above realtime interval", func(c *Config) { c.Scheduler.Tick = time.Minute }},
		{"broken daily_at", func(c *Config) { c.Scheduler.DailyAt = "24:00" }},
		{"threshold too high", func(c *Config) { c.Quality.Threshold = 1.5 }},
		{"threshold zero", func(c *Config) { c.Quality.Threshold = 0 }},
		{"reject multiple below one", func(c *Config) { c.Quality.RejectMultiple = 0.5 }},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }},
		{"stream without url", func(c *Config) { c.Stream.Enabled = true }},
	}
	for _, tc := range cases {
		c := validConfig(t)
		tc.mutate(c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: Validate = nil, want error", tc.name)
		}
	}

	if err := validConfig(t).Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
source:
  base_url: https://api.example.test
`)
	t.Setenv("SOURCE_BASE_URL", "https://override.example.test")
	t.Setenv("SYMBOLS", "ADA,DOT")
	t.Setenv("CLICKHOUSE_HOST", "ch.internal")
	t.Setenv("KAFKA_TOPIC", "coinpulse.override")

	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if c.Source.BaseURL != "https://override.example.test" {
		t.Errorf("base_url = %q, want the env override", c.Source.BaseURL)
	}
	if len(c.Source.Symbols) != 2 || c.Source.Symbols[0] != "ADA" {
		t.Errorf("symbols = %v, want [ADA DOT]", c.Source.Symbols)
	}
	if c.ClickHouse.Host != "ch.internal" {
		t.Errorf("clickhouse.host = %q, want ch.internal", c.ClickHouse.Host)
	}
	if c.Kafka.Topic != "coinpulse.override" {
		t.Errorf("kafka.topic = %q, want coinpulse.override", c.Kafka.Topic)
	}
}

func TestParseDailyAt(t *testing.T) {
	hour, minute, err := ParseDailyAt("02:30")
	if err != nil || hour != 2 || minute != 30 {
		t.Fatalf("ParseDailyAt(02:30) = (%d, %d, %v)", hour, minute, err)
	}
	if _, _, err := ParseDailyAt("23:59"); err != nil {
		t.Errorf("ParseDailyAt(23:59): %v", err)
	}

	for _, s := range []string{"24:00", "12:60", "noon", "-1:15", ""} {
		if _, _, err := ParseDailyAt(s); err == nil {
			t.Errorf("ParseDailyAt(%q) = nil, want error", s)
		}
	}
}
