package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
aircloud:
  email: "owner@example.com"
  password: "hunter2"
  update_interval_minutes: 10
  enable_debugging: true
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.AirCloud.Email != "owner@example.com" {
		t.Errorf("AirCloud.Email = %q, want %q", cfg.AirCloud.Email, "owner@example.com")
	}
	if cfg.AirCloud.BaseURL != DefaultBaseURL {
		t.Errorf("AirCloud.BaseURL = %q, want default %q", cfg.AirCloud.BaseURL, DefaultBaseURL)
	}
	if got := cfg.GetUpdateInterval(); got != 10*time.Minute {
		t.Errorf("GetUpdateInterval() = %v, want 10m", got)
	}
	if !cfg.AirCloud.EnableDebugging {
		t.Error("AirCloud.EnableDebugging = false, want true")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.TopicPrefix != "aircloud" {
		t.Errorf("MQTT.TopicPrefix = %q, want default %q", cfg.MQTT.TopicPrefix, "aircloud")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
aircloud:
  email: "owner@example.com"
  password: "hunter2"
  update_interval_minutes: 2000
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for out-of-range interval, got nil")
	}
	if !strings.Contains(err.Error(), "update_interval_minutes") {
		t.Errorf("error %q does not name the offending field", err)
	}
}

func TestLoad_CredentialsFromEnvironment(t *testing.T) {
	t.Setenv("AIRCLOUD_ACCOUNT_EMAIL", "env@example.com")
	t.Setenv("AIRCLOUD_ACCOUNT_PASSWORD", "from-env")

	cfg, err := Load(writeConfig(t, "api:\n  port: 9090\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AirCloud.Email != "env@example.com" || cfg.AirCloud.Password != "from-env" {
		t.Errorf("credentials = %q/%q, want values from environment", cfg.AirCloud.Email, cfg.AirCloud.Password)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.AirCloud.Email = "owner@example.com"
		cfg.AirCloud.Password = "hunter2"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}, wantErr: false},
		{name: "missing email", mutate: func(c *Config) { c.AirCloud.Email = "" }, wantErr: true},
		{name: "missing password", mutate: func(c *Config) { c.AirCloud.Password = "" }, wantErr: true},
		{name: "relative base url", mutate: func(c *Config) { c.AirCloud.BaseURL = "api.example.com" }, wantErr: true},
		{name: "interval lower bound", mutate: func(c *Config) { c.AirCloud.UpdateIntervalMinutes = 1 }, wantErr: false},
		{name: "interval upper bound", mutate: func(c *Config) { c.AirCloud.UpdateIntervalMinutes = 1440 }, wantErr: false},
		{name: "interval zero", mutate: func(c *Config) { c.AirCloud.UpdateIntervalMinutes = 0 }, wantErr: true},
		{name: "interval too long", mutate: func(c *Config) { c.AirCloud.UpdateIntervalMinutes = 1441 }, wantErr: true},
		{name: "request timeout zero", mutate: func(c *Config) { c.AirCloud.RequestTimeout = 0 }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "negative retention", mutate: func(c *Config) { c.Database.HistoryRetentionDays = -1 }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "empty topic prefix", mutate: func(c *Config) { c.MQTT.TopicPrefix = "" }, wantErr: true},
		{
			name: "empty topic prefix with mqtt disabled",
			mutate: func(c *Config) {
				c.MQTT.Enabled = false
				c.MQTT.TopicPrefix = ""
			},
			wantErr: false,
		},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "influxdb without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
		{name: "short jwt secret", mutate: func(c *Config) { c.API.Auth.JWTSecret = "too-short" }, wantErr: true},
		{name: "jwt secret", mutate: func(c *Config) { c.API.Auth.JWTSecret = strings.Repeat("k", 32) }, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		AirCloud: AirCloudConfig{UpdateIntervalMinutes: 5, RequestTimeout: 10},
		MQTT:     MQTTConfig{HealthInterval: 15},
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetUpdateInterval(); got != 5*time.Minute {
		t.Errorf("GetUpdateInterval() = %v, want 5m", got)
	}
	if got := cfg.GetRequestTimeout(); got != 10*time.Second {
		t.Errorf("GetRequestTimeout() = %v, want 10s", got)
	}
	if got := cfg.GetHealthInterval(); got != 15*time.Second {
		t.Errorf("GetHealthInterval() = %v, want 15s", got)
	}
	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("AIRCLOUD_ACCOUNT_EMAIL", "env@example.com")
	t.Setenv("AIRCLOUD_ACCOUNT_PASSWORD", "env-secret")
	t.Setenv("AIRCLOUD_BASE_URL", "https://staging.example.com")
	t.Setenv("AIRCLOUD_UPDATE_INTERVAL_MINUTES", "15")
	t.Setenv("AIRCLOUD_ENABLE_DEBUGGING", "true")
	t.Setenv("AIRCLOUD_DATABASE_PATH", "/custom/path.db")
	t.Setenv("AIRCLOUD_MQTT_HOST", "mqtt.example.com")
	t.Setenv("AIRCLOUD_MQTT_USERNAME", "testuser")
	t.Setenv("AIRCLOUD_MQTT_PASSWORD", "testpass")
	t.Setenv("AIRCLOUD_API_HOST", "192.168.1.1")
	t.Setenv("AIRCLOUD_API_JWT_SECRET", "env-jwt-secret")
	t.Setenv("AIRCLOUD_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"AirCloud.Email", cfg.AirCloud.Email, "env@example.com"},
		{"AirCloud.Password", cfg.AirCloud.Password, "env-secret"},
		{"AirCloud.BaseURL", cfg.AirCloud.BaseURL, "https://staging.example.com"},
		{"AirCloud.UpdateIntervalMinutes", cfg.AirCloud.UpdateIntervalMinutes, 15},
		{"AirCloud.EnableDebugging", cfg.AirCloud.EnableDebugging, true},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"API.Auth.JWTSecret", cfg.API.Auth.JWTSecret, "env-jwt-secret"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestApplyEnvOverrides_IgnoresMalformedNumbers(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("AIRCLOUD_UPDATE_INTERVAL_MINUTES", "often")

	applyEnvOverrides(cfg)

	if cfg.AirCloud.UpdateIntervalMinutes != DefaultUpdateIntervalMinutes {
		t.Errorf("UpdateIntervalMinutes = %d, want default %d", cfg.AirCloud.UpdateIntervalMinutes, DefaultUpdateIntervalMinutes)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.AirCloud.UpdateIntervalMinutes != DefaultUpdateIntervalMinutes {
		t.Errorf("defaultConfig UpdateIntervalMinutes = %d, want %d", cfg.AirCloud.UpdateIntervalMinutes, DefaultUpdateIntervalMinutes)
	}
	if cfg.AirCloud.RequestTimeout != 10 {
		t.Errorf("defaultConfig RequestTimeout = %d, want 10", cfg.AirCloud.RequestTimeout)
	}
	if cfg.AirCloud.AlwaysNotify {
		t.Error("defaultConfig should notify only on change")
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
}
