package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", dir)
	t.Chdir(dir)
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, TransportInMemory, cfg.Transport)
	assert.Equal(t, "background", cfg.Endpoint)
	assert.Equal(t, "portbus", cfg.Bridge.Prefix)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, filepath.Join(os.Getenv("XDG_DATA_HOME"), "portbus", "storage.db"), cfg.Storage.Path)
	assert.False(t, cfg.Messages.SuppressEmptyReply)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileThenEnv(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "portbus.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport = "nats"
endpoint = "content"

[nats]
url = "nats://bus:4222"

[messages]
suppress_empty_reply = true
`), 0o600))

	t.Setenv("PORTBUS_ENDPOINT", " popup ")
	t.Setenv("PORTBUS_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, TransportNATS, cfg.Transport)
	assert.Equal(t, "popup", cfg.Endpoint)
	assert.Equal(t, "nats://bus:4222", cfg.NATS.URL)
	assert.True(t, cfg.Messages.SuppressEmptyReply)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{Transport: "smoke-signals"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `transport "smoke-signals"`)
	assert.Contains(t, err.Error(), "endpoint is required")
	assert.Contains(t, err.Error(), "bridge.prefix is required")
}

func TestValidate_BrokerSettings(t *testing.T) {
	for _, tc := range []struct {
		transport string
		want      string
	}{
		{TransportNATS, "nats.url"},
		{TransportRabbitMQ, "rabbitmq.url"},
		{TransportKafka, "kafka.brokers"},
	} {
		t.Run(tc.transport, func(t *testing.T) {
			cfg := &Config{Transport: tc.transport, Endpoint: "bg", Bridge: BridgeConfig{Prefix: "portbus"}}
			assert.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}
