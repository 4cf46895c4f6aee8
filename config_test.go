package pgwalreceiver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		DbHost:              "localhost",
		DbPort:              5432,
		DbName:              "postgres",
		DbUser:              "postgres",
		ReplicationSlotName: "test_slot",
	}
}

func TestConfigValidateDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, defaultDecoderPlugin, cfg.DecoderPlugin)
	assert.Equal(t, StartLatest, cfg.StartPolicy)
	assert.Equal(t, defaultReplicationMode, cfg.ReplicationMode)
	assert.Equal(t, defaultMinServerVersion, cfg.MinServerVersion)
	assert.Equal(t, time.Second, cfg.pollInterval())
}

func TestConfigValidateRequiredFields(t *testing.T) {
	cfg := validConfig()
	cfg.DbHost = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.DbName = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.ReplicationSlotName = ""
	assert.Error(t, cfg.Validate())
}

func TestConfigValidateExplicitLSN(t *testing.T) {
	cfg := validConfig()
	cfg.StartPolicy = StartExplicitLSN
	cfg.StartLSN = "5/A"
	assert.NoError(t, cfg.Validate())

	cfg = validConfig()
	cfg.StartPolicy = StartExplicitLSN
	cfg.StartLSN = "nope"
	assert.Error(t, cfg.Validate())
}

func TestConfigValidateUnknownPolicy(t *testing.T) {
	cfg := validConfig()
	cfg.StartPolicy = "WHENEVER"
	assert.Error(t, cfg.Validate())
}

func TestServerVersionNumber(t *testing.T) {
	assert.Equal(t, 14.5, serverVersionNumber("14.5 (Debian 14.5-1.pgdg110+1)"))
	assert.Equal(t, 9.6, serverVersionNumber("9.6.24"))
	assert.Equal(t, 16.0, serverVersionNumber("16.0"))
	assert.Equal(t, float64(0), serverVersionNumber(""))
	assert.Equal(t, float64(0), serverVersionNumber("devel"))
}
