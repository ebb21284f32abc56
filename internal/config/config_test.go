package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"roundStartDelay": 3,
		"parachute": { "fallSpeed": 50, "velocityMode": "thrust" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, 3, viper.GetInt("roundStartDelay"))
	assert.Equal(t, 50.0, viper.GetFloat64("parachute.fallSpeed"))
	assert.Equal(t, "thrust", viper.GetString("parachute.velocityMode"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, true, viper.GetBool("enabled"))
	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./parachutelogs", viper.GetString("logsDir"))
	assert.Equal(t, 10, viper.GetInt("roundStartDelay"))
	assert.Equal(t, 4, viper.GetInt("cacheRefreshTicks"))
	assert.Equal(t, "descent", viper.GetString("parachute.velocityMode"))
	assert.Equal(t, 32.0, viper.GetFloat64("parachute.fallSpeed"))
	assert.Equal(t, "memory", viper.GetString("storage.type"))
	assert.Equal(t, "./flights", viper.GetString("storage.memory.outputDir"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, false, viper.GetBool("otel.enabled"))
	assert.Equal(t, "parachute", viper.GetString("otel.serviceName"))
	assert.Equal(t, "5s", viper.GetString("otel.batchTimeout"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestReload_PicksUpChanges(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{"parachute": {"fallSpeed": 40}}`)
	require.NoError(t, Load(dir))
	assert.Equal(t, 40.0, GetMountConfig().FallSpeed)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(`{"parachute": {"fallSpeed": 20}}`), 0644))
	require.NoError(t, Reload())
	assert.Equal(t, 20.0, GetMountConfig().FallSpeed)
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestSetEnabled(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	SetEnabled(false)
	assert.False(t, GetRoundConfig().Enabled)
	SetEnabled(true)
	assert.True(t, GetRoundConfig().Enabled)
}

func TestGetMountConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetMountConfig()
	assert.Equal(t, VelocityDescent, cfg.VelocityMode)
	assert.Equal(t, 32.0, cfg.FallSpeed)
	assert.Equal(t, 1.0075, cfg.SideMovementModifier)
	assert.Equal(t, 1.0, cfg.ModelSize)
	assert.Equal(t, 1266*time.Millisecond, cfg.SoundInterval)
	assert.Equal(t, 35.0, cfg.AirplaneTilt.MaxBank)
	assert.True(t, cfg.DisableWhenCarryingHostage)
	assert.Equal(t, 4, cfg.CacheRefreshTicks)
	assert.NoError(t, cfg.Validate())
}

func TestGetMountConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"disableForBots": true,
		"accessFlag": "vip",
		"parachute": {
			"model": "models/board.vmdl",
			"modelSize": 0.5,
			"asCarpet": true,
			"enableTeamColors": true,
			"thrust": { "minSpeed": 100 }
		}
	}`)))

	cfg := GetMountConfig()
	assert.Equal(t, "models/board.vmdl", cfg.Model)
	assert.Equal(t, 0.5, cfg.ModelSize)
	assert.True(t, cfg.Carpet)
	assert.True(t, cfg.TeamColors)
	assert.True(t, cfg.DisableForBots)
	assert.Equal(t, "vip", cfg.AccessFlag)
	assert.Equal(t, 100.0, cfg.Thrust.MinSpeed)
}

func TestGetRoundConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"roundStartDelay": 2.5, "disableOnRoundEnd": true}`)))

	cfg := GetRoundConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 2500*time.Millisecond, cfg.RoundStartDelay)
	assert.True(t, cfg.DisableOnRoundEnd)
}

func TestGetMessages(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"messages": {"prefix": "> "}}`)))

	msgs := GetMessages()
	assert.Equal(t, "> ", msgs.Prefix)
	assert.Contains(t, msgs.Countdown, "{seconds}")
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, "./flights", cfg.Memory.OutputDir)
	assert.Equal(t, true, cfg.Memory.CompressOutput)
	assert.Equal(t, 3*time.Minute, cfg.SQLite.DumpInterval)
	assert.Equal(t, "5432", cfg.Postgres.Port)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"storage": {
			"type": "websocket",
			"memory": { "outputDir": "/tmp/out", "compressOutput": false },
			"websocket": { "url": "ws://localhost:5000/ws", "secret": "s3cret" }
		}
	}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "websocket", cfg.Type)
	assert.Equal(t, "/tmp/out", cfg.Memory.OutputDir)
	assert.Equal(t, false, cfg.Memory.CompressOutput)
	assert.Equal(t, "ws://localhost:5000/ws", cfg.WebSocket.URL)
	assert.Equal(t, "s3cret", cfg.WebSocket.Secret)
}

func TestGetTelemetryConfigs_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	otelCfg := GetOTelConfig()
	assert.False(t, otelCfg.Enabled)
	assert.Equal(t, "parachute", otelCfg.ServiceName)
	assert.Equal(t, 5*time.Second, otelCfg.BatchTimeout)
	assert.True(t, otelCfg.Insecure)

	influxCfg := GetInfluxConfig()
	assert.False(t, influxCfg.Enabled)
	assert.Equal(t, "flights", influxCfg.Bucket)

	graylogCfg := GetGraylogConfig()
	assert.False(t, graylogCfg.Enabled)

	monitorCfg := GetMonitorConfig()
	assert.True(t, monitorCfg.Enabled)
	assert.Equal(t, time.Second, monitorCfg.Interval)

	recCfg := GetRecorderConfig()
	assert.True(t, recCfg.Enabled)
	assert.Equal(t, 16, recCfg.SampleTicks)
}

func TestGetAPIConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{"api": {"upload": true, "apiKey": "s3cret"}}`)))

	assert.Equal(t, APIConfig{
		Upload:    true,
		ServerURL: "http://localhost:5000",
		APIKey:    "s3cret",
	}, GetAPIConfig())
}
