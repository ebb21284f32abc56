package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileName is the file Load looks for inside the config directory.
const ConfigFileName = "parachute.cfg.json"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// VelocityMode selects the flight physics applied while mounted.
type VelocityMode string

const (
	// VelocityDescent pins the fall speed, the classic parachute.
	VelocityDescent VelocityMode = "descent"
	// VelocityThrust steers with look pitch and movement keys (hoverboard).
	VelocityThrust VelocityMode = "thrust"
)

// ThrustConfig tunes the directional-thrust velocity model.
type ThrustConfig struct {
	MovementModifier  float64 `json:"movementModifier" mapstructure:"movementModifier"`
	ClimbSpeed        float64 `json:"climbSpeed" mapstructure:"climbSpeed"`
	DescentMultiplier float64 `json:"descentMultiplier" mapstructure:"descentMultiplier"`
	MinSpeed          float64 `json:"minSpeed" mapstructure:"minSpeed"`
	LerpFactor        float64 `json:"lerpFactor" mapstructure:"lerpFactor"`
	MinLerpFactor     float64 `json:"minLerpFactor" mapstructure:"minLerpFactor"`
	LevelDeadzone     float64 `json:"levelDeadzone" mapstructure:"levelDeadzone"`
}

// AirplaneConfig tunes the bank animation of airplane mounts.
type AirplaneConfig struct {
	MaxBank       float64 `json:"maxBank" mapstructure:"maxBank"`
	BankPerDegree float64 `json:"bankPerDegree" mapstructure:"bankPerDegree"`
	BankRate      float64 `json:"bankRate" mapstructure:"bankRate"`
}

// MountConfig is the resolved, immutable flight configuration for a session.
type MountConfig struct {
	VelocityMode         VelocityMode
	FallSpeed            float64
	SideMovementModifier float64
	MaxVelocity          float64
	Thrust               ThrustConfig

	Model     string
	ModelSize float64
	// MountType is empty for the single configured model, "random" for a
	// weighted pick from the catalog, or the name of one catalog entry.
	MountType   string
	CatalogFile string

	TeamColors bool
	Backpack   bool
	Carpet     bool
	Airplane   bool
	Vehicle    bool

	Sound          string
	SoundInterval  time.Duration
	Effect         string
	EffectInterval time.Duration

	AirplaneTilt AirplaneConfig

	DisableWhenCarryingHostage bool
	DisableForBots             bool
	AccessFlag                 string
	CacheRefreshTicks          int
}

// RoundConfig drives the round lifecycle.
type RoundConfig struct {
	Enabled           bool
	RoundStartDelay   time.Duration
	DisableOnRoundEnd bool
}

// Messages are the notice templates shown to players. {seconds} is replaced in
// Countdown.
type Messages struct {
	Prefix      string
	Countdown   string
	Ready       string
	ReadyCenter string
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds settings for the SQLite storage backend.
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
}

// PostgresConfig holds connection settings for the Postgres storage backend.
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// WebSocketConfig holds settings for the live streaming backend.
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the flight session store.
type StorageConfig struct {
	Type      string
	Memory    MemoryConfig
	SQLite    SQLiteConfig
	Postgres  PostgresConfig
	WebSocket WebSocketConfig
}

// RecorderConfig controls flight session recording.
type RecorderConfig struct {
	Enabled       bool
	SampleTicks   int
	FlushInterval time.Duration
}

// InfluxConfig holds InfluxDB connection settings.
type InfluxConfig struct {
	Enabled    bool
	Protocol   string
	Host       string
	Port       string
	Token      string
	Org        string
	Bucket     string
	BackupPath string
}

// GraylogConfig holds GELF log shipping settings.
type GraylogConfig struct {
	Enabled bool
	Address string
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled        bool
	ServiceName    string
	BatchTimeout   time.Duration
	Endpoint       string
	Insecure       bool
	Metrics        bool
	MetricInterval time.Duration
}

// MonitorConfig controls the status file writer.
type MonitorConfig struct {
	Enabled  bool
	Interval time.Duration
	Path     string
}

// APIConfig holds the flight archive upload settings.
type APIConfig struct {
	Upload    bool
	ServerURL string
	APIKey    string
	Tag       string
}

func setDefaults() {
	viper.SetDefault("enabled", true)
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./parachutelogs")

	viper.SetDefault("roundStartDelay", 10)
	viper.SetDefault("disableOnRoundEnd", false)
	viper.SetDefault("disableWhenCarryingHostage", true)
	viper.SetDefault("disableForBots", false)
	viper.SetDefault("accessFlag", "")
	viper.SetDefault("cacheRefreshTicks", 4)

	viper.SetDefault("parachute.velocityMode", string(VelocityDescent))
	viper.SetDefault("parachute.fallSpeed", 32.0)
	viper.SetDefault("parachute.sideMovementModifier", 1.0075)
	viper.SetDefault("parachute.maxVelocity", 350.0)
	viper.SetDefault("parachute.thrust.movementModifier", 1.0075)
	viper.SetDefault("parachute.thrust.climbSpeed", 200.0)
	viper.SetDefault("parachute.thrust.descentMultiplier", 1.5)
	viper.SetDefault("parachute.thrust.minSpeed", 64.0)
	viper.SetDefault("parachute.thrust.lerpFactor", 0.15)
	viper.SetDefault("parachute.thrust.minLerpFactor", 0.02)
	viper.SetDefault("parachute.thrust.levelDeadzone", 5.0)
	viper.SetDefault("parachute.model", "models/props_survival/parachute/chute.vmdl")
	viper.SetDefault("parachute.modelSize", 1.0)
	viper.SetDefault("parachute.mountType", "")
	viper.SetDefault("parachute.catalogFile", "")
	viper.SetDefault("parachute.enableTeamColors", false)
	viper.SetDefault("parachute.asBackpack", false)
	viper.SetDefault("parachute.asCarpet", false)
	viper.SetDefault("parachute.airplaneTilt", false)
	viper.SetDefault("parachute.vehicleOffset", false)
	viper.SetDefault("parachute.sound", "")
	viper.SetDefault("parachute.soundInterval", "1266ms")
	viper.SetDefault("parachute.effect", "")
	viper.SetDefault("parachute.effectInterval", "0s")

	viper.SetDefault("airplane.maxBank", 35.0)
	viper.SetDefault("airplane.bankPerDegree", 4.0)
	viper.SetDefault("airplane.bankRate", 2.5)

	viper.SetDefault("messages.prefix", "[Parachute] ")
	viper.SetDefault("messages.countdown", "Parachute will be available in {seconds} seconds!")
	viper.SetDefault("messages.ready", "Parachute is ready to go. Press 'E' while in the air to use!")
	viper.SetDefault("messages.readyCenter", "Parachute ready to go!")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./flights")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "parachute")
	viper.SetDefault("storage.websocket.url", "")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("recorder.enabled", true)
	viper.SetDefault("recorder.sampleTicks", 16)
	viper.SetDefault("recorder.flushInterval", "2s")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "parachute")
	viper.SetDefault("influx.bucket", "flights")
	viper.SetDefault("influx.backupPath", "./flights_influx_backup.log.gz")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "parachute")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
	viper.SetDefault("otel.metrics", true)
	viper.SetDefault("otel.metricInterval", "1m")

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "1s")
	viper.SetDefault("monitor.path", "status.txt")

	viper.SetDefault("api.upload", false)
	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.tag", "")
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(ConfigFileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// Reload re-reads the config file that Load located.
func Reload() error {
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reloading config file: %w", err)
	}
	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// SetEnabled toggles the global feature switch at runtime.
func SetEnabled(enabled bool) {
	viper.Set("enabled", enabled)
}

// GetMountConfig resolves the flight configuration.
func GetMountConfig() MountConfig {
	return MountConfig{
		VelocityMode:         VelocityMode(viper.GetString("parachute.velocityMode")),
		FallSpeed:            viper.GetFloat64("parachute.fallSpeed"),
		SideMovementModifier: viper.GetFloat64("parachute.sideMovementModifier"),
		MaxVelocity:          viper.GetFloat64("parachute.maxVelocity"),
		Thrust: ThrustConfig{
			MovementModifier:  viper.GetFloat64("parachute.thrust.movementModifier"),
			ClimbSpeed:        viper.GetFloat64("parachute.thrust.climbSpeed"),
			DescentMultiplier: viper.GetFloat64("parachute.thrust.descentMultiplier"),
			MinSpeed:          viper.GetFloat64("parachute.thrust.minSpeed"),
			LerpFactor:        viper.GetFloat64("parachute.thrust.lerpFactor"),
			MinLerpFactor:     viper.GetFloat64("parachute.thrust.minLerpFactor"),
			LevelDeadzone:     viper.GetFloat64("parachute.thrust.levelDeadzone"),
		},
		Model:          viper.GetString("parachute.model"),
		ModelSize:      viper.GetFloat64("parachute.modelSize"),
		MountType:      viper.GetString("parachute.mountType"),
		CatalogFile:    viper.GetString("parachute.catalogFile"),
		TeamColors:     viper.GetBool("parachute.enableTeamColors"),
		Backpack:       viper.GetBool("parachute.asBackpack"),
		Carpet:         viper.GetBool("parachute.asCarpet"),
		Airplane:       viper.GetBool("parachute.airplaneTilt"),
		Vehicle:        viper.GetBool("parachute.vehicleOffset"),
		Sound:          viper.GetString("parachute.sound"),
		SoundInterval:  viper.GetDuration("parachute.soundInterval"),
		Effect:         viper.GetString("parachute.effect"),
		EffectInterval: viper.GetDuration("parachute.effectInterval"),
		AirplaneTilt: AirplaneConfig{
			MaxBank:       viper.GetFloat64("airplane.maxBank"),
			BankPerDegree: viper.GetFloat64("airplane.bankPerDegree"),
			BankRate:      viper.GetFloat64("airplane.bankRate"),
		},
		DisableWhenCarryingHostage: viper.GetBool("disableWhenCarryingHostage"),
		DisableForBots:             viper.GetBool("disableForBots"),
		AccessFlag:                 viper.GetString("accessFlag"),
		CacheRefreshTicks:          viper.GetInt("cacheRefreshTicks"),
	}
}

// GetRoundConfig resolves the round lifecycle settings. roundStartDelay is in
// seconds.
func GetRoundConfig() RoundConfig {
	return RoundConfig{
		Enabled:           viper.GetBool("enabled"),
		RoundStartDelay:   time.Duration(viper.GetFloat64("roundStartDelay") * float64(time.Second)),
		DisableOnRoundEnd: viper.GetBool("disableOnRoundEnd"),
	}
}

// GetMessages resolves the notice templates.
func GetMessages() Messages {
	return Messages{
		Prefix:      viper.GetString("messages.prefix"),
		Countdown:   viper.GetString("messages.countdown"),
		Ready:       viper.GetString("messages.ready"),
		ReadyCenter: viper.GetString("messages.readyCenter"),
	}
}

// GetStorageConfig resolves the flight session store settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("storage.postgres.host"),
			Port:     viper.GetString("storage.postgres.port"),
			Username: viper.GetString("storage.postgres.username"),
			Password: viper.GetString("storage.postgres.password"),
			Database: viper.GetString("storage.postgres.database"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetRecorderConfig resolves flight recording settings.
func GetRecorderConfig() RecorderConfig {
	return RecorderConfig{
		Enabled:       viper.GetBool("recorder.enabled"),
		SampleTicks:   viper.GetInt("recorder.sampleTicks"),
		FlushInterval: viper.GetDuration("recorder.flushInterval"),
	}
}

// GetInfluxConfig resolves InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		Protocol:   viper.GetString("influx.protocol"),
		Host:       viper.GetString("influx.host"),
		Port:       viper.GetString("influx.port"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

// GetGraylogConfig resolves GELF settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetOTelConfig resolves OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
		Metrics:        viper.GetBool("otel.metrics"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
	}
}

// GetMonitorConfig resolves status monitor settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:  viper.GetBool("monitor.enabled"),
		Interval: viper.GetDuration("monitor.interval"),
		Path:     viper.GetString("monitor.path"),
	}
}

// GetAPIConfig resolves flight archive upload settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		Upload:    viper.GetBool("api.upload"),
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
		Tag:       viper.GetString("api.tag"),
	}
}
