package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

/*SetupDefaultConfig - setup the default config options that can be overridden via the config file */
func SetupDefaultConfig() {
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.console", false)

	viper.SetDefault("server.port", 4000)

	viper.SetDefault("storage.root", "/file_storage")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.name", "audius_creator_node")
	viper.SetDefault("db.user", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.max_idle_conns", 25)
	viper.SetDefault("db.max_open_conns", 200)
	viper.SetDefault("db.conn_max_lifetime", "60s")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)

	viper.SetDefault("sync.max_export_clock_value_range", 25000)
	viper.SetDefault("sync.lock_ttl", "1h")
	viper.SetDefault("sync.export_timeout", "60s")
	viper.SetDefault("sync.fetch_timeout", "20s")
	viper.SetDefault("sync.fetch_workers", 10)
	viper.SetDefault("sync.local_gateway", "")
	viper.SetDefault("sync.health_expiry", "2160h") // 90 days

	viper.SetDefault("disk.delete_batch_size", 100)
	viper.SetDefault("disk.files_per_page", 10000)
}

/*SetupConfig - setup the configuration system */
func SetupConfig() {
	viper.SetConfigName("creatornode")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %s", err))
	}
}

/*DbAccess - postgres access and pool settings */
type DbAccess struct {
	Enabled bool

	Name     string
	User     string
	Password string
	Host     string
	Port     string

	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

/*Config - a typed snapshot of the viper configuration, read once at startup */
type Config struct {
	Port         int
	SelfEndpoint string

	StorageRoot string

	Db DbAccess

	RedisHost string
	RedisPort int

	MaxExportClockValueRange int
	SyncLockTTL              time.Duration
	ExportTimeout            time.Duration
	FetchTimeout             time.Duration
	FetchWorkers             int
	LocalGateway             string
	HealthExpiry             time.Duration

	DeleteBatchSize int
	FilesPerPage    int
}

/*ReadConfig - build the typed snapshot from viper */
func ReadConfig() *Config {
	return &Config{
		Port:         viper.GetInt("server.port"),
		SelfEndpoint: viper.GetString("server.self_endpoint"),

		StorageRoot: viper.GetString("storage.root"),

		Db: DbAccess{
			Enabled:         true,
			Name:            viper.GetString("db.name"),
			User:            viper.GetString("db.user"),
			Password:        viper.GetString("db.password"),
			Host:            viper.GetString("db.host"),
			Port:            viper.GetString("db.port"),
			MaxIdleConns:    viper.GetInt("db.max_idle_conns"),
			MaxOpenConns:    viper.GetInt("db.max_open_conns"),
			ConnMaxLifetime: viper.GetDuration("db.conn_max_lifetime"),
		},

		RedisHost: viper.GetString("redis.host"),
		RedisPort: viper.GetInt("redis.port"),

		MaxExportClockValueRange: viper.GetInt("sync.max_export_clock_value_range"),
		SyncLockTTL:              viper.GetDuration("sync.lock_ttl"),
		ExportTimeout:            viper.GetDuration("sync.export_timeout"),
		FetchTimeout:             viper.GetDuration("sync.fetch_timeout"),
		FetchWorkers:             viper.GetInt("sync.fetch_workers"),
		LocalGateway:             viper.GetString("sync.local_gateway"),
		HealthExpiry:             viper.GetDuration("sync.health_expiry"),

		DeleteBatchSize: viper.GetInt("disk.delete_batch_size"),
		FilesPerPage:    viper.GetInt("disk.files_per_page"),
	}
}
