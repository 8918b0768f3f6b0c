package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Socket   SocketConfig   `mapstructure:"socket"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Export   ExportConfig   `mapstructure:"export"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
}

// APIConfig describes the REST side of the backend contract.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SocketConfig describes the push channel endpoint.
type SocketConfig struct {
	URL string `mapstructure:"url"`
	// Token defaults to the API token when empty.
	Token string `mapstructure:"token"`
}

// WatchConfig tunes the job snapshot reconciler.
type WatchConfig struct {
	// RunningPoll is the snapshot poll interval while a job is running;
	// IdlePoll applies in every other state.
	RunningPoll time.Duration `mapstructure:"running_poll"`
	IdlePoll    time.Duration `mapstructure:"idle_poll"`
	BufferSize  int           `mapstructure:"buffer_size"`
}

// ExportConfig controls archival of terminal job logs to S3-compatible
// storage. Disabled unless a bucket is configured.
type ExportConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
}

// ServerConfig configures the contract simulator (cmd/etlsim).
type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
	// Token is the bearer credential the simulator accepts on both the
	// REST API and the socket handshake.
	Token string `mapstructure:"token"`
	// Batch pipeline shape for simulated runs.
	BatchSize     int           `mapstructure:"batch_size"`
	RowDelay      time.Duration `mapstructure:"row_delay"`
	LitigatorRate float64       `mapstructure:"litigator_rate"`
	DNCRate       float64       `mapstructure:"dnc_rate"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("socket.url", "ws://localhost:8080/socket")
	v.SetDefault("watch.running_poll", 2*time.Second)
	v.SetDefault("watch.idle_poll", 10*time.Second)
	v.SetDefault("watch.buffer_size", 100)
	v.SetDefault("export.enabled", false)
	v.SetDefault("export.use_ssl", true)
	v.SetDefault("export.prefix", "job-logs")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("server.batch_size", 250)
	v.SetDefault("server.row_delay", 5*time.Millisecond)
	v.SetDefault("server.litigator_rate", 0.04)
	v.SetDefault("server.dnc_rate", 0.12)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/etl-jobs.db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("api.base_url", "ETL_API_BASE_URL")
	v.BindEnv("api.token", "ETL_API_TOKEN")
	v.BindEnv("socket.url", "ETL_SOCKET_URL")
	v.BindEnv("socket.token", "ETL_SOCKET_TOKEN")
	v.BindEnv("server.token", "ETL_SERVER_TOKEN")
	v.BindEnv("export.endpoint", "EXPORT_S3_ENDPOINT")
	v.BindEnv("export.access_key", "EXPORT_S3_ACCESS_KEY")
	v.BindEnv("export.secret_key", "EXPORT_S3_SECRET_KEY")
	v.BindEnv("export.bucket", "EXPORT_S3_BUCKET")
	v.BindEnv("database.password", "DB_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Socket.Token == "" {
		cfg.Socket.Token = cfg.API.Token
	}

	return &cfg, nil
}
