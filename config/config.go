package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Game     GameConfig     `mapstructure:"game"`
	Security SecurityConfig `mapstructure:"security"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
	// AdminIPs restricts /api/admin to these client IPs. Empty allows all.
	AdminIPs []string `mapstructure:"admin_ips"`
	// PublicURL is used to build password recovery links.
	PublicURL string `mapstructure:"public_url"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // memory | sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

// GameConfig holds the tunables of the civilization model.
type GameConfig struct {
	StartFood          int64 `mapstructure:"start_food"`
	StartGold          int64 `mapstructure:"start_gold"`
	StartMaterials     int64 `mapstructure:"start_materials"`
	StartMilitaryPower int64 `mapstructure:"start_military_power"`
	MaxCharacters      int   `mapstructure:"max_characters"`
	LedgerRetries      int   `mapstructure:"ledger_retries"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RecoveryTTL    time.Duration `mapstructure:"recovery_ttl"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the browser origins permitted by CORS and SSE.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins    []string `mapstructure:"allowed_origins"`
	MinSignUpPassword int      `mapstructure:"min_signup_password"`
	MinResetPassword  int      `mapstructure:"min_reset_password"`
	BcryptCost        int      `mapstructure:"bcrypt_cost"`
}

type CatalogConfig struct {
	// JobsFile is an optional YAML file with the job catalog seed.
	JobsFile string `mapstructure:"jobs_file"`
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.public_url", "http://localhost:5173")
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/civ.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("game.start_food", 100)
	v.SetDefault("game.start_gold", 50)
	v.SetDefault("game.start_materials", 30)
	v.SetDefault("game.start_military_power", 0)
	v.SetDefault("game.max_characters", 50)
	v.SetDefault("game.ledger_retries", 3)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.recovery_ttl", "1h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("security.min_signup_password", 6)
	v.SetDefault("security.min_reset_password", 8)
	v.SetDefault("security.bcrypt_cost", 12)
}
