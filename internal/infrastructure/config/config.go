package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 應用配置
type Config struct {
	App         AppConfig       `mapstructure:"app"`
	Server      ServerConfig    `mapstructure:"server"`
	Bridge      BridgeConfig    `mapstructure:"bridge"`
	Auth        AuthConfig      `mapstructure:"auth"`
	Fetch       FetchConfig     `mapstructure:"fetch"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Import      ImportConfig    `mapstructure:"import"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	DedupWindow time.Duration   `mapstructure:"dedup_window"`
	LogLevel    string          `mapstructure:"log_level"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env     string `mapstructure:"env"`
	Debug   bool   `mapstructure:"debug"`
	Version string `mapstructure:"version"`
	Name    string `mapstructure:"name"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// BridgeConfig 內嵌直譯器橋接設定
// Transport: process（子行程 stdin/stdout）、page（無頭瀏覽器頁面）、none（使用內建解析器）
type BridgeConfig struct {
	Transport   string        `mapstructure:"transport"`
	Command     string        `mapstructure:"command"`
	Args        []string      `mapstructure:"args"`
	PageURL     string        `mapstructure:"page_url"`
	InitTimeout time.Duration `mapstructure:"init_timeout"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	WildMode    bool          `mapstructure:"wild_mode"`
}

// AuthConfig 登入流程設定
type AuthConfig struct {
	Timeout     time.Duration      `mapstructure:"timeout"`
	Headless    bool               `mapstructure:"headless"`
	UserAgent   string             `mapstructure:"user_agent"`
	Credentials []CredentialConfig `mapstructure:"credentials"`
}

// CredentialConfig 單一網站的登入帳密
type CredentialConfig struct {
	Host     string `mapstructure:"host"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// FetchConfig 頁面抓取設定
type FetchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	Workers      int           `mapstructure:"workers"`
	MaxQueueSize int           `mapstructure:"max_queue_size"`
	CacheEnabled bool          `mapstructure:"cache_enabled"`
	CacheSize    int           `mapstructure:"cache_size"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

// DatabaseConfig PostgreSQL 設定
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RedisConfig Redis 設定
type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	HistoryTTL time.Duration `mapstructure:"history_ttl"`
}

// ImportConfig 匯入流程設定
type ImportConfig struct {
	DefaultPersons  int           `mapstructure:"default_persons"`
	IgnoredPatterns []string      `mapstructure:"ignored_patterns"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LoadConfig 載入設定
func LoadConfig() (*Config, error) {
	// 加載 .env 文件，檔案不存在時只使用環境變數與預設值
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("bridge.transport", "BRIDGE_TRANSPORT")
	v.BindEnv("bridge.command", "BRIDGE_COMMAND")
	v.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")
	v.BindEnv("rate_limit.requests", "RATE_LIMIT_REQUESTS")
	v.BindEnv("rate_limit.window", "RATE_LIMIT_WINDOW")
	v.BindEnv("dedup_window", "DEDUP_WINDOW")
	v.BindEnv("log_level", "LOG_LEVEL")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// logger 尚未初始化，改用 fmt.Println
	fmt.Println("Loading configuration", "bridge_transport:", v.GetString("bridge.transport"), "database:", maskDSN(v.GetString("database.url")))

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// maskDSN 遮罩連線字串中的密碼
func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	userinfo := dsn[scheme+3 : at]
	if colon := strings.Index(userinfo, ":"); colon >= 0 {
		userinfo = userinfo[:colon] + ":****"
	}
	return dsn[:scheme+3] + userinfo + dsn[at:]
}

// Credential 取得某網站設定的帳號密碼
func (c AuthConfig) Credential(host string) (username, password string, ok bool) {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, cred := range c.Credentials {
		if strings.TrimPrefix(strings.ToLower(cred.Host), "www.") == host && cred.Username != "" {
			return cred.Username, cred.Password, true
		}
	}
	return "", "", false
}

func setDefaults(v *viper.Viper) {
	// 應用程式設定
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", true)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.name", "recipe-importer")
	v.SetDefault("log_level", "info")

	// 伺服器設定
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.max_body_bytes", 1<<20)

	// 橋接設定
	v.SetDefault("bridge.transport", "none")
	v.SetDefault("bridge.command", "python3")
	v.SetDefault("bridge.args", []string{"-u", "bridge/main.py"})
	v.SetDefault("bridge.init_timeout", "60s")
	v.SetDefault("bridge.call_timeout", "30s")
	v.SetDefault("bridge.wild_mode", true)

	// 登入流程設定
	v.SetDefault("auth.timeout", "60s")
	v.SetDefault("auth.headless", true)
	v.SetDefault("auth.user_agent", "Mozilla/5.0")

	// 抓取設定
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.user_agent", "Mozilla/5.0")
	v.SetDefault("fetch.workers", 4)
	v.SetDefault("fetch.max_queue_size", 100)
	v.SetDefault("fetch.cache_enabled", true)
	v.SetDefault("fetch.cache_size", 500)
	v.SetDefault("fetch.cache_ttl", "30m")

	// 資料庫設定
	v.SetDefault("database.max_conns", 25)

	// Redis 設定
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.history_ttl", "720h")

	// 匯入設定
	v.SetDefault("import.default_persons", 4)
	v.SetDefault("import.ignored_patterns", []string{})
	v.SetDefault("import.session_ttl", "1h")

	// 限流設定
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("dedup_window", "1s")
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	if config.Server.Port == 0 {
		return fmt.Errorf("server port is required")
	}

	switch config.Bridge.Transport {
	case "none", "process", "page":
	default:
		return fmt.Errorf("invalid bridge transport %q", config.Bridge.Transport)
	}
	if config.Bridge.Transport == "process" && config.Bridge.Command == "" {
		return fmt.Errorf("bridge command is required for process transport")
	}
	if config.Bridge.Transport == "page" && config.Bridge.PageURL == "" {
		return fmt.Errorf("bridge page url is required for page transport")
	}
	if config.Bridge.InitTimeout <= 0 || config.Bridge.CallTimeout <= 0 {
		return fmt.Errorf("invalid bridge timeouts")
	}

	if config.Auth.Timeout <= 0 {
		return fmt.Errorf("invalid auth timeout")
	}

	if config.Fetch.Workers <= 0 {
		return fmt.Errorf("invalid fetch workers")
	}
	if config.Fetch.MaxQueueSize <= 0 {
		return fmt.Errorf("invalid fetch max queue size")
	}
	if config.Fetch.CacheEnabled {
		if config.Fetch.CacheSize <= 0 {
			return fmt.Errorf("invalid fetch cache size")
		}
		if config.Fetch.CacheTTL <= 0 {
			return fmt.Errorf("invalid fetch cache ttl")
		}
	}

	if config.Import.DefaultPersons <= 0 {
		return fmt.Errorf("invalid import default persons")
	}

	return nil
}
