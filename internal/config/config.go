package config

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	App struct {
		Name string
	}
	Server struct {
		Addr string
		Port string
	}
	Auth struct {
		JWTSecret string
		// parsed separately by ParseTTL
		TokenTTL time.Duration `mapstructure:"-"`
	}
	CORS struct {
		AllowedOrigin string
	}
	Log struct {
		Level string
	}
	Store struct {
		Backend  string
		Path     string
		Bucket   string
		Prefix   string
		Region   string
		Endpoint string
	}
	AWS struct {
		Profile string
	}
	Metrics struct {
		Enabled bool
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("TASKAPI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.name", "Task API")
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.port", "")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttl", "1h")
	v.SetDefault("cors.allowedorigin", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("store.backend", BackendSQLite)
	v.SetDefault("store.path", "data/tasks.db")
	v.SetDefault("store.bucket", "")
	v.SetDefault("store.prefix", "taskapi")
	v.SetDefault("store.region", "us-east-1")
	v.SetDefault("store.endpoint", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("metrics.enabled", true)

	// legacy variable names
	bindings := map[string]string{
		"app.name":           "API_NAME",
		"server.port":        "PORT",
		"auth.jwtsecret":     "JWT_SECRET",
		"auth.tokenttl":      "JWT_EXPIRES_IN",
		"cors.allowedorigin": "FRONTEND_URL",
	}
	for key, legacy := range bindings {
		envKey := "TASKAPI_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ttl, err := ParseTTL(v.GetString("auth.tokenttl"))
	if err != nil {
		return Config{}, fmt.Errorf("auth token ttl: %w", err)
	}
	cfg.Auth.TokenTTL = ttl

	if cfg.Server.Port != "" {
		host, _, err := net.SplitHostPort(cfg.Server.Addr)
		if err != nil {
			host = ""
		}
		cfg.Server.Addr = net.JoinHostPort(host, cfg.Server.Port)
	}

	return cfg, nil
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth jwt secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token ttl must be positive")
	}
	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store path is required for the sqlite backend")
		}
	case BackendS3:
		if c.Store.Bucket == "" {
			return fmt.Errorf("store bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}

func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		partsIndex := strings.Index(line, "=")
		if partsIndex <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:partsIndex])
		value := strings.TrimSpace(line[partsIndex+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
