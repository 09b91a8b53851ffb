// Package config содержит параметры запуска сервиса: флаги, .env и переменные окружения,
// а также выбор хранилища ссылок
package config

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// StorageType тип хранилища
type StorageType string

// виды хранилища
const (
	StorageMemory StorageType = "memory"
	StorageDB     StorageType = "postgres"
	StorageRedis  StorageType = "redis"
)

//nolint:gochecknoglobals
var (
	AppName   = "shortener"
	PathToENV = ".env"
)

// Config параметры запуска
type Config struct {
	Address     string
	BaseAddress string
	GRPCAddress string

	StorageType   StorageType
	DSN           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	APIKeys   []string
	SecretKey string

	MaxURLLength   int
	AllowedSchemes []string

	GlobalCapacity   int
	GlobalRate       float64
	ClientCapacity   int
	ClientRate       float64
	ClientIdleTTL    time.Duration
	ClientEvictEvery time.Duration

	MetricsStreamInterval time.Duration
	TrustedSubnet         string

	EnableHTTPS bool
	CertFile    string
	KeyFile     string

	StaticDir   string
	CORSOrigins []string

	TracingEnabled bool
	OTLPEndpoint   string

	ShutdownTimeout time.Duration
	LogLevel        string
}

// Default значения по умолчанию
func Default() Config {
	return Config{
		Address:               ":8090",
		BaseAddress:           "http://localhost:8090",
		StorageType:           StorageMemory,
		SecretKey:             "default_key",
		MaxURLLength:          2048,
		AllowedSchemes:        []string{"http", "https"},
		GlobalCapacity:        50000,
		GlobalRate:            10000,
		ClientCapacity:        20,
		ClientRate:            5,
		ClientIdleTTL:         30 * time.Minute,
		ClientEvictEvery:      time.Minute,
		MetricsStreamInterval: time.Second,
		CertFile:              "cert.pem",
		KeyFile:               "key.pem",
		CORSOrigins:           []string{"http://localhost:8090", "http://localhost:3000"},
		OTLPEndpoint:          "localhost:4317",
		ShutdownTimeout:       10 * time.Second,
		LogLevel:              "info",
	}
}

// Load собирает конфиг: значения по умолчанию, затем флаги, затем .env и окружение.
// Окружение имеет приоритет над флагами
func Load(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet(AppName, flag.ContinueOnError)
	fs.StringVar(&cfg.Address, "a", cfg.Address, "The address to start the server on")
	fs.StringVar(&cfg.BaseAddress, "b", cfg.BaseAddress, "The address to return after shortener")
	fs.StringVar(&cfg.DSN, "d", cfg.DSN, "Database connection string")
	fs.StringVar(&cfg.SecretKey, "k", cfg.SecretKey, "Secret key for API key fingerprints")
	fs.BoolVar(&cfg.EnableHTTPS, "s", cfg.EnableHTTPS, "Serve HTTPS with a self-signed certificate")
	fs.StringVar(&cfg.GRPCAddress, "g", cfg.GRPCAddress, "The address to start the gRPC server on")
	fs.StringVar(&cfg.TrustedSubnet, "t", cfg.TrustedSubnet, "Trusted subnet (CIDR) for /metrics")
	storage := fs.String("storage", "", "Storage backend: memory, postgres or redis")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *storage != "" {
		cfg.StorageType = StorageType(*storage)
	}

	// .env необязателен
	_ = godotenv.Load(PathToENV)

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.resolveStorage(*storage != "")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	envString("SERVER_ADDRESS", &c.Address)
	envString("BASE_URL", &c.BaseAddress)
	envString("GRPC_ADDRESS", &c.GRPCAddress)
	envString("DATABASE_DSN", &c.DSN)
	envString("REDIS_ADDR", &c.RedisAddr)
	envString("REDIS_PASSWORD", &c.RedisPassword)
	collect(envInt("REDIS_DB", &c.RedisDB))
	envList("API_KEYS", &c.APIKeys)
	envString("API_KEY_SECRET", &c.SecretKey)
	collect(envInt("MAX_URL_LENGTH", &c.MaxURLLength))
	envList("ALLOWED_SCHEMES", &c.AllowedSchemes)
	collect(envInt("GLOBAL_CAPACITY", &c.GlobalCapacity))
	collect(envFloat("GLOBAL_RATE", &c.GlobalRate))
	collect(envInt("CLIENT_CAPACITY", &c.ClientCapacity))
	collect(envFloat("CLIENT_RATE", &c.ClientRate))
	collect(envDuration("CLIENT_IDLE_TTL", &c.ClientIdleTTL))
	collect(envDuration("CLIENT_EVICT_EVERY", &c.ClientEvictEvery))
	collect(envDuration("METRICS_STREAM_INTERVAL", &c.MetricsStreamInterval))
	envString("TRUSTED_SUBNET", &c.TrustedSubnet)
	collect(envBool("ENABLE_HTTPS", &c.EnableHTTPS))
	envString("TLS_CERT_FILE", &c.CertFile)
	envString("TLS_KEY_FILE", &c.KeyFile)
	envString("STATIC_DIR", &c.StaticDir)
	envList("CORS_ORIGINS", &c.CORSOrigins)
	collect(envBool("TRACING_ENABLED", &c.TracingEnabled))
	envString("OTLP_ENDPOINT", &c.OTLPEndpoint)
	collect(envDuration("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout))
	envString("LOG_LEVEL", &c.LogLevel)

	if v, ok := os.LookupEnv("STORAGE"); ok && v != "" {
		c.StorageType = StorageType(strings.ToLower(strings.TrimSpace(v)))
	}

	return errors.Join(errs...)
}

// positiveRate конечное положительное число (NaN и Inf не проходят)
func positiveRate(r float64) bool {
	return r > 0 && !math.IsInf(r, 0)
}

// resolveStorage если хранилище не задано явно, выбираем по переданным параметрам:
// DSN → postgres, адрес Redis → redis, иначе память
func (c *Config) resolveStorage(explicitFlag bool) {
	if _, ok := os.LookupEnv("STORAGE"); ok || explicitFlag {
		return
	}

	switch {
	case c.DSN != "":
		c.StorageType = StorageDB
	case c.RedisAddr != "":
		c.StorageType = StorageRedis
	default:
		c.StorageType = StorageMemory
	}
}

// Validate проверяет согласованность параметров
func (c *Config) Validate() error {
	var errs []error

	switch c.StorageType {
	case StorageMemory:
	case StorageDB:
		if c.DSN == "" {
			errs = append(errs, errors.New("postgres storage requires DATABASE_DSN"))
		}
	case StorageRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis storage requires REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage type %q", c.StorageType))
	}

	if c.GlobalCapacity <= 0 {
		errs = append(errs, fmt.Errorf("GLOBAL_CAPACITY must be positive, got %d", c.GlobalCapacity))
	}
	if !positiveRate(c.GlobalRate) {
		errs = append(errs, fmt.Errorf("GLOBAL_RATE must be positive, got %g", c.GlobalRate))
	}
	if c.ClientCapacity <= 0 {
		errs = append(errs, fmt.Errorf("CLIENT_CAPACITY must be positive, got %d", c.ClientCapacity))
	}
	if !positiveRate(c.ClientRate) {
		errs = append(errs, fmt.Errorf("CLIENT_RATE must be positive, got %g", c.ClientRate))
	}
	if c.MaxURLLength <= 0 {
		errs = append(errs, fmt.Errorf("MAX_URL_LENGTH must be positive, got %d", c.MaxURLLength))
	}
	if len(c.AllowedSchemes) == 0 {
		errs = append(errs, errors.New("ALLOWED_SCHEMES must not be empty"))
	}
	if c.MetricsStreamInterval <= 0 {
		errs = append(errs, fmt.Errorf("METRICS_STREAM_INTERVAL must be positive, got %s", c.MetricsStreamInterval))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout))
	}

	return errors.Join(errs...)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envList(key string, dst *[]string) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func envBool(key string, dst *bool) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
