package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del servicio.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	OCR     OCRConfig     `yaml:"ocr"`
	Extract ExtractConfig `yaml:"extract"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig controla el servidor HTTP.
type ServerConfig struct {
	Addr                  string   `yaml:"addr"`
	RequestTimeoutSeconds int      `yaml:"request_timeout_seconds"`
	MaxBodyBytes          int64    `yaml:"max_body_bytes"`
	CORSOrigins           []string `yaml:"cors_origins"`
}

// StorageConfig controla dónde se persisten los sets.
type StorageConfig struct {
	Driver   string `yaml:"driver"`    // sqlite | postgres
	DSN      string `yaml:"dsn"`       // ruta SQLite, ":memory:" o URL de Postgres
	MaxConns int    `yaml:"max_conns"` // solo postgres
}

// CacheConfig controla la cache de sets leídos.
type CacheConfig struct {
	Driver        string `yaml:"driver"` // memory | redis | none
	TTLSeconds    int    `yaml:"ttl_seconds"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// OCRConfig configura el cliente OCR. Sin api_key la extracción de
// documentos queda deshabilitada (el texto plano sigue funcionando).
type OCRConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	Language       string  `yaml:"language"`
	RatePerSec     float64 `yaml:"rate_per_sec"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// ExtractConfig ajusta el reconocimiento de tickets.
type ExtractConfig struct {
	Bookmakers []string `yaml:"bookmakers"` // vacío = lista por defecto
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Un path vacío arranca solo con defaults y variables de entorno.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// RequestTimeout devuelve el timeout por request como time.Duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// CacheTTL devuelve la TTL de la cache. Cero significa sin expiración.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// OCRTimeout devuelve el timeout HTTP del cliente OCR.
func (c *Config) OCRTimeout() time.Duration {
	return time.Duration(c.OCR.TimeoutSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SUREBET_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SUREBET_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("SUREBET_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("SUREBET_CACHE_DRIVER"); v != "" {
		cfg.Cache.Driver = v
	}
	if v := os.Getenv("SUREBET_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("SUREBET_REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if v := os.Getenv("SUREBET_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SUREBET_REDIS_DB: %w", err)
		}
		cfg.Cache.RedisDB = n
	}
	if v := os.Getenv("OCR_API_KEY"); v != "" {
		cfg.OCR.APIKey = v
	}
	if v := os.Getenv("SUREBET_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	return nil
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.RequestTimeoutSeconds <= 0 {
		cfg.Server.RequestTimeoutSeconds = 30
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = 2 << 20 // 2 MiB: el OCR acepta hasta 1 MiB
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DSN == "" && cfg.Storage.Driver == "sqlite" {
		cfg.Storage.DSN = "surebet.db"
	}
	if cfg.Storage.MaxConns <= 0 {
		cfg.Storage.MaxConns = 10
	}
	if cfg.Cache.Driver == "" {
		cfg.Cache.Driver = "memory"
	}
	if cfg.Cache.TTLSeconds <= 0 {
		cfg.Cache.TTLSeconds = 300
	}
	if cfg.Cache.RedisAddr == "" {
		cfg.Cache.RedisAddr = "localhost:6379"
	}
	if cfg.OCR.Language == "" {
		cfg.OCR.Language = "spa"
	}
	if cfg.OCR.RatePerSec <= 0 {
		cfg.OCR.RatePerSec = 1
	}
	if cfg.OCR.TimeoutSeconds <= 0 {
		cfg.OCR.TimeoutSeconds = 30
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("storage.driver %q not in sqlite|postgres", c.Storage.Driver)
	}
	switch c.Cache.Driver {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("cache.driver %q not in memory|redis|none", c.Cache.Driver)
	}
	return nil
}
