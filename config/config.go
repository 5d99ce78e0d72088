package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/tradeassist/internal/domain"
)

// Config es la configuración completa de tradeassist.
type Config struct {
	Log       LogConfig       `yaml:"log" toml:"log"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Exchange  ExchangeConfig  `yaml:"exchange" toml:"exchange"`
	Execution ExecutionConfig `yaml:"execution" toml:"execution"`
	Lock      LockConfig      `yaml:"lock" toml:"lock"`
	HTTP      HTTPConfig      `yaml:"http" toml:"http"`
	Profiles  []ProfileConfig `yaml:"profiles" toml:"profiles"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug | info | warn | error
	Format string `yaml:"format" toml:"format"` // text | json
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn" toml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// ExchangeConfig contiene el base URL de la API de Coinbase.
type ExchangeConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// ExecutionConfig controla la política de reintentos de órdenes.
type ExecutionConfig struct {
	// Polls de estado por orden, separados por PollIntervalSeconds.
	MaxRetries          int `yaml:"max_retries" toml:"max_retries"`
	PollIntervalSeconds int `yaml:"poll_interval_seconds" toml:"poll_interval_seconds"`
	// Intentos por llamada a la API, con backoff lineal de RequestBackoffMs.
	RequestAttempts  int `yaml:"request_attempts" toml:"request_attempts"`
	RequestBackoffMs int `yaml:"request_backoff_ms" toml:"request_backoff_ms"`
	SettleDelayMs    int `yaml:"settle_delay_ms" toml:"settle_delay_ms"` // espera antes del primer poll
}

// LockConfig elige el backend del lock por perfil.
type LockConfig struct {
	Backend       string `yaml:"backend" toml:"backend"` // memory | redis
	RedisAddr     string `yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword string `yaml:"redis_password" toml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" toml:"redis_db"`
	Prefix        string `yaml:"prefix" toml:"prefix"`
	TTLSeconds    int    `yaml:"ttl_seconds" toml:"ttl_seconds"`
}

// HTTPConfig controla el control API (-serve).
type HTTPConfig struct {
	Addr           string   `yaml:"addr" toml:"addr"`
	TokenHash      string   `yaml:"token_hash" toml:"token_hash"` // bcrypt; vacío = sin auth
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// ProfileConfig es la configuración tipada de un perfil de trading.
type ProfileConfig struct {
	ID                string            `yaml:"id" toml:"id"`
	Name              string            `yaml:"name" toml:"name"`
	QuoteCurrency     string            `yaml:"quote_currency" toml:"quote_currency"`
	InitialDeposit    float64           `yaml:"initial_deposit" toml:"initial_deposit"`
	BankReserve       float64           `yaml:"bank_reserve" toml:"bank_reserve"`             // fondos del exchange que el banco no puede reclamar
	ReservePercentage float64           `yaml:"reserve_percentage" toml:"reserve_percentage"` // % de holdings fuera de la asignación
	MaxAllocation     float64           `yaml:"max_allocation" toml:"max_allocation"`         // tope en $ por tracker; 0 = sin tope
	MinVolume24h      float64           `yaml:"min_volume_24h" toml:"min_volume_24h"`
	Simulation        *bool             `yaml:"simulation" toml:"simulation"` // nil = true
	AutoBuy           bool              `yaml:"auto_buy" toml:"auto_buy"`
	SkipReconcile     bool              `yaml:"skip_reconcile" toml:"skip_reconcile"`
	Whitelist         []string          `yaml:"whitelist" toml:"whitelist"`
	Blacklist         []string          `yaml:"blacklist" toml:"blacklist"`
	IntervalSeconds   int               `yaml:"interval_seconds" toml:"interval_seconds"`
	Parameters        domain.Parameters `yaml:"parameters" toml:"parameters"`

	// Solo desde el entorno: CB_API_KEY_<ID> / CB_API_SECRET_<ID>.
	APIKey    string `yaml:"-" toml:"-"`
	APISecret string `yaml:"-" toml:"-"`
}

// Load carga la configuración desde YAML o TOML (según la extensión) y el
// archivo .env si existe. Las variables de entorno sobreescriben el archivo.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Profile devuelve el perfil con ese id.
func (c *Config) Profile(id string) (ProfileConfig, bool) {
	for _, p := range c.Profiles {
		if p.ID == id {
			return p, true
		}
	}
	return ProfileConfig{}, false
}

// Validate comprueba las reglas que setDefaults no puede arreglar.
func (c *Config) Validate() error {
	if len(c.Profiles) == 0 {
		return errors.New("no profiles configured")
	}
	seen := make(map[string]bool, len(c.Profiles))
	var errs []error
	for i, p := range c.Profiles {
		switch {
		case p.ID == "":
			errs = append(errs, fmt.Errorf("profiles[%d]: id is required", i))
			continue
		case seen[p.ID]:
			errs = append(errs, fmt.Errorf("profile %q: duplicated id", p.ID))
		}
		seen[p.ID] = true

		if p.ReservePercentage < 0 || p.ReservePercentage >= 100 {
			errs = append(errs, fmt.Errorf("profile %q: reserve_percentage must be in [0, 100)", p.ID))
		}
		if p.InitialDeposit < 0 || p.BankReserve < 0 || p.MaxAllocation < 0 {
			errs = append(errs, fmt.Errorf("profile %q: amounts must not be negative", p.ID))
		}
		if !p.IsSimulation() && (p.APIKey == "" || p.APISecret == "") {
			errs = append(errs, fmt.Errorf("profile %q: live trading needs %s and %s",
				p.ID, envKey("CB_API_KEY", p.ID), envKey("CB_API_SECRET", p.ID)))
		}
	}
	if b := c.Lock.Backend; b != "memory" && b != "redis" {
		errs = append(errs, fmt.Errorf("lock.backend %q: want memory or redis", b))
	}
	return errors.Join(errs...)
}

// IsSimulation reports whether orders are synthesized instead of sent.
func (p ProfileConfig) IsSimulation() bool {
	return p.Simulation == nil || *p.Simulation
}

// Interval devuelve el espaciado entre ciclos.
func (p ProfileConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

func (e ExecutionConfig) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalSeconds) * time.Second
}

func (e ExecutionConfig) RequestBackoff() time.Duration {
	return time.Duration(e.RequestBackoffMs) * time.Millisecond
}

func (e ExecutionConfig) SettleDelay() time.Duration {
	return time.Duration(e.SettleDelayMs) * time.Millisecond
}

func (l LockConfig) TTL() time.Duration {
	return time.Duration(l.TTLSeconds) * time.Second
}

// envKey construye PREFIX_<ID> con el id en mayúsculas y sin caracteres raros.
func envKey(prefix, id string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, id)
	return prefix + "_" + clean
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("TRADEASSIST_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("TRADEASSIST_REDIS_ADDR"); v != "" {
		cfg.Lock.Backend = "redis"
		cfg.Lock.RedisAddr = v
	}
	if v := os.Getenv("TRADEASSIST_REDIS_PASSWORD"); v != "" {
		cfg.Lock.RedisPassword = v
	}
	if v := os.Getenv("TRADEASSIST_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("TRADEASSIST_HTTP_TOKEN_HASH"); v != "" {
		cfg.HTTP.TokenHash = v
	}

	// Credenciales por perfil, con CB_API_KEY / CB_API_SECRET como fallback común.
	for i := range cfg.Profiles {
		p := &cfg.Profiles[i]
		p.APIKey = firstEnv(envKey("CB_API_KEY", p.ID), "CB_API_KEY")
		p.APISecret = firstEnv(envKey("CB_API_SECRET", p.ID), "CB_API_SECRET")
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "tradeassist.db"
	}
	if cfg.Exchange.BaseURL == "" {
		cfg.Exchange.BaseURL = "https://api.coinbase.com"
	}

	if cfg.Execution.MaxRetries <= 0 {
		cfg.Execution.MaxRetries = 10
	}
	if cfg.Execution.PollIntervalSeconds <= 0 {
		cfg.Execution.PollIntervalSeconds = 3
	}
	if cfg.Execution.RequestAttempts <= 0 {
		cfg.Execution.RequestAttempts = 3
	}
	if cfg.Execution.RequestBackoffMs <= 0 {
		cfg.Execution.RequestBackoffMs = 1000
	}
	if cfg.Execution.SettleDelayMs <= 0 {
		cfg.Execution.SettleDelayMs = 1000
	}

	if cfg.Lock.Backend == "" {
		cfg.Lock.Backend = "memory"
	}
	if cfg.Lock.Prefix == "" {
		cfg.Lock.Prefix = "tradeassist:lock:"
	}
	if cfg.Lock.TTLSeconds <= 0 {
		cfg.Lock.TTLSeconds = 600
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "127.0.0.1:8080"
	}

	for i := range cfg.Profiles {
		p := &cfg.Profiles[i]
		if p.Name == "" {
			p.Name = p.ID
		}
		if p.QuoteCurrency == "" {
			p.QuoteCurrency = "USD"
		}
		if p.MinVolume24h <= 0 {
			p.MinVolume24h = 100_000
		}
		if p.IntervalSeconds <= 0 {
			p.IntervalSeconds = 10
		}
		p.Parameters = p.Parameters.WithDefaults()
	}
}
