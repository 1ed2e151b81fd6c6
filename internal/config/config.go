// Package config carga la configuración del servicio desde YAML y la pisa
// con variables de entorno. Los secretos (master key, contraseñas SMTP)
// solo entran por entorno, nunca por el archivo.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		// TrustProxyHeaders habilita X-Forwarded-For para rate limiting.
		// Activar solo detrás de un proxy propio que pise el header.
		TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
	} `yaml:"server"`

	Storage struct {
		// memory | postgres
		Driver  string `yaml:"driver"`
		DSN     string `yaml:"dsn"`
		Migrate bool   `yaml:"migrate"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Challenge struct {
		// memory | redis
		Backend       string        `yaml:"backend"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"challenge"`

	Lookup struct {
		// BaseURL del IdP externo; vacío = directorio estático (solo dev)
		BaseURL string            `yaml:"base_url"`
		Timeout time.Duration     `yaml:"timeout"`
		APIKey  string            `yaml:"api_key"`
		Static  map[string]string `yaml:"static"` // identityID -> email (dev)
	} `yaml:"lookup"`

	Resolver struct {
		// mfa_required | trusted
		OnLookupFailure string        `yaml:"on_lookup_failure"`
		LookupCacheTTL  time.Duration `yaml:"lookup_cache_ttl"`
	} `yaml:"resolver"`

	Trust struct {
		// 0 = la confianza no vence
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"trust"`

	Session struct {
		Issuer   string        `yaml:"issuer"`
		Audience string        `yaml:"audience"`
		TTL      time.Duration `yaml:"ttl"`
		KeyPath  string        `yaml:"key_path"`
	} `yaml:"session"`

	WebAuthn struct {
		RPDisplayName string        `yaml:"rp_display_name"`
		RPID          string        `yaml:"rp_id"`
		RPOrigins     []string      `yaml:"rp_origins"`
		CeremonyTTL   time.Duration `yaml:"ceremony_ttl"`
	} `yaml:"webauthn"`

	Timecode struct {
		Issuer      string        `yaml:"issuer"`
		WindowSteps int           `yaml:"window_steps"`
		EnrollTTL   time.Duration `yaml:"enroll_ttl"`
	} `yaml:"timecode"`

	Sidechannel struct {
		CodeTTL        time.Duration `yaml:"code_ttl"`
		Cooldown       time.Duration `yaml:"cooldown"`
		DebugEchoCodes bool          `yaml:"debug_echo_codes"`
	} `yaml:"sidechannel"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"`                  // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"smtp"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		Global  struct {
			Limit  int           `yaml:"limit"`
			Window time.Duration `yaml:"window"`
		} `yaml:"global"`
		Verify struct {
			Limit  int           `yaml:"limit"`
			Window time.Duration `yaml:"window"`
		} `yaml:"verify"`
	} `yaml:"rate"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json | console
	} `yaml:"log"`
}

// Load lee el YAML (si path no está vacío), aplica overrides de entorno
// y defaults sanos. Sin archivo también funciona: todo por entorno.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	c.applyEnvOverrides()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8082"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Challenge.Backend == "" {
		c.Challenge.Backend = c.Cache.Kind
	}
	if c.Challenge.SweepInterval == 0 {
		c.Challenge.SweepInterval = time.Minute
	}
	if c.Lookup.Timeout == 0 {
		c.Lookup.Timeout = 3 * time.Second
	}
	if c.Resolver.OnLookupFailure == "" {
		c.Resolver.OnLookupFailure = "mfa_required"
	}
	if c.Resolver.LookupCacheTTL == 0 {
		c.Resolver.LookupCacheTTL = 30 * time.Second
	}
	if c.Trust.TTL == 0 {
		c.Trust.TTL = 30 * 24 * time.Hour
	}
	if c.Session.Issuer == "" {
		c.Session.Issuer = "secondjohn"
	}
	if c.Session.Audience == "" {
		c.Session.Audience = "dashboard"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 15 * time.Minute
	}
	if c.Session.KeyPath == "" {
		c.Session.KeyPath = "data/session.key"
	}
	if c.WebAuthn.RPDisplayName == "" {
		c.WebAuthn.RPDisplayName = "SecondJohn"
	}
	if c.WebAuthn.RPID == "" {
		c.WebAuthn.RPID = "localhost"
	}
	if len(c.WebAuthn.RPOrigins) == 0 {
		c.WebAuthn.RPOrigins = []string{"http://localhost:8082"}
	}
	if c.Timecode.Issuer == "" {
		c.Timecode.Issuer = "SecondJohn"
	}
	if c.Timecode.WindowSteps == 0 {
		c.Timecode.WindowSteps = 1
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.Rate.Global.Limit == 0 {
		c.Rate.Global.Limit = 60
	}
	if c.Rate.Global.Window == 0 {
		c.Rate.Global.Window = time.Minute
	}
	if c.Rate.Verify.Limit == 0 {
		c.Rate.Verify.Limit = 10
	}
	if c.Rate.Verify.Window == 0 {
		c.Rate.Verify.Window = time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		if c.App.Env == "dev" {
			c.Log.Format = "console"
		} else {
			c.Log.Format = "json"
		}
	}
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvBool("SERVER_TRUST_PROXY_HEADERS"); ok {
		c.Server.TrustProxyHeaders = v
	}
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvBool("STORAGE_MIGRATE"); ok {
		c.Storage.Migrate = v
	}
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("CACHE_REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("CACHE_REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("CHALLENGE_BACKEND"); ok {
		c.Challenge.Backend = v
	}
	if v, ok := getEnvStr("LOOKUP_BASE_URL"); ok {
		c.Lookup.BaseURL = v
	}
	if v, ok := getEnvStr("LOOKUP_API_KEY"); ok {
		c.Lookup.APIKey = v
	}
	if v, ok := getEnvStr("RESOLVER_ON_LOOKUP_FAILURE"); ok {
		c.Resolver.OnLookupFailure = strings.ToLower(v)
	}
	if v, ok := getEnvDur("TRUST_TTL"); ok {
		c.Trust.TTL = v
	}
	if v, ok := getEnvStr("SESSION_ISSUER"); ok {
		c.Session.Issuer = v
	}
	if v, ok := getEnvStr("SESSION_AUDIENCE"); ok {
		c.Session.Audience = v
	}
	if v, ok := getEnvDur("SESSION_TTL"); ok {
		c.Session.TTL = v
	}
	if v, ok := getEnvStr("SESSION_KEY_PATH"); ok {
		c.Session.KeyPath = v
	}
	if v, ok := getEnvStr("WEBAUTHN_RP_ID"); ok {
		c.WebAuthn.RPID = v
	}
	if v, ok := getEnvCSV("WEBAUTHN_RP_ORIGINS"); ok {
		c.WebAuthn.RPOrigins = v
	}
	if v, ok := getEnvBool("SIDECHANNEL_DEBUG_ECHO_CODES"); ok {
		c.Sidechannel.DebugEchoCodes = v
	}
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	// prod nunca hace eco de códigos
	if c.App.Env == "prod" {
		c.Sidechannel.DebugEchoCodes = false
	}
}

// Validate rechaza combinaciones sin sentido antes de arrancar.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("config: storage.driver %q no soportado", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("config: storage.driver postgres requiere dsn")
	}
	switch c.Cache.Kind {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: cache.kind %q no soportado", c.Cache.Kind)
	}
	if c.Cache.Kind == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("config: cache.kind redis requiere addr")
	}
	switch c.Challenge.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: challenge.backend %q no soportado", c.Challenge.Backend)
	}
	if c.Challenge.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("config: challenge.backend redis requiere cache.redis.addr")
	}
	switch c.Resolver.OnLookupFailure {
	case "mfa_required", "trusted":
	default:
		return fmt.Errorf("config: resolver.on_lookup_failure %q no soportado", c.Resolver.OnLookupFailure)
	}
	return nil
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}
