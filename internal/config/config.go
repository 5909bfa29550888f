// config предоставляет структуру конфигурации todo-service и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Поддерживаемые драйверы основного хранилища.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// Политики проверки refresh-токена.
const (
	// RefreshPolicyStrict — refresh-токен принимается только если в Redis лежит
	// ровно он (logout и повторный login его аннулируют).
	RefreshPolicyStrict = "strict"
	// RefreshPolicyLegacy — достаточно подписи, срока действия и наличия
	// записи сессии; значение записи не сверяется.
	RefreshPolicyLegacy = "legacy"
)

// Config — корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл ./local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig    `yaml:"http"`
	Auth     AuthConfig    `yaml:"auth"`
	DB       DBConfig      `yaml:"db"`
	Redis    RedisConfig   `yaml:"redis"`
	Cache    CacheConfig   `yaml:"cache"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// TimeoutConfig — общий дедлайн обработки HTTP-запроса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
}

// HTTPConfig — сетевые настройки публичного REST-сервера.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"3000"`
	// CookieSecure включает Secure у cookie refreshToken в env=local;
	// в остальных окружениях Secure выставляется всегда.
	CookieSecure bool `yaml:"cookie_secure" env:"COOKIE_SECURE"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// SecureCookies — ставить ли Secure на cookie refresh-токена.
func (c *Config) SecureCookies() bool {
	return c.Env != "local" || c.HTTP.CookieSecure
}

// AuthConfig содержит параметры выпуска и валидации токенов.
//
// Access и refresh подписываются разными секретами: утечка одного
// не позволяет подделать токены другого вида.
type AuthConfig struct {
	AccessSecret    string        `yaml:"access_secret" env:"ACCESS_TOKEN_KEY" env-required:"true"`
	RefreshSecret   string        `yaml:"refresh_secret" env:"REFRESH_TOKEN_KEY" env-required:"true"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL"`
	// SessionTTL — срок жизни записи refreshToken:{id} в Redis.
	// Должен быть не меньше RefreshTokenTTL: запись переживает сам токен.
	SessionTTL    time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`
	Issuer        string        `yaml:"issuer" env:"TOKEN_ISSUER" env-default:"todo-service"`
	RefreshPolicy string        `yaml:"refresh_policy" env:"REFRESH_POLICY" env-default:"strict"`
}

// DBConfig — настройки подключения к основному хранилищу.
type DBConfig struct {
	Driver string `yaml:"driver" env:"DB_DRIVER" env-default:"mongo"`
	URL    string `yaml:"url" env:"DATABASE_URL" env-default:"mongodb://localhost:27017/todo_list"`
}

// RedisConfig — подключение к Redis (сессии и кэш списков).
type RedisConfig struct {
	URL string `yaml:"url" env:"REDIS_URL" env-default:"redis://localhost:6379/0"`
}

// CacheConfig — параметры кэша списка задач.
// Дефолт TTL задаётся в defaults(), а не тегом: явный "0s" должен доходить до validate.
type CacheConfig struct {
	TodosTTL time.Duration `yaml:"todos_ttl" env:"TODOS_CACHE_TTL"`
}

// defaults — значения длительностей до чтения источников.
// env-default у cleanenv срабатывает на нулевом значении поля и затёр бы
// явно указанный "0s", поэтому эти поля заполняются заранее.
func defaults() Config {
	return Config{
		Auth: AuthConfig{
			AccessTokenTTL:  60 * time.Second,
			RefreshTokenTTL: 12 * time.Hour,
			SessionTTL:      24 * time.Hour,
		},
		Cache: CacheConfig{TodosTTL: time.Hour},
	}
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла накладываем ENV-переменные поверх значений из YAML.
func Load(path string) (*Config, error) {
	cfg := defaults()

	// чтение файла + overlay ENV.
	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	var (
		c   *Config
		err error
	)

	switch envPath := os.Getenv("CONFIG_PATH"); {
	// 1) Явный путь.
	case path != "":
		c, err = tryRead(path)
	// 2) CONFIG_PATH.
	case envPath != "":
		c, err = tryRead(envPath)
	default:
		// 3) ./local.yaml, если он есть.
		if _, statErr := os.Stat("local.yaml"); statErr == nil {
			c, err = tryRead("local.yaml")
			break
		}

		// 4) Только ENV.
		if err = cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
		}
		c = &cfg
	}

	if err != nil {
		return nil, err
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// validate — базовая валидация значений.
func (c *Config) validate() error {
	a := c.Auth

	if a.AccessSecret == "" || a.RefreshSecret == "" {
		return fmt.Errorf("auth.access_secret and auth.refresh_secret are required")
	}

	if a.AccessSecret == a.RefreshSecret {
		return fmt.Errorf("auth.access_secret and auth.refresh_secret must differ")
	}

	if a.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}

	if a.RefreshTokenTTL <= a.AccessTokenTTL {
		return fmt.Errorf("auth.refresh_token_ttl must be greater than auth.access_token_ttl")
	}

	if a.SessionTTL < a.RefreshTokenTTL {
		return fmt.Errorf("auth.session_ttl must be >= auth.refresh_token_ttl")
	}

	if a.RefreshPolicy != RefreshPolicyStrict && a.RefreshPolicy != RefreshPolicyLegacy {
		return fmt.Errorf("auth.refresh_policy must be %q or %q", RefreshPolicyStrict, RefreshPolicyLegacy)
	}

	if c.DB.Driver != DriverMongo && c.DB.Driver != DriverPostgres {
		return fmt.Errorf("db.driver must be %q or %q", DriverMongo, DriverPostgres)
	}

	if c.DB.URL == "" {
		return fmt.Errorf("db.url is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required")
	}

	if c.Cache.TodosTTL <= 0 {
		return fmt.Errorf("cache.todos_ttl must be > 0")
	}

	return nil
}
