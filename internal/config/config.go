// Package config предоставляет структуры и функции для парсинга и загрузки конфига
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/magabrotheeeer/purchasekit/internal/lib/period"
	"github.com/magabrotheeeer/purchasekit/internal/models"
)

// Режимы магазина.
const (
	StoreModeSandbox  = "sandbox"
	StoreModeAppStore = "appstore"
)

// Форматы локальной квитанции.
const (
	ReceiptFormatJSON           = "json"
	ReceiptFormatAppTransaction = "app_transaction"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"migrations"`
	HTTPServer              `yaml:"http_server"`
	GRPCServer              `yaml:"grpc_server"`
	RedisConnection         `yaml:"redis_connection"`
	RabbitMQ                `yaml:"rabbitmq"`
	JWTToken                `yaml:"jwttoken"`
	Admin                   `yaml:"admin"`
	Store                   `yaml:"store"`
	Kit                     `yaml:"kit"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	RateLimit   float64       `yaml:"rate_limit" env-default:"5"` // Запросов в секунду на покупки
	RateBurst   int           `yaml:"rate_burst" env-default:"10"`
}

// GRPCServer структура для настройки gRPC сервера проверки здоровья
type GRPCServer struct {
	AddressGRPC string `yaml:"addressgrpc" env-default:":50051"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	Enabled      bool          `yaml:"enabled"`
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// RabbitMQ структура для настройки ленты обновлений транзакций
type RabbitMQ struct {
	Enabled    bool          `yaml:"enabled"`
	URL        string        `yaml:"url" env:"RABBITMQ_URL"`
	Retries    int           `yaml:"retries" env-default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
}

// JWTToken структура для работы с jwt-токеном администратора
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"1h"`
}

// Admin учётные данные администратора. Пароль хранится только в виде bcrypt-хэша.
type Admin struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash" env:"ADMIN_PASSWORD_HASH"`
}

// Store настройки платформы покупок
type Store struct {
	Mode         string           `yaml:"mode" env-default:"sandbox"`
	BundleID     string           `yaml:"bundle_id"`
	RootCertPath string           `yaml:"root_cert_path"` // PEM корневого сертификата Apple, только для appstore
	Products     []models.Product `yaml:"products"`
	AppStore     AppStore         `yaml:"appstore"`
}

// AppStore настройки App Store Server API
type AppStore struct {
	Environment    string        `yaml:"environment" env-default:"sandbox"`
	BaseURL        string        `yaml:"base_url"`
	IssuerID       string        `yaml:"issuer_id"`
	KeyID          string        `yaml:"key_id"`
	PrivateKeyPath string        `yaml:"private_key_path"`
	PrivateKey     string        `yaml:"private_key" env:"APPSTORE_PRIVATE_KEY"`
	Timeout        time.Duration `yaml:"timeout" env-default:"10s"`
}

// Kit настройки покупок приложения
type Kit struct {
	Tiers             []models.Tier    `yaml:"tiers"`
	TipTiers          []models.TipTier `yaml:"tip_tiers"`
	Features          []models.Feature `yaml:"features"`
	LegacyThreshold   int              `yaml:"legacy_threshold"`
	ReceiptPath       string           `yaml:"receipt_path"`
	ReceiptFormat     string           `yaml:"receipt_format" env-default:"json"`
	IsAppExtension    bool             `yaml:"is_app_extension"`
	PurchasedOverride *bool            `yaml:"purchased_override"`
	ResetDelay        time.Duration    `yaml:"reset_delay" env-default:"1500ms"`
	SharedStorageKey  string           `yaml:"shared_storage_key" env-default:"purchasekit.purchased"`
	TermsURL          string           `yaml:"terms_url"`
	PrivacyURL        string           `yaml:"privacy_url"`
}

// MustLoad функция для загрузки конфига по пути из CONFIG_PATH, при ошибке завершает процесс
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Load читает и проверяет конфиг
func Load(path string) (*Config, error) {
	const op = "config.Load"
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	switch c.Store.Mode {
	case StoreModeSandbox:
	case StoreModeAppStore:
		if c.Store.RootCertPath == "" {
			return errors.New("store.root_cert_path is required in appstore mode")
		}
		if c.Store.AppStore.IssuerID == "" || c.Store.AppStore.KeyID == "" {
			return errors.New("store.appstore issuer_id and key_id are required in appstore mode")
		}
		if c.Store.AppStore.PrivateKey == "" && c.Store.AppStore.PrivateKeyPath == "" {
			return errors.New("store.appstore private key is required in appstore mode")
		}
	default:
		return fmt.Errorf("unknown store mode %q", c.Store.Mode)
	}

	switch c.Kit.ReceiptFormat {
	case ReceiptFormatJSON, ReceiptFormatAppTransaction:
	default:
		return fmt.Errorf("unknown receipt format %q", c.Kit.ReceiptFormat)
	}

	if len(c.Kit.Tiers) == 0 {
		return errors.New("kit.tiers must not be empty")
	}
	for _, p := range c.Store.Products {
		if p.SubscriptionPeriod == "" {
			continue
		}
		if _, err := period.Parse(p.SubscriptionPeriod); err != nil {
			return fmt.Errorf("store.products %s: %w", p.ID, err)
		}
	}
	return nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"StorageConnectionString: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"GRPCServer:\n"+
			"  Address: %s\n"+
			"RedisConnection:\n"+
			"  Enabled: %t\n"+
			"  Addr: %s\n"+
			"  Password: %s\n"+
			"RabbitMQ:\n"+
			"  Enabled: %t\n"+
			"  URL: %s\n"+
			"JWTToken:\n"+
			"  JWTSecretKey: %s\n"+
			"  TokenTTL: %s\n"+
			"Store:\n"+
			"  Mode: %s\n"+
			"  BundleID: %s\n"+
			"  AppStorePrivateKey: %s\n"+
			"Kit:\n"+
			"  Tiers: %d\n"+
			"  TipTiers: %d\n"+
			"  LegacyThreshold: %d\n"+
			"  IsAppExtension: %t\n",
		c.Env,
		mask(c.StorageConnectionString),
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.AddressGRPC,
		c.RedisConnection.Enabled,
		c.AddressRedis,
		mask(c.RedisConnection.Password),
		c.RabbitMQ.Enabled,
		mask(c.RabbitMQ.URL),
		mask(c.JWTSecretKey),
		c.TokenTTL,
		c.Store.Mode,
		c.Store.BundleID,
		mask(c.Store.AppStore.PrivateKey),
		len(c.Kit.Tiers),
		len(c.Kit.TipTiers),
		c.Kit.LegacyThreshold,
		c.Kit.IsAppExtension,
	)
}
