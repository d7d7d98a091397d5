package config

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string           `yaml:"env" env-default:"development"` // environment
	HTTPServer HTTPServerConfig `yaml:"http_server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	JWT        JWTConfig        `yaml:"jwt"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Checkout   CheckoutConfig   `yaml:"checkout"`
	Migrations MigrationsConfig `yaml:"migrations"`
}

// HTTPServerConfig структура http сервера
type HTTPServerConfig struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"15s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// DatabaseConfig структура по работе с БД
type DatabaseConfig struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"-" env:"DB_PASSWORD" env-required:"true"`
	Name     string `yaml:"name" env-required:"true"`
}

// RedisConfig - снимки корзин. Пустой адрес - корзины только в памяти процесса
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env-default:"0"`
	CartTTL  time.Duration `yaml:"cart_ttl" env-default:"72h"`
}

// JWTConfig настройка jwt
type JWTConfig struct {
	Secret   string `yaml:"-" env:"JWT_SECRET" env-required:"true"`
	TokenTTL int    `yaml:"token_ttl" env-default:"60"`
}

// TelegramConfig - Bot API для уведомлений и проверки init data.
// Токен бота приходит только из окружения
type TelegramConfig struct {
	APIURL         string        `yaml:"api_url" env-default:"https://api.telegram.org"`
	BotToken       string        `yaml:"-" env:"TELEGRAM_BOT_TOKEN" env-required:"true"`
	MerchantChatID string        `yaml:"merchant_chat_id" env:"TELEGRAM_MERCHANT_CHAT_ID" env-required:"true"`
	SendTimeout    time.Duration `yaml:"send_timeout" env-default:"10s"`
	RatePerSecond  float64       `yaml:"rate_per_second" env-default:"25"`
	InitDataMaxAge time.Duration `yaml:"init_data_max_age" env-default:"24h"`
}

// CheckoutConfig - сроки рассылки и жизни сессий
type CheckoutConfig struct {
	CustomerGrace  time.Duration `yaml:"customer_grace" env-default:"3s"`
	SessionIdleTTL time.Duration `yaml:"session_idle_ttl" env-default:"2h"`
	SweepInterval  time.Duration `yaml:"sweep_interval" env-default:"5m"`
	Timezone       string        `yaml:"timezone" env-default:"Local"`
}

type MigrationsConfig struct {
	Path string `yaml:"path" env-default:"./migrations"`
}

// MustLoad - если не загружаем - паникуем
func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		log.Fatal("CONFIG_PATH not exists")
	}
	return MustLoadByPath(configPath)
}

func fetchConfigPath() string {
	var path string

	flag.StringVar(&path, "config", "", "path to config file")
	flag.Parse()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	return path
}

func MustLoadByPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file not found: " + configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("can't read config file %s: %v", configPath, err)
	}

	return &cfg
}

// Location возвращает часовой пояс для оценки времени готовности заказа
func (c CheckoutConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// MigratorConfig - то, что нужно мигратору: ему не нужны секреты бота и JWT
type MigratorConfig struct {
	Env        string           `yaml:"env" env-default:"development"`
	Database   DatabaseConfig   `yaml:"database"`
	Migrations MigrationsConfig `yaml:"migrations"`
}

func MustLoadMigratorByPath(configPath string) *MigratorConfig {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file not found: " + configPath)
	}

	var cfg MigratorConfig
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("can't read config file %s: %v", configPath, err)
	}

	return &cfg
}
