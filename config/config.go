package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Amadeus  AmadeusConfig  `yaml:"amadeus"`
	Payments PaymentsConfig `yaml:"payments"`
	FX       FXConfig       `yaml:"fx"`
	Email    EmailConfig    `yaml:"email"`
	Auth     AuthConfig     `yaml:"auth"`
	Booking  BookingConfig  `yaml:"booking"`
	Worker   WorkerConfig   `yaml:"worker"`
}

type HTTPConfig struct {
	Address        string   `yaml:"address"`
	ReleaseMode    bool     `yaml:"release_mode"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingTopic       string   `yaml:"booking_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type AmadeusConfig struct {
	BaseURL      string `yaml:"base_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

type PaymentsConfig struct {
	FlutterwaveBaseURL   string `yaml:"flutterwave_base_url"`
	FlutterwaveSecretKey string `yaml:"flutterwave_secret_key"`
	StripeBaseURL        string `yaml:"stripe_base_url"`
	StripeSecretKey      string `yaml:"stripe_secret_key"`
}

type FXConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type EmailConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	FromAddress string `yaml:"from_address"`
	FromName    string `yaml:"from_name"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	AccessTTLMinutes int    `yaml:"access_ttl_minutes"`
	RefreshTTLHours  int    `yaml:"refresh_ttl_hours"`
	MaxLoginAttempts int    `yaml:"max_login_attempts"`
	LockoutMinutes   int    `yaml:"lockout_minutes"`
}

type BookingConfig struct {
	Currency        string `yaml:"currency"`
	SearchCacheTTL  int    `yaml:"search_cache_ttl_seconds"`
	SearchPerMinute int    `yaml:"search_per_minute"`
	SearchPerHour   int    `yaml:"search_per_hour"`
	TokenExpirySkew int    `yaml:"token_expiry_skew_seconds"`
}

type WorkerConfig struct {
	ReconcileSweepMinutes int `yaml:"reconcile_sweep_minutes"`
	OrphanWindowHours     int `yaml:"orphan_window_hours"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}
