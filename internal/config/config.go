package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	// TrustedProxies may set the client address through forwarding headers.
	// Empty means only the direct peer address is used.
	TrustedProxies []string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBLockTimeoutMS   int
	DBAutoMigrate     bool

	Redis RedisConfig

	Identity  IdentityConfig
	Synthesis SynthesisConfig
	Payments  PaymentsConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type IdentityConfig struct {
	Secret   string
	TokenTTL time.Duration
}

type SynthesisConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	// MaxImageBytes caps both the uploaded person image and the fetched garment image.
	MaxImageBytes int64
}

type PaymentsConfig struct {
	ReturnURL string

	LemonAPIKey        string
	LemonStoreID       string
	LemonWebhookSecret string

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string

	PayPalMode         string
	PayPalClientID     string
	PayPalClientSecret string
	PayPalWebhookID    string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "tryon"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		TrustedProxies:    getenvList("TRUSTED_PROXIES"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "tryon"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBLockTimeoutMS:   getenvInt("DATABASE_LOCK_TIMEOUT_MS", 5000),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Identity: IdentityConfig{
			Secret:   strings.TrimSpace(getenv("IDENTITY_SECRET", "")),
			TokenTTL: time.Duration(getenvInt("IDENTITY_TOKEN_TTL_DAYS", 365)) * 24 * time.Hour,
		},
		Synthesis: SynthesisConfig{
			Endpoint:      strings.TrimSpace(getenv("SYNTHESIS_ENDPOINT", "")),
			APIKey:        strings.TrimSpace(getenv("SYNTHESIS_API_KEY", "")),
			Timeout:       time.Duration(getenvInt("SYNTHESIS_TIMEOUT_SECONDS", 120)) * time.Second,
			MaxImageBytes: int64(getenvInt("SYNTHESIS_MAX_IMAGE_BYTES", 10<<20)),
		},
		Payments: PaymentsConfig{
			ReturnURL:             strings.TrimSpace(getenv("CHECKOUT_RETURN_URL", "")),
			LemonAPIKey:           strings.TrimSpace(getenv("LEMON_API_KEY", "")),
			LemonStoreID:          strings.TrimSpace(getenv("LEMON_STORE_ID", "")),
			LemonWebhookSecret:    strings.TrimSpace(getenv("LEMON_WEBHOOK_SECRET", "")),
			RazorpayKeyID:         strings.TrimSpace(getenv("RAZORPAY_KEY_ID", "")),
			RazorpayKeySecret:     strings.TrimSpace(getenv("RAZORPAY_KEY_SECRET", "")),
			RazorpayWebhookSecret: strings.TrimSpace(getenv("RAZORPAY_WEBHOOK_SECRET", "")),
			PayPalMode:            strings.ToLower(strings.TrimSpace(getenv("PAYPAL_MODE", "sandbox"))),
			PayPalClientID:        strings.TrimSpace(getenv("PAYPAL_CLIENT_ID", "")),
			PayPalClientSecret:    strings.TrimSpace(getenv("PAYPAL_CLIENT_SECRET", "")),
			PayPalWebhookID:       strings.TrimSpace(getenv("PAYPAL_WEBHOOK_ID", "")),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
