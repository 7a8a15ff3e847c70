package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config groups the application configuration, read via Viper from env vars
// and optionally a .env file. Env vars take priority.
type Config struct {
	App      AppConfig
	DB       DBConfig
	JWT      JWTConfig
	HTTP     HTTPConfig
	Business BusinessConfig
	Mpesa    MpesaConfig
	Paystack PaystackConfig
	SMTP     SMTPConfig
	Worker   WorkerConfig
	Storage  StorageConfig
}

// AppConfig general application settings.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// DBConfig PostgreSQL settings. If DatabaseURL is set it is used as the full
// connection string; otherwise the DSN is built from the parts.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// ConnectionString returns DatabaseURL when set, the built DSN otherwise.
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN builds the PostgreSQL connection string, URL-encoding credentials.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// JWTConfig settings for the bearer-token boundary.
type JWTConfig struct {
	Secret     string
	Expiration int // minutes
	Issuer     string
}

// HTTPConfig server listen settings.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr returns the listen address (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BusinessConfig is the issuer identity shown on portals, documents and
// reminder emails, plus billing defaults.
type BusinessConfig struct {
	Name          string
	Email         string
	Phone         string
	Address       string
	InvoicePrefix string
	PortalBaseURL string
	// TaxRates maps currency code to tax percentage, e.g. "KES:1.5,NGN:7.5".
	TaxRates map[string]decimal.Decimal
}

// MpesaConfig Daraja credentials for the mobile-money rail.
type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
}

// PaystackConfig credentials for the card/bank rail. SecretKey doubles as
// the webhook HMAC key.
type PaystackConfig struct {
	BaseURL   string
	SecretKey string
}

// SMTPConfig outgoing mail for payment reminders.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// WorkerConfig cron expressions for the two background sweeps.
type WorkerConfig struct {
	RecurringSchedule string
	ReminderSchedule  string
}

// StorageConfig where rendered documents are kept.
type StorageConfig struct {
	DocumentDir string
}

// Load reads the configuration from env vars (and optionally a .env file).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // missing file is fine

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:  getString(v, "APP_ENV", "development"),
			Name: getString(v, "APP_NAME", "billing-api"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "billing"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:     getString(v, "JWT_SECRET", ""),
			Expiration: getInt(v, "JWT_EXPIRATION_MINUTES", 60),
			Issuer:     getString(v, "JWT_ISSUER", "billing-api"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		Business: BusinessConfig{
			Name:          getString(v, "BUSINESS_NAME", ""),
			Email:         getString(v, "BUSINESS_EMAIL", ""),
			Phone:         getString(v, "BUSINESS_PHONE", ""),
			Address:       getString(v, "BUSINESS_ADDRESS", ""),
			InvoicePrefix: getString(v, "INVOICE_PREFIX", "INV"),
			PortalBaseURL: getString(v, "PORTAL_BASE_URL", "http://localhost:8080"),
			TaxRates:      parseTaxRates(getString(v, "TAX_RATES", "KES:1.5")),
		},
		Mpesa: MpesaConfig{
			BaseURL:        getString(v, "MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ConsumerKey:    getString(v, "MPESA_CONSUMER_KEY", ""),
			ConsumerSecret: getString(v, "MPESA_CONSUMER_SECRET", ""),
			ShortCode:      getString(v, "MPESA_SHORTCODE", ""),
			Passkey:        getString(v, "MPESA_PASSKEY", ""),
			CallbackURL:    getString(v, "MPESA_CALLBACK_URL", ""),
		},
		Paystack: PaystackConfig{
			BaseURL:   getString(v, "PAYSTACK_BASE_URL", "https://api.paystack.co"),
			SecretKey: getString(v, "PAYSTACK_SECRET_KEY", ""),
		},
		SMTP: SMTPConfig{
			Host:     getString(v, "SMTP_HOST", ""),
			Port:     getInt(v, "SMTP_PORT", 587),
			Username: getString(v, "SMTP_USERNAME", ""),
			Password: getString(v, "SMTP_PASSWORD", ""),
			From:     getString(v, "SMTP_FROM", ""),
		},
		Worker: WorkerConfig{
			RecurringSchedule: getString(v, "WORKER_RECURRING_SCHEDULE", "0 * * * *"),
			ReminderSchedule:  getString(v, "WORKER_REMINDER_SCHEDULE", "*/15 * * * *"),
		},
		Storage: StorageConfig{
			DocumentDir: getString(v, "DOCUMENT_DIR", "./data/invoices"),
		},
	}

	return cfg, nil
}

// parseTaxRates parses "KES:1.5,NGN:7.5" into a currency -> percentage map.
// Malformed entries are skipped.
func parseTaxRates(s string) map[string]decimal.Decimal {
	rates := make(map[string]decimal.Decimal)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(kv[1]))
		if err != nil {
			continue
		}
		rates[strings.ToUpper(strings.TrimSpace(kv[0]))] = rate
	}
	return rates
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, _ := strconv.Atoi(v.GetString(key))
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}
