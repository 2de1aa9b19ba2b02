package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug                     bool
		TestMode                  bool
		Env                       string
		Build                     string
		AppName                   string
		SecretKey                 string
		DefaultFromEmail          mail.Address
		FrontendBaseURL           string
		WorkDir                   string
		RollbarToken              string
		SendgridApiKey            string
		PasswordResetTimeoutDelta time.Duration

		Database    DatabaseConfig
		Server      ServerConfig
		Redis       RedisConfig
		Storage     StorageConfig
		MercadoPago MercadoPagoConfig
		Finance     FinanceConfig
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	RedisConfig struct {
		Address  string // empty disables redis
		Password string
		DB       int
		CacheTTL time.Duration
	}

	StorageConfig struct {
		Backend  string // local | s3
		LocalDir string
		BaseURL  string
		S3Bucket string
		S3Region string
	}

	MercadoPagoConfig struct {
		BaseURL              string
		AccessToken          string
		WebhookSecret        string
		NotificationURL      string
		PayerEmailDomain     string
		StatementDescription string
		Timeout              time.Duration
		ChargeExpiration     time.Duration
	}

	FinanceConfig struct {
		DefaultFeeAmount decimal.Decimal
		DueDay           int
		Location         *time.Location
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

// InMemory reports whether the repositories live in memory (engine "memory").
func (dbc DatabaseConfig) InMemory() bool {
	return dbc.Engine == "memory"
}

// Enabled reports whether charges can be created at the provider.
func (mpc MercadoPagoConfig) Enabled() bool {
	return mpc.AccessToken != ""
}

// NewConfig reads the configuration for the current ENV (DEV, TEST, QA, PROD).
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "Aventureiros")
	v.SetDefault("secretKey", "k3v!a9p#2r$z7m0q@e6u^w1x&c4n8b5t(y)h_j-l=o+s")
	v.SetDefault("defaultFromEmail", "Aventureiros <noreply@localhost>")
	v.SetDefault("frontendBaseURL", "http://localhost:8080")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "aventureiros")
	v.SetDefault("database.user", "aventureiros")
	v.SetDefault("database.password", "aventureiros")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cacheTTL", 5*time.Minute)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.localDir", "media")
	v.SetDefault("storage.baseURL", "/media")
	v.SetDefault("storage.s3Bucket", "")
	v.SetDefault("storage.s3Region", "sa-east-1")

	v.SetDefault("mercadopago.baseURL", "https://api.mercadopago.com")
	v.SetDefault("mercadopago.accessToken", "")
	v.SetDefault("mercadopago.webhookSecret", "")
	v.SetDefault("mercadopago.notificationURL", "")
	v.SetDefault("mercadopago.payerEmailDomain", "pinhaljunior.com.br")
	v.SetDefault("mercadopago.statementDescription", "Pagamento Aventureiros")
	v.SetDefault("mercadopago.timeout", 20*time.Second)
	v.SetDefault("mercadopago.chargeExpiration", 24*time.Hour)

	v.SetDefault("finance.defaultFeeAmount", "30.00")
	v.SetDefault("finance.dueDay", 10)
	v.SetDefault("finance.timezone", "America/Sao_Paulo")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	fromEmail, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}
	feeAmount, err := decimal.NewFromString(v.GetString("finance.defaultFeeAmount"))
	if err != nil {
		log.Fatalf("config.finance.defaultFeeAmount: %v", err)
	}
	loc, err := time.LoadLocation(v.GetString("finance.timezone"))
	if err != nil {
		log.Printf("config.finance.timezone: %v; falling back to UTC", err)
		loc = time.UTC
	}

	return &Config{
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		Env:                       env,
		Build:                     v.GetString("build"),
		AppName:                   v.GetString("appName"),
		SecretKey:                 v.GetString("secretKey"),
		DefaultFromEmail:          *fromEmail,
		FrontendBaseURL:           v.GetString("frontendBaseURL"),
		WorkDir:                   workDir,
		RollbarToken:              v.GetString("rollbarToken"),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			CacheTTL: v.GetDuration("redis.cacheTTL"),
		},
		Storage: StorageConfig{
			Backend:  v.GetString("storage.backend"),
			LocalDir: v.GetString("storage.localDir"),
			BaseURL:  v.GetString("storage.baseURL"),
			S3Bucket: v.GetString("storage.s3Bucket"),
			S3Region: v.GetString("storage.s3Region"),
		},
		MercadoPago: MercadoPagoConfig{
			BaseURL:              v.GetString("mercadopago.baseURL"),
			AccessToken:          v.GetString("mercadopago.accessToken"),
			WebhookSecret:        v.GetString("mercadopago.webhookSecret"),
			NotificationURL:      v.GetString("mercadopago.notificationURL"),
			PayerEmailDomain:     v.GetString("mercadopago.payerEmailDomain"),
			StatementDescription: v.GetString("mercadopago.statementDescription"),
			Timeout:              v.GetDuration("mercadopago.timeout"),
			ChargeExpiration:     v.GetDuration("mercadopago.chargeExpiration"),
		},
		Finance: FinanceConfig{
			DefaultFeeAmount: feeAmount,
			DueDay:           v.GetInt("finance.dueDay"),
			Location:         loc,
		},
	}
}

// NewTestConfig returns a Config suitable for unit tests, without reading the environment.
func NewTestConfig() *Config {
	return &Config{
		Debug:                     false,
		TestMode:                  true,
		Env:                       "TEST",
		Build:                     "test",
		AppName:                   "Aventureiros",
		SecretKey:                 "test-secret-key",
		DefaultFromEmail:          mail.Address{Name: "Aventureiros", Address: "noreply@localhost"},
		FrontendBaseURL:           "http://localhost:8080",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Server: ServerConfig{
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        7 * 24 * time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Redis: RedisConfig{CacheTTL: time.Minute},
		Storage: StorageConfig{
			Backend: "local",
			BaseURL: "/media",
		},
		MercadoPago: MercadoPagoConfig{
			BaseURL:              "https://api.mercadopago.com",
			WebhookSecret:        "webhook-secret",
			PayerEmailDomain:     "pinhaljunior.com.br",
			StatementDescription: "Pagamento Aventureiros",
			Timeout:              20 * time.Second,
			ChargeExpiration:     24 * time.Hour,
		},
		Finance: FinanceConfig{
			DefaultFeeAmount: decimal.RequireFromString("30.00"),
			DueDay:           10,
			Location:         time.UTC,
		},
	}
}
