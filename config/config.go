package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	AWS       AWSConfig
	Email     EmailConfig
	Zoom      ZoomConfig
	RateLimit RateLimitConfig
	Admin     AdminConfig
	Site      SiteConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	Env                string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds session token signing settings.
type JWTConfig struct {
	Secret       string
	ExpireHours  int
	CookieName   string
	CookieSecure bool
}

// AWSConfig holds AWS credentials and the manuscript bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	PapersBucket         string
	PresignExpireMinutes int
}

// EmailConfig for SMTP delivery.
type EmailConfig struct {
	FromAddress    string
	FromName       string
	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPass       string
	SendTimeoutSec int
}

// ZoomConfig holds server-to-server OAuth credentials and the webhook secret.
type ZoomConfig struct {
	AccountID     string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	APIBaseURL    string
	TokenURL      string
}

// Enabled reports whether the Zoom API client can be built.
func (z ZoomConfig) Enabled() bool {
	return z.AccountID != "" && z.ClientID != "" && z.ClientSecret != ""
}

// RateLimitConfig bounds public write endpoints per client IP.
type RateLimitConfig struct {
	Limit     int
	WindowSec int
}

// Window returns the limiter window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSec) * time.Second
}

// AdminConfig holds the bootstrap admin account and notification recipients.
type AdminConfig struct {
	Email              string
	Password           string
	FullName           string
	NotificationEmails []string
}

// SiteConfig holds values used when building links in emails.
type SiteConfig struct {
	PublicURL string // the public website
	APIURL    string // this server, as reachable from an email client
	Name      string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			Env:                getEnv("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "seminars"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:       getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours:  jwtExpire,
			CookieName:   getEnv("SESSION_COOKIE_NAME", "session"),
			CookieSecure: getEnvBool("SESSION_COOKIE_SECURE", false),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", ""),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			PapersBucket:         getEnv("AWS_S3_PAPERS_BUCKET", "seminar-papers"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Email: EmailConfig{
			FromAddress:    getEnv("EMAIL_FROM_ADDRESS", "noreply@example.com"),
			FromName:       getEnv("EMAIL_FROM_NAME", "Seminar Series"),
			SMTPHost:       getEnv("SMTP_HOST", ""),
			SMTPPort:       getEnvInt("SMTP_PORT", 587),
			SMTPUser:       getEnv("SMTP_USER", ""),
			SMTPPass:       getEnv("SMTP_PASS", ""),
			SendTimeoutSec: getEnvInt("EMAIL_SEND_TIMEOUT_SEC", 10),
		},
		Zoom: ZoomConfig{
			AccountID:     getEnv("ZOOM_ACCOUNT_ID", ""),
			ClientID:      getEnv("ZOOM_CLIENT_ID", ""),
			ClientSecret:  getEnv("ZOOM_CLIENT_SECRET", ""),
			WebhookSecret: getEnv("ZOOM_WEBHOOK_SECRET", ""),
			APIBaseURL:    getEnv("ZOOM_API_BASE_URL", "https://api.zoom.us/v2"),
			TokenURL:      getEnv("ZOOM_TOKEN_URL", "https://zoom.us/oauth/token"),
		},
		RateLimit: RateLimitConfig{
			Limit:     getEnvInt("RATE_LIMIT_REQUESTS", 5),
			WindowSec: getEnvInt("RATE_LIMIT_WINDOW_SEC", 600),
		},
		Admin: AdminConfig{
			Email:              getEnv("ADMIN_EMAIL", ""),
			Password:           getEnv("ADMIN_PASSWORD", ""),
			FullName:           getEnv("ADMIN_NAME", "Administrator"),
			NotificationEmails: splitTrim(getEnv("ADMIN_NOTIFICATION_EMAILS", ""), ","),
		},
		Site: SiteConfig{
			PublicURL: strings.TrimRight(getEnv("SITE_PUBLIC_URL", "http://localhost:3000"), "/"),
			APIURL:    strings.TrimRight(getEnv("API_PUBLIC_URL", "http://localhost:8080"), "/"),
			Name:      getEnv("SITE_NAME", "Seminar Series"),
		},
	}
	if cfg.RateLimit.Limit <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", cfg.RateLimit.Limit)
	}
	if cfg.RateLimit.WindowSec <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_WINDOW_SEC must be positive, got %d", cfg.RateLimit.WindowSec)
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
