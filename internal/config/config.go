package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env  string
	Port int

	DBURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Base URL the public card pages and tracking endpoints are served from.
	PublicBaseURL string

	// How long dispatch contexts stay resolvable for open/click attribution.
	// Hits after expiry are still served, just recorded unattributed.
	TrackingTTL time.Duration

	OTLPEndpoint string

	ObjectStore ObjectStoreConfig
	SMTP        SMTPConfig
	Google      GoogleWalletConfig
	Apple       AppleWalletConfig
	Worker      WorkerConfig
}

type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type SMTPConfig struct {
	Host      string
	Port      string
	Username  string
	Password  string
	FromEmail string
}

type GoogleWalletConfig struct {
	Enabled             bool
	IssuerID            string
	ServiceAccountEmail string
	// Path to the service account JSON key. The same RSA key signs the
	// save-to-wallet token and authorizes REST calls.
	ServiceAccountFile string
	ClassSuffix        string
	Origins            []string
}

type AppleWalletConfig struct {
	Enabled      bool
	TeamID       string
	PassTypeID   string
	OrgName      string
	CertPath     string
	KeyPath      string
	WWDRCertPath string
}

type WorkerConfig struct {
	PollInterval  time.Duration
	Concurrency   int
	ShutdownGrace time.Duration
	LockTTL       time.Duration
	HealthPort    int
}

func Load() Config {
	return Config{
		Env:           getEnv("APP_ENV", "dev"),
		Port:          getEnvInt("PORT", 8080),
		DBURL:         buildDBURL(),
		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		TrackingTTL:   getEnvDuration("TRACKING_CONTEXT_TTL", 14*24*time.Hour),
		OTLPEndpoint:  getEnv("OTLP_ENDPOINT", "localhost:4317"),
		ObjectStore: ObjectStoreConfig{
			Endpoint:  getEnv("S3_ENDPOINT", "127.0.0.1:9000"),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Bucket:    getEnv("S3_BUCKET_ASSETS", "passhub-assets"),
			UseSSL:    getEnvBool("S3_USE_SSL", false),
		},
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", "127.0.0.1"),
			Port:      getEnv("SMTP_PORT", "587"),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("SMTP_FROM_EMAIL", "passes@outreachpass.io"),
		},
		Google: GoogleWalletConfig{
			Enabled:             getEnvBool("GOOGLE_WALLET_ENABLED", false),
			IssuerID:            getEnv("GOOGLE_WALLET_ISSUER_ID", ""),
			ServiceAccountEmail: getEnv("GOOGLE_WALLET_SA_EMAIL", ""),
			ServiceAccountFile:  getEnv("GOOGLE_WALLET_SA_FILE", ""),
			ClassSuffix:         getEnv("GOOGLE_WALLET_CLASS_SUFFIX", "v1"),
			Origins:             splitCSV(getEnv("GOOGLE_WALLET_ORIGINS", "")),
		},
		Apple: AppleWalletConfig{
			Enabled:      getEnvBool("APPLE_WALLET_ENABLED", false),
			TeamID:       getEnv("APPLE_TEAM_ID", ""),
			PassTypeID:   getEnv("APPLE_PASS_TYPE_ID", ""),
			OrgName:      getEnv("APPLE_ORG_NAME", "OutreachPass"),
			CertPath:     getEnv("APPLE_CERT_PATH", ""),
			KeyPath:      getEnv("APPLE_KEY_PATH", ""),
			WWDRCertPath: getEnv("APPLE_WWDR_CERT_PATH", ""),
		},
		Worker: WorkerConfig{
			PollInterval:  getEnvDuration("WORKER_POLL_INTERVAL", 100*time.Millisecond),
			Concurrency:   getEnvInt("WORKER_CONCURRENCY", 4),
			ShutdownGrace: getEnvDuration("WORKER_SHUTDOWN_GRACE", 10*time.Second),
			LockTTL:       getEnvDuration("WORKER_LOCK_TTL", 60*time.Second),
			HealthPort:    getEnvInt("WORKER_HEALTH_PORT", 8081),
		},
	}
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "passhub")
	pass := getEnv("DB_PASSWORD", "passhub")
	name := getEnv("DB_NAME", "passhub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			fmt.Println(err)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)

		if err != nil {
			return fallback
		}
		return b
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)

		if err != nil {
			return fallback
		}
		return d
	}
	return fallback
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
