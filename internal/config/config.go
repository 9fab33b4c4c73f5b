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

	Telemetry TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool
	DBSlowQuery       time.Duration

	Redis RedisConfig
	Auth  AuthConfig
	Mail  MailConfig

	Scheduler SchedulerConfig

	// AdminEmail receives operational notifications such as overdue summaries.
	AdminEmail string
	// PublicBaseURL is the base of invoice view links sent to clients.
	PublicBaseURL string
}

// TelemetryConfig covers logging and OpenTelemetry export.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration
}

type MailConfig struct {
	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPass       string
	SMTPSecure     bool
	SMTPSkipVerify bool
	From           string
	FromName       string
	LogoURL        string
	SignatureURL   string
}

// DevMode reports whether outbound mail is disabled and links are only logged.
func (c MailConfig) DevMode() bool {
	return strings.TrimSpace(c.SMTPHost) == ""
}

type SchedulerConfig struct {
	Enabled          bool
	ReminderSpec     string
	OverdueSpec      string
	Timezone         string
	PolicyFile       string
	DistributedLocks bool
}

// Location resolves the scheduler timezone, falling back to the server local time.
func (c SchedulerConfig) Location() *time.Location {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "uptiomio"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(getenv("LOG_LEVEL", "info")),
			LogFormat:     strings.ToLower(getenv("LOG_FORMAT", "json")),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OTLPEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
			OTLPProtocol:  otlpProtocol(),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "uptiomio"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "uptiomio.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),
		DBSlowQuery:       getenvDuration("DATABASE_SLOW_QUERY", 200*time.Millisecond),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret: strings.TrimSpace(getenv("JWT_SECRET", "")),
			JWTIssuer: getenv("JWT_ISSUER", "uptiomio"),
			TokenTTL:  getenvDuration("JWT_TTL", 24*time.Hour),
		},
		Mail: MailConfig{
			SMTPHost:       strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:       getenvInt("SMTP_PORT", 587),
			SMTPUser:       getenv("SMTP_USER", ""),
			SMTPPass:       getenv("SMTP_PASS", ""),
			SMTPSecure:     getenvBool("SMTP_SECURE", false),
			SMTPSkipVerify: getenvBool("SMTP_SKIP_VERIFY", false),
			From:           getenv("MAIL_FROM", "no-reply@uptiomio.local"),
			FromName:       getenv("MAIL_FROM_NAME", "Uptimio Payment Services"),
			LogoURL:        getenv("MAIL_LOGO_URL", ""),
			SignatureURL:   getenv("MAIL_SIGNATURE_URL", ""),
		},
		Scheduler: SchedulerConfig{
			Enabled:          getenvBool("SCHEDULER_ENABLED", true),
			ReminderSpec:     getenv("REMINDER_TICK_SPEC", DefaultReminderSpec),
			OverdueSpec:      getenv("OVERDUE_SPEC", DefaultOverdueSpec),
			Timezone:         getenv("SCHEDULER_TIMEZONE", ""),
			PolicyFile:       getenv("REMINDER_POLICY_FILE", ""),
			DistributedLocks: getenvBool("SCHEDULER_DISTRIBUTED_LOCKS", true),
		},
		AdminEmail:    getenv("ADMIN_EMAIL", DefaultAdminEmail),
		PublicBaseURL: publicBaseURL(),
	}

	return cfg
}

const (
	DefaultAdminEmail = "admin@uptimio.com"
	DefaultBaseURL    = "https://payments.uptimio.com"

	// Cron specs include a leading seconds field.
	DefaultReminderSpec = "0 */5 * * * *"
	DefaultOverdueSpec  = "0 0 9 * * *"
)

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func publicBaseURL() string {
	base := getenv("FRONTEND_BASE_URL", "")
	if base == "" {
		base = getenv("BACKEND_BASE_URL", DefaultBaseURL)
	}
	return strings.TrimRight(strings.TrimSpace(base), "/")
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

// otlpProtocol prefers the traces-specific protocol over the shared one.
func otlpProtocol() string {
	if protocol := getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", ""); protocol != "" {
		return strings.ToLower(protocol)
	}
	return strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
