package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	FeatureFlags  FeatureFlagsConfig
	Policy        PolicyConfig
	AuthRateLimit AuthRateLimitConfig
	CORS          CORSConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"READSTACK_APP_ENV" required:"true"`
	Port         string `envconfig:"READSTACK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"READSTACK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"READSTACK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"READSTACK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"READSTACK_DB_DSN"`
	Driver string `envconfig:"READSTACK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"READSTACK_DB_HOST"`
	LegacyPort     int    `envconfig:"READSTACK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"READSTACK_DB_USER"`
	LegacyPassword string `envconfig:"READSTACK_DB_PASSWORD"`
	LegacyName     string `envconfig:"READSTACK_DB_NAME"`
	LegacySSLMode  string `envconfig:"READSTACK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"READSTACK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"READSTACK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"READSTACK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"READSTACK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"READSTACK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"READSTACK_REDIS_ADDR"`
	Password     string        `envconfig:"READSTACK_REDIS_PASSWORD"`
	DB           int           `envconfig:"READSTACK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"READSTACK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"READSTACK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"READSTACK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READSTACK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"READSTACK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"READSTACK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"READSTACK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"READSTACK_JWT_EXPIRATION_MINUTES" required:"true"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"READSTACK_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"READSTACK_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"READSTACK_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"READSTACK_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"READSTACK_ARGON_KEY_LEN" default:"32"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"READSTACK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"READSTACK_AUTO_MIGRATE" default:"false"`
	// FreeTier lets members without a paid subscription borrow under the
	// free-tier limits below.
	FreeTier bool `envconfig:"READSTACK_FEATURE_FREE_TIER" default:"false"`
}

// PolicyConfig carries the lending policy knobs the lifecycle engine treats as
// configuration rather than invariants.
type PolicyConfig struct {
	HoldWindow            time.Duration `envconfig:"READSTACK_POLICY_HOLD_WINDOW" default:"48h"`
	FineDailyRate         string        `envconfig:"READSTACK_POLICY_FINE_DAILY_RATE" default:"0.50"`
	FineFallbackCap       string        `envconfig:"READSTACK_POLICY_FINE_FALLBACK_CAP" default:"25.00"`
	DamageFee             string        `envconfig:"READSTACK_POLICY_DAMAGE_FEE" default:"10.00"`
	ProcessingFee         string        `envconfig:"READSTACK_POLICY_PROCESSING_FEE" default:"5.00"`
	ChargeProcessingFee   bool          `envconfig:"READSTACK_POLICY_CHARGE_PROCESSING_FEE" default:"true"`
	DefaultMaxRenewals    int           `envconfig:"READSTACK_POLICY_MAX_RENEWALS" default:"2"`
	ReminderLookaheadDays int           `envconfig:"READSTACK_POLICY_REMINDER_LOOKAHEAD_DAYS" default:"3"`
	FreeTierMaxBooks      int           `envconfig:"READSTACK_POLICY_FREE_TIER_MAX_BOOKS" default:"1"`
	FreeTierMaxDays       int           `envconfig:"READSTACK_POLICY_FREE_TIER_MAX_DAYS" default:"7"`
	ConcurrencyRetries    int           `envconfig:"READSTACK_POLICY_CONCURRENCY_RETRIES" default:"3"`
}

// DailyRate parses the configured overdue rate; malformed values fall back to zero.
func (p PolicyConfig) DailyRate() decimal.Decimal {
	return parseAmount(p.FineDailyRate)
}

// FallbackCap parses the cap applied when a book has no replacement cost on file.
func (p PolicyConfig) FallbackCap() decimal.Decimal {
	return parseAmount(p.FineFallbackCap)
}

// DamageAmount parses the flat damage penalty.
func (p PolicyConfig) DamageAmount() decimal.Decimal {
	return parseAmount(p.DamageFee)
}

// ProcessingAmount parses the flat lost-item processing fee.
func (p PolicyConfig) ProcessingAmount() decimal.Decimal {
	return parseAmount(p.ProcessingFee)
}

func parseAmount(value string) decimal.Decimal {
	amount, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero
	}
	return amount
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"READSTACK_AUTH_LOGIN_WINDOW" default:"5m"`
	LoginIPLimit       int           `envconfig:"READSTACK_AUTH_LOGIN_IP_LIMIT" default:"20"`
	LoginEmailLimit    int           `envconfig:"READSTACK_AUTH_LOGIN_EMAIL_LIMIT" default:"10"`
	RegisterWindow     time.Duration `envconfig:"READSTACK_AUTH_REGISTER_WINDOW" default:"15m"`
	RegisterIPLimit    int           `envconfig:"READSTACK_AUTH_REGISTER_IP_LIMIT" default:"10"`
	RegisterEmailLimit int           `envconfig:"READSTACK_AUTH_REGISTER_EMAIL_LIMIT" default:"5"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"READSTACK_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"READSTACK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"READSTACK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"READSTACK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	PaymentsTopic        string `envconfig:"READSTACK_PUBSUB_PAYMENTS_TOPIC" default:"rs-payment-events"`
	PaymentsSubscription string `envconfig:"READSTACK_PUBSUB_PAYMENTS_SUBSCRIPTION"`
	NotificationTopic    string `envconfig:"READSTACK_PUBSUB_NOTIFICATION_TOPIC" default:"rs-notification-events"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
