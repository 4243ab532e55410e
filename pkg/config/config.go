package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Password     PasswordConfig
	Admin        AdminConfig
	AdapterAuth  AdapterAuthConfig
	Gateway      GatewayConfig
	Reconciler   ReconcilerConfig
	Outbox       OutboxConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Gateway.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GROUPBUY_APP_ENV" required:"true"`
	Port         string `envconfig:"GROUPBUY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GROUPBUY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GROUPBUY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"GROUPBUY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"GROUPBUY_DB_DSN"`
	Driver string `envconfig:"GROUPBUY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GROUPBUY_DB_HOST"`
	LegacyPort     int    `envconfig:"GROUPBUY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GROUPBUY_DB_USER"`
	LegacyPassword string `envconfig:"GROUPBUY_DB_PASSWORD"`
	LegacyName     string `envconfig:"GROUPBUY_DB_NAME"`
	LegacySSLMode  string `envconfig:"GROUPBUY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GROUPBUY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GROUPBUY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GROUPBUY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GROUPBUY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GROUPBUY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GROUPBUY_REDIS_ADDR"`
	Password     string        `envconfig:"GROUPBUY_REDIS_PASSWORD"`
	DB           int           `envconfig:"GROUPBUY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GROUPBUY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GROUPBUY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GROUPBUY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GROUPBUY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GROUPBUY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"GROUPBUY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"GROUPBUY_JWT_ISSUER" default:"groupbuy"`
	ExpirationMinutes int    `envconfig:"GROUPBUY_JWT_EXPIRATION_MINUTES" default:"60"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"GROUPBUY_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"GROUPBUY_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"GROUPBUY_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"GROUPBUY_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"GROUPBUY_ARGON_KEY_LEN" default:"32"`
}

// AdminConfig holds the operator login for the admin override surface.
type AdminConfig struct {
	Email        string        `envconfig:"GROUPBUY_ADMIN_EMAIL"`
	PasswordHash string        `envconfig:"GROUPBUY_ADMIN_PASSWORD_HASH"`
	LoginWindow  time.Duration `envconfig:"GROUPBUY_ADMIN_LOGIN_WINDOW" default:"1m"`
	LoginLimit   int           `envconfig:"GROUPBUY_ADMIN_LOGIN_LIMIT" default:"5"`
}

// AdapterAuthConfig authenticates messenger adapters calling the internal API.
type AdapterAuthConfig struct {
	ServiceToken string `envconfig:"GROUPBUY_ADAPTER_SERVICE_TOKEN"`
}

// GatewayConfig configures the payment providers and their selection order.
type GatewayConfig struct {
	// Providers lists the selection order; the first entry is the primary.
	Providers   []string      `envconfig:"GROUPBUY_GATEWAY_PROVIDERS" default:"yookassa,tochka"`
	CallTimeout time.Duration `envconfig:"GROUPBUY_GATEWAY_CALL_TIMEOUT" default:"30s"`
	ReturnURL   string        `envconfig:"GROUPBUY_GATEWAY_RETURN_URL"`

	// WebhookDedupeTTL bounds how long processed webhook event ids are
	// remembered for replay suppression.
	WebhookDedupeTTL time.Duration `envconfig:"GROUPBUY_GATEWAY_WEBHOOK_DEDUPE_TTL" default:"48h"`

	// AllowUnverifiedWebhooks lets unsigned webhooks through in pre-production.
	// Every pass-through is logged at warn level.
	AllowUnverifiedWebhooks bool `envconfig:"GROUPBUY_GATEWAY_ALLOW_UNVERIFIED_WEBHOOKS" default:"false"`

	YooKassa YooKassaConfig
	Tochka   TochkaConfig
}

type YooKassaConfig struct {
	APIURL        string `envconfig:"GROUPBUY_YOOKASSA_API_URL" default:"https://api.yookassa.ru/v3"`
	ShopID        string `envconfig:"GROUPBUY_YOOKASSA_SHOP_ID"`
	SecretKey     string `envconfig:"GROUPBUY_YOOKASSA_SECRET_KEY"`
	WebhookSecret string `envconfig:"GROUPBUY_YOOKASSA_WEBHOOK_SECRET"`
}

type TochkaConfig struct {
	APIURL         string `envconfig:"GROUPBUY_TOCHKA_API_URL" default:"https://pre.tochka.com/api/v1/cyclops"`
	NominalAccount string `envconfig:"GROUPBUY_TOCHKA_NOMINAL_ACCOUNT"`
	PlatformID     string `envconfig:"GROUPBUY_TOCHKA_PLATFORM_ID"`
	PrivateKeyPath string `envconfig:"GROUPBUY_TOCHKA_PRIVATE_KEY_PATH"`
	PublicKeyPath  string `envconfig:"GROUPBUY_TOCHKA_PUBLIC_KEY_PATH"`
}

type ReconcilerConfig struct {
	PollInterval time.Duration `envconfig:"GROUPBUY_RECONCILER_POLL_INTERVAL" default:"1m"`
	PendingAge   time.Duration `envconfig:"GROUPBUY_RECONCILER_PENDING_AGE" default:"10m"`
	BatchSize    int           `envconfig:"GROUPBUY_RECONCILER_BATCH_SIZE" default:"50"`
	LockTTL      time.Duration `envconfig:"GROUPBUY_RECONCILER_LOCK_TTL" default:"2m"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"GROUPBUY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"GROUPBUY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"GROUPBUY_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"GROUPBUY_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	SettlementTopic string `envconfig:"GROUPBUY_PUBSUB_SETTLEMENT_TOPIC" default:"gb-settlement-events"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"GROUPBUY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"GROUPBUY_AUTO_MIGRATE" default:"false"`
}

func (g *GatewayConfig) validate() error {
	if len(g.Providers) == 0 {
		return fmt.Errorf("%s must name at least one provider", EnvGatewayProviders)
	}
	for _, p := range g.Providers {
		switch strings.TrimSpace(strings.ToLower(p)) {
		case "yookassa", "tochka":
		default:
			return fmt.Errorf("unknown payment provider %q", p)
		}
	}
	return nil
}

// ProviderOrder returns the normalized provider selection order.
func (g GatewayConfig) ProviderOrder() []string {
	order := make([]string, 0, len(g.Providers))
	for _, p := range g.Providers {
		order = append(order, strings.TrimSpace(strings.ToLower(p)))
	}
	return order
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
