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
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Catalog      CatalogConfig
	Validation   ValidationConfig
	Analytics    AnalyticsConfig
	Security     SecurityConfig
	Persistence  PersistenceConfig
	Advanced     AdvancedConfig
	Lock         LockConfig
	Sessions     SessionsConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Analytics.validate(cfg.GCP); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PACKFINDERZ_APP_ENV" required:"true"`
	Port         string `envconfig:"PACKFINDERZ_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PACKFINDERZ_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PACKFINDERZ_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"PACKFINDERZ_LOG_FORMAT" default:"json"`

	CORSOrigins     []string      `envconfig:"PACKFINDERZ_CORS_ORIGINS" default:"http://localhost:3000"`
	ShutdownTimeout time.Duration `envconfig:"PACKFINDERZ_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PACKFINDERZ_DB_DSN"`
	Driver string `envconfig:"PACKFINDERZ_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"PACKFINDERZ_DB_HOST"`
	Port     int    `envconfig:"PACKFINDERZ_DB_PORT" default:"5432"`
	User     string `envconfig:"PACKFINDERZ_DB_USER"`
	Password string `envconfig:"PACKFINDERZ_DB_PASSWORD"`
	Name     string `envconfig:"PACKFINDERZ_DB_NAME"`
	SSLMode  string `envconfig:"PACKFINDERZ_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PACKFINDERZ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PACKFINDERZ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PACKFINDERZ_REDIS_URL"`
	Address      string        `envconfig:"PACKFINDERZ_REDIS_ADDR"`
	Password     string        `envconfig:"PACKFINDERZ_REDIS_PASSWORD"`
	DB           int           `envconfig:"PACKFINDERZ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PACKFINDERZ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PACKFINDERZ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PACKFINDERZ_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	UseSQLite        bool `envconfig:"PACKFINDERZ_USE_SQLITE" default:"false"`
	AutoMigrate      bool `envconfig:"PACKFINDERZ_AUTO_MIGRATE" default:"false"`
	UseRedisFallback bool `envconfig:"PACKFINDERZ_USE_REDIS_FALLBACK" default:"true"`
	UseRedisVelocity bool `envconfig:"PACKFINDERZ_USE_REDIS_VELOCITY" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PACKFINDERZ_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PACKFINDERZ_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PACKFINDERZ_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	AnalyticsTopic string `envconfig:"PACKFINDERZ_PUBSUB_CART_EVENTS_TOPIC" default:"cart-events"`
}

type BigQueryConfig struct {
	Dataset         string `envconfig:"PACKFINDERZ_BIGQUERY_DATASET" default:"packfinderz"`
	CartEventsTable string `envconfig:"PACKFINDERZ_BIGQUERY_CART_EVENTS_TABLE" default:"cart_events"`
	// CreateTables creates the cart events table when missing instead of
	// failing startup.
	CreateTables bool `envconfig:"PACKFINDERZ_BIGQUERY_CREATE_TABLES" default:"false"`
}

type CatalogConfig struct {
	BaseURL string        `envconfig:"PACKFINDERZ_CATALOG_BASE_URL"`
	Timeout time.Duration `envconfig:"PACKFINDERZ_CATALOG_TIMEOUT" default:"10s"`
	UseDB   bool          `envconfig:"PACKFINDERZ_CATALOG_USE_DB" default:"false"`
}

type ValidationConfig struct {
	CacheTTL           time.Duration `envconfig:"PACKFINDERZ_VALIDATION_CACHE_TTL" default:"5m"`
	FetchTimeout       time.Duration `envconfig:"PACKFINDERZ_VALIDATION_FETCH_TIMEOUT" default:"5s"`
	MaxRetries         int           `envconfig:"PACKFINDERZ_VALIDATION_MAX_RETRIES" default:"3"`
	RetryBackoff       time.Duration `envconfig:"PACKFINDERZ_VALIDATION_RETRY_BACKOFF" default:"1s"`
	BackgroundInterval time.Duration `envconfig:"PACKFINDERZ_VALIDATION_BACKGROUND_INTERVAL" default:"30s"`
	BackgroundBatch    int           `envconfig:"PACKFINDERZ_VALIDATION_BACKGROUND_BATCH" default:"3"`
	Concurrency        int           `envconfig:"PACKFINDERZ_VALIDATION_CONCURRENCY" default:"4"`
}

type AnalyticsConfig struct {
	Sink               string        `envconfig:"PACKFINDERZ_ANALYTICS_SINK" default:"none"`
	BufferSize         int           `envconfig:"PACKFINDERZ_ANALYTICS_BUFFER_SIZE" default:"100"`
	HistorySize        int           `envconfig:"PACKFINDERZ_ANALYTICS_HISTORY_SIZE" default:"500"`
	AbandonmentTimeout time.Duration `envconfig:"PACKFINDERZ_ANALYTICS_ABANDONMENT_TIMEOUT" default:"30m"`
	SyncInterval       time.Duration `envconfig:"PACKFINDERZ_ANALYTICS_SYNC_INTERVAL" default:"5m"`
}

func (a AnalyticsConfig) validate(gcp GCPConfig) error {
	switch strings.ToLower(strings.TrimSpace(a.Sink)) {
	case AnalyticsSinkNone:
		return nil
	case AnalyticsSinkPubSub, AnalyticsSinkBigQuery, AnalyticsSinkBoth:
		if strings.TrimSpace(gcp.ProjectID) == "" {
			return fmt.Errorf("%s is required when analytics sink is %q", EnvGCPProjectID, a.Sink)
		}
		return nil
	default:
		return fmt.Errorf("unknown analytics sink %q", a.Sink)
	}
}

// SinkKind returns the normalized sink selector.
func (a AnalyticsConfig) SinkKind() string {
	return strings.ToLower(strings.TrimSpace(a.Sink))
}

type SecurityConfig struct {
	Enabled           bool          `envconfig:"PACKFINDERZ_SECURITY_ENABLED" default:"true"`
	MaxQuantity       int           `envconfig:"PACKFINDERZ_SECURITY_MAX_QUANTITY" default:"100"`
	MaxCartValue      float64       `envconfig:"PACKFINDERZ_SECURITY_MAX_CART_VALUE" default:"10000"`
	MaxProductPrice   float64       `envconfig:"PACKFINDERZ_SECURITY_MAX_PRODUCT_PRICE" default:"1000"`
	VelocityLimit     int           `envconfig:"PACKFINDERZ_SECURITY_VELOCITY_LIMIT" default:"30"`
	VelocityWindow    time.Duration `envconfig:"PACKFINDERZ_SECURITY_VELOCITY_WINDOW" default:"1m"`
	MaxSecurityErrors int           `envconfig:"PACKFINDERZ_SECURITY_MAX_ERRORS" default:"5"`
}

type PersistenceConfig struct {
	StorageKey   string        `envconfig:"PACKFINDERZ_PERSISTENCE_STORAGE_KEY" default:"nuxt-cart"`
	SaveDebounce time.Duration `envconfig:"PACKFINDERZ_PERSISTENCE_SAVE_DEBOUNCE" default:"1s"`
	FallbackTTL  time.Duration `envconfig:"PACKFINDERZ_PERSISTENCE_FALLBACK_TTL" default:"24h"`
}

type AdvancedConfig struct {
	MaxRecommendations    int           `envconfig:"PACKFINDERZ_ADVANCED_MAX_RECOMMENDATIONS" default:"5"`
	RecommendationTimeout time.Duration `envconfig:"PACKFINDERZ_ADVANCED_RECOMMENDATION_TIMEOUT" default:"5s"`
}

type LockConfig struct {
	TTL time.Duration `envconfig:"PACKFINDERZ_CART_LOCK_TTL" default:"30m"`
}

// SessionsConfig bounds how long idle carts stay in memory.
type SessionsConfig struct {
	IdleTimeout      time.Duration `envconfig:"PACKFINDERZ_SESSIONS_IDLE_TIMEOUT" default:"2h"`
	MaintainInterval time.Duration `envconfig:"PACKFINDERZ_SESSIONS_MAINTAIN_INTERVAL" default:"1m"`
}

type RateLimitConfig struct {
	Window       time.Duration `envconfig:"PACKFINDERZ_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit      int           `envconfig:"PACKFINDERZ_RATE_LIMIT_IP" default:"300"`
	SessionLimit int           `envconfig:"PACKFINDERZ_RATE_LIMIT_SESSION" default:"120"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
		if db.DSN == "" {
			db.DSN = defaultSQLiteDSN
		}
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
