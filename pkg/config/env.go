package config

const (
	EnvPrefix = "PACKFINDERZ"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:packfinderz-cart.db?cache=shared"

	AnalyticsSinkNone     = "none"
	AnalyticsSinkPubSub   = "pubsub"
	AnalyticsSinkBigQuery = "bigquery"
	AnalyticsSinkBoth     = "both"
)

const (
	EnvAppEnv         = "PACKFINDERZ_APP_ENV"
	EnvPort           = "PACKFINDERZ_APP_PORT"
	EnvDBDSN          = "PACKFINDERZ_DB_DSN"
	EnvDBHost         = "PACKFINDERZ_DB_HOST"
	EnvDBUser         = "PACKFINDERZ_DB_USER"
	EnvDBName         = "PACKFINDERZ_DB_NAME"
	EnvUseSQLite      = "PACKFINDERZ_USE_SQLITE"
	EnvRedisURL       = "PACKFINDERZ_REDIS_URL"
	EnvGCPProjectID   = "PACKFINDERZ_GCP_PROJECT_ID"
	EnvAnalyticsSink  = "PACKFINDERZ_ANALYTICS_SINK"
	EnvSaveDebounce   = "PACKFINDERZ_PERSISTENCE_SAVE_DEBOUNCE"
	EnvValidationTTL  = "PACKFINDERZ_VALIDATION_CACHE_TTL"
	EnvSecurityMaxQty = "PACKFINDERZ_SECURITY_MAX_QUANTITY"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
