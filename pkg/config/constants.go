package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"

	EnvStoreTimeZone = "STOREFRONT_STORE_TIMEZONE"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvUseSQLite = "STOREFRONT_USE_SQLITE"
	EnvRedisURL  = "STOREFRONT_REDIS_URL"
	EnvRedisAddr = "STOREFRONT_REDIS_ADDR"

	EnvCheckoutCooldown   = "STOREFRONT_CHECKOUT_SUBMIT_COOLDOWN"
	EnvCheckoutRetryDelay = "STOREFRONT_CHECKOUT_RETRY_DELAY"

	EnvMessagingChannelID = "STOREFRONT_MESSAGING_CHANNEL_ID"
	EnvAdminJWTSecret     = "STOREFRONT_ADMIN_JWT_SECRET"

	EnvPubSubAnalyticsTopic = "STOREFRONT_PUBSUB_ANALYTICS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
