package config

// EnvPrefix is passed to envconfig; individual fields override names explicitly.
const EnvPrefix = "GROUPBUY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN            = "GROUPBUY_DB_DSN"
	EnvDBHost           = "GROUPBUY_DB_HOST"
	EnvDBUser           = "GROUPBUY_DB_USER"
	EnvDBName           = "GROUPBUY_DB_NAME"
	EnvGatewayProviders = "GROUPBUY_GATEWAY_PROVIDERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
