package config

// EnvPrefix namespaces every environment variable the backend reads.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "READSTACK_DB_DSN"
	EnvDBHost = "READSTACK_DB_HOST"
	EnvDBUser = "READSTACK_DB_USER"
	EnvDBName = "READSTACK_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
