package config

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 2333
	defaultEnv        = "development"
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "mx_drafts"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"
	defaultRedisPort  = 6379
	defaultMongoDB    = "mx_drafts"

	StorageMySQL  = "mysql"
	StorageMongo  = "mongo"
	StorageMemory = "memory"

	defaultAutoSaveWait    = 120
	defaultAutoSaveTimeout = 20
	defaultLifeSpanDays    = 90
	defaultRateLimit       = 20
)
