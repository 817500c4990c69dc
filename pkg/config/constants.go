package config

const (
	// EnvPrefix is handed to envconfig; individual fields carry explicit names
	// so the prefix stays empty.
	EnvPrefix = ""

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv             = "AGRICHAIN_APP_ENV"
	EnvPort               = "AGRICHAIN_APP_PORT"
	EnvRedisURL           = "AGRICHAIN_REDIS_URL"
	EnvGCPProjectID       = "AGRICHAIN_GCP_PROJECT_ID"
	EnvFallbackDir        = "AGRICHAIN_FALLBACK_DIR"
	EnvOTPAllowTestBypass = "AGRICHAIN_OTP_ALLOW_TEST_BYPASS"
)
