package config

const (
	// Deploy secrets.
	EnvRenderDeployHookURL = "RENDER_DEPLOY_HOOK_URL"
	EnvVercelToken         = "VERCEL_TOKEN"

	// Backup job configuration.
	EnvGoogleServiceAccountFile = "GOOGLE_SERVICE_ACCOUNT_FILE"
	EnvGDriveFolderID           = "GDRIVE_FOLDER_ID"
	EnvDatabaseURL              = "DATABASE_URL"

	EnvLogLevel = "LOG_LEVEL"
)

// Port the built frontend is served on locally.
const PreviewPort = 5173
