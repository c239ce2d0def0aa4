package config

const (
	DefaultBackupJobName  = "adboost-db-backup"
	DefaultBackupSchedule = "0 2 * * *"
)

func DefaultPipelineConfig() *PipelineConfig {
	empty := "{}"
	return &PipelineConfig{
		Name: "Deploy AdBoost",
		Steps: []StepConfig{
			{Name: "Install backend dependencies", Kind: "run", Dir: "backend", Command: "npm", Args: []string{"ci"}},
			{Name: "Install frontend dependencies", Kind: "run", Dir: "frontend", Command: "npm", Args: []string{"ci"}},
			{Name: "Build frontend", Kind: "run", Dir: "frontend", Command: "npm", Args: []string{"run", "build"}},
			{Name: "Package project", Kind: "package", Exclude: []string{"node_modules", ".git", ".env"}},
			{Name: "Deploy to Render (API)", Kind: "webhook", URL: "${" + EnvRenderDeployHookURL + "}", Method: "POST", Body: &empty},
			{
				Name:    "Deploy to Vercel (Frontend)",
				Kind:    "run",
				Dir:     "frontend",
				Command: "npx",
				Args:    []string{"--yes", "vercel", "--token=${" + EnvVercelToken + "}", "--prod"},
			},
		},
	}
}

func DefaultBackupConfig() *BackupConfig {
	return &BackupConfig{
		Jobs: []JobConfig{
			{
				Name:     DefaultBackupJobName,
				Schedule: DefaultBackupSchedule,
				Command:  "node",
				Args:     []string{"scripts/backup-db.js"},
				Env: []EnvConfig{
					{Key: EnvGoogleServiceAccountFile, FromEnv: EnvGoogleServiceAccountFile},
					{Key: EnvGDriveFolderID, FromEnv: EnvGDriveFolderID},
					{Key: EnvDatabaseURL, FromEnv: EnvDatabaseURL},
				},
				Enable: true,
			},
		},
	}
}
