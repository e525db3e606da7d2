package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv neutralizes overrides that may be set on the host.
func clearEnv(t *testing.T) {
	for _, key := range []string{
		"PORT", "CORS_ORIGINS", "STORAGE_PROVIDER", "STORAGE_BUCKET", "DATA_DIR",
		"STORAGE_LOCAL_ROOT", "STORAGE_PUBLIC_URL", "S3_REGION", "S3_ENDPOINT",
		"GOOGLE_PROJECT_ID", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
		"GOOGLE_SERVICE_ACCOUNT_JSON", "SUPABASE_URL", "SUPABASE_ANON_KEY",
		"SUPABASE_JWT_SECRET", "SUPABASE_JWKS_URL", "AUTH_REDIRECT_URL",
		"DATABASE_URL", "TABLE_PREFIX", "LOG_LEVEL", "DUCKDB_TEMP_DIR", "MAX_ZIP_SIZE_MB",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_CreatesDefault(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "SprintDashboard.config.xml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config should be written")

	assert.Equal(t, 8089, cfg.Server.Port)
	assert.Equal(t, "local", cfg.Storage.Provider)
	assert.Equal(t, filepath.Join(dir, "data", "objects"), cfg.Storage.LocalRoot)
	assert.Equal(t, filepath.Join(dir, "data", "temp"), cfg.Storage.TempDirectory)
	assert.Equal(t, "0.0.0.0:8089", cfg.GetServerAddr())
	assert.Equal(t, []string{"github"}, cfg.GetOAuthProviders())
	assert.Equal(t, int64(100<<20), cfg.GetMaxZipSize())
}

func TestLoadConfig_FileAndEnvironment(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "app.xml")
	require.NoError(t, os.WriteFile(path, []byte(`<?xml version="1.0"?>
<SprintDashboard>
  <Server>
    <Port>9000</Port>
    <AllowOrigins>https://a.example, https://b.example ,</AllowOrigins>
  </Server>
  <Storage>
    <Provider>s3</Provider>
    <Bucket>exports</Bucket>
    <S3Region>eu-central-1</S3Region>
  </Storage>
  <Auth>
    <OAuthProviders>GitHub, google</OAuthProviders>
  </Auth>
  <Processing>
    <MaxZipSizeMB>20</MaxZipSizeMB>
  </Processing>
</SprintDashboard>`), 0644))

	t.Setenv("PORT", "9100")
	t.Setenv("AWS_ACCESS_KEY_ID", "key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co/")
	t.Setenv("DATABASE_URL", "postgres://localhost/activity")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "exports", cfg.Storage.Bucket)
	assert.Equal(t, "key", cfg.Storage.AWSAccessKeyID)
	assert.Equal(t, "postgres://localhost/activity", cfg.Database.URL)
	assert.Equal(t, "https://project.supabase.co/auth/v1/.well-known/jwks.json", cfg.Auth.JWKSURL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.GetAllowedOrigins())
	assert.Equal(t, []string{"github", "google"}, cfg.GetOAuthProviders())
	assert.Equal(t, int64(20<<20), cfg.GetMaxZipSize())
	// unset elements keep their defaults
	assert.Equal(t, 100, cfg.Storage.FolderLimit)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_Invalid(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.xml")
	require.NoError(t, os.WriteFile(path, []byte("<SprintDashboard><Server>"), 0644))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestValidate(t *testing.T) {
	valid := func() *AppConfig {
		cfg := DefaultConfig()
		cfg.Auth.JWTSecret = "secret"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *AppConfig)
		wantErr string
	}{
		{"default local", func(c *AppConfig) {}, ""},
		{"no bucket", func(c *AppConfig) { c.Storage.Bucket = "" }, "bucket is required"},
		{"unknown provider", func(c *AppConfig) { c.Storage.Provider = "ftp" }, "invalid storage provider"},
		{"s3 without keys", func(c *AppConfig) { c.Storage.Provider = "s3" }, "AWS_ACCESS_KEY_ID"},
		{"s3 with endpoint", func(c *AppConfig) {
			c.Storage.Provider = "s3"
			c.Storage.AWSAccessKeyID = "k"
			c.Storage.AWSSecretAccessKey = "s"
			c.Storage.S3Endpoint = "http://minio:9000"
		}, ""},
		{"gcs without project", func(c *AppConfig) { c.Storage.Provider = "gcs" }, "GOOGLE_PROJECT_ID"},
		{"no token verification", func(c *AppConfig) { c.Auth.JWTSecret = "" }, "SUPABASE_JWKS_URL"},
		{"folder limit", func(c *AppConfig) { c.Storage.FolderLimit = 0 }, "FolderLimit"},
		{"zip size", func(c *AppConfig) { c.Processing.MaxZipSizeMB = 0 }, "MaxZipSizeMB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Storage.DataDirectory = filepath.Join(dir, "data")
	cfg.Storage.TempDirectory = filepath.Join(dir, "tmp")
	cfg.Storage.LocalRoot = filepath.Join(dir, "objects")

	require.NoError(t, cfg.EnsureDirectories())
	for _, d := range []string{"data", "tmp", "objects"} {
		info, err := os.Stat(filepath.Join(dir, d))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestLoadConfig_MaxZipSizeFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_ZIP_SIZE_MB", "5")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "app.xml"))
	require.NoError(t, err)
	assert.Equal(t, int64(5<<20), cfg.GetMaxZipSize())
}
