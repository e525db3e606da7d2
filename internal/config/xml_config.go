// Package config provides XML-based configuration management with environment overrides.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"SprintDashboard"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Object storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Hosted auth configuration
	Auth AuthConfig `xml:"Auth"`

	// Activity log database
	Database DatabaseConfig `xml:"Database"`

	// Processing configuration
	Processing ProcessingConfig `xml:"Processing"`

	// Security configuration
	Security SecurityConfig `xml:"Security"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig selects and configures the object store.
// Credentials are read from the environment only and never written to the file.
type StorageConfig struct {
	Provider      string `xml:"Provider"` // "local", "s3" or "gcs"
	Bucket        string `xml:"Bucket"`
	Prefix        string `xml:"Prefix"`
	DataDirectory string `xml:"DataDirectory"`
	LocalRoot     string `xml:"LocalRoot"`
	TempDirectory string `xml:"TempDirectory"`
	PublicBaseURL string `xml:"PublicBaseURL"`
	FolderLimit   int    `xml:"FolderLimit"`

	S3Region   string `xml:"S3Region"`
	S3Endpoint string `xml:"S3Endpoint"`

	GCSProjectID string `xml:"GCSProjectID"`

	AWSAccessKeyID           string `xml:"-"`
	AWSSecretAccessKey       string `xml:"-"`
	GoogleServiceAccountJSON string `xml:"-"`
}

// AuthConfig points at the hosted auth service.
type AuthConfig struct {
	URL              string `xml:"URL"`
	JWKSURL          string `xml:"JWKSURL"`
	RedirectURL      string `xml:"RedirectURL"`
	OAuthProviders   string `xml:"OAuthProviders"`
	AnonKey          string `xml:"-"`
	JWTSecret        string `xml:"-"`
	RequestTimeoutMs int    `xml:"RequestTimeoutMs"`
}

// DatabaseConfig configures the optional Postgres activity log.
type DatabaseConfig struct {
	URL         string `xml:"-"`
	TablePrefix string `xml:"TablePrefix"`
}

// ProcessingConfig contains analysis and processing job settings
type ProcessingConfig struct {
	MaxSessions            int    `xml:"MaxSessions"`
	SessionTimeoutMinutes  int    `xml:"SessionTimeoutMinutes"`
	CleanupIntervalMinutes int    `xml:"CleanupIntervalMinutes"`
	JobRetentionMinutes    int    `xml:"JobRetentionMinutes"`
	MaxZipSizeMB           int    `xml:"MaxZipSizeMB"`
	EnableCompression      bool   `xml:"EnableCompression"`
	CompressionLevel       int    `xml:"CompressionLevel"`
	CategoriesFile         string `xml:"CategoriesFile"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	AllowFolderDeletion bool   `xml:"AllowFolderDeletion"`
	AllowedFileTypes    string `xml:"AllowedFileTypes"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
	DuckDBThreads        int    `xml:"DuckDBThreads"`
	DuckDBMemoryLimit    string `xml:"DuckDBMemoryLimit"`
	StorageRetries       int    `xml:"StorageRetries"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "http://localhost:3000",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "200M",
		},
		Storage: StorageConfig{
			Provider:      "local",
			Bucket:        "sprint-data",
			DataDirectory: "./data",
			LocalRoot:     "./data/objects",
			TempDirectory: "./data/temp",
			FolderLimit:   100,
		},
		Auth: AuthConfig{
			OAuthProviders:   "github",
			RequestTimeoutMs: 15000,
		},
		Database: DatabaseConfig{
			TablePrefix: "dev_",
		},
		Processing: ProcessingConfig{
			MaxSessions:            10,
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
			JobRetentionMinutes:    60,
			MaxZipSizeMB:           100,
			EnableCompression:      true,
			CompressionLevel:       5,
		},
		Security: SecurityConfig{
			AllowFolderDeletion: true,
			AllowedFileTypes:    ".csv",
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
			DuckDBThreads:        2,
			DuckDBMemoryLimit:    "512MB",
			StorageRetries:       3,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Sprint Dashboard Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		c.Server.AllowOrigins = origins
	}

	setString(&c.Storage.Provider, "STORAGE_PROVIDER")
	setString(&c.Storage.Bucket, "STORAGE_BUCKET")
	setString(&c.Storage.DataDirectory, "DATA_DIR")
	setString(&c.Storage.LocalRoot, "STORAGE_LOCAL_ROOT")
	setString(&c.Storage.PublicBaseURL, "STORAGE_PUBLIC_URL")
	setString(&c.Storage.S3Region, "S3_REGION")
	setString(&c.Storage.S3Endpoint, "S3_ENDPOINT")
	setString(&c.Storage.GCSProjectID, "GOOGLE_PROJECT_ID")
	setString(&c.Storage.AWSAccessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&c.Storage.AWSSecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	setString(&c.Storage.GoogleServiceAccountJSON, "GOOGLE_SERVICE_ACCOUNT_JSON")

	setString(&c.Auth.URL, "SUPABASE_URL")
	setString(&c.Auth.AnonKey, "SUPABASE_ANON_KEY")
	setString(&c.Auth.JWTSecret, "SUPABASE_JWT_SECRET")
	setString(&c.Auth.JWKSURL, "SUPABASE_JWKS_URL")
	setString(&c.Auth.RedirectURL, "AUTH_REDIRECT_URL")
	if c.Auth.JWKSURL == "" && c.Auth.JWTSecret == "" && c.Auth.URL != "" {
		c.Auth.JWKSURL = strings.TrimSuffix(c.Auth.URL, "/") + "/auth/v1/.well-known/jwks.json"
	}

	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Database.TablePrefix, "TABLE_PREFIX")

	if size := os.Getenv("MAX_ZIP_SIZE_MB"); size != "" {
		if mb, err := strconv.Atoi(size); err == nil {
			c.Processing.MaxZipSizeMB = mb
		}
	}

	setString(&c.Advanced.LogLevel, "LOG_LEVEL")
	if tempDir := os.Getenv("DUCKDB_TEMP_DIR"); tempDir != "" {
		c.Storage.TempDirectory = tempDir
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{&c.Storage.DataDirectory, &c.Storage.LocalRoot, &c.Storage.TempDirectory} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
	if c.Processing.CategoriesFile != "" && !filepath.IsAbs(c.Processing.CategoriesFile) {
		c.Processing.CategoriesFile = filepath.Join(configDir, c.Processing.CategoriesFile)
	}
}

// Validate checks provider-specific settings.
func (c *AppConfig) Validate() error {
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}
	switch c.Storage.Provider {
	case "local":
		if c.Storage.LocalRoot == "" {
			return fmt.Errorf("LocalRoot is required for local storage")
		}
	case "s3":
		if c.Storage.AWSAccessKeyID == "" || c.Storage.AWSSecretAccessKey == "" {
			return fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are required for S3 storage")
		}
		if c.Storage.S3Region == "" && c.Storage.S3Endpoint == "" {
			return fmt.Errorf("S3_REGION is required for S3 storage (unless S3_ENDPOINT is set)")
		}
	case "gcs":
		if c.Storage.GCSProjectID == "" {
			return fmt.Errorf("GOOGLE_PROJECT_ID is required for GCS storage")
		}
	default:
		return fmt.Errorf("invalid storage provider: %s (must be 'local', 's3' or 'gcs')", c.Storage.Provider)
	}

	if c.Auth.JWKSURL == "" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("either SUPABASE_JWKS_URL or SUPABASE_JWT_SECRET must be set")
	}
	if c.Storage.FolderLimit <= 0 {
		return fmt.Errorf("FolderLimit must be positive")
	}
	if c.Processing.MaxZipSizeMB <= 0 {
		return fmt.Errorf("MaxZipSizeMB must be positive")
	}
	return nil
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// GetAllowedOrigins splits the configured CORS origins.
func (c *AppConfig) GetAllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.Server.AllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return origins
}

// GetMaxZipSize returns the process-zip upload limit in bytes.
func (c *AppConfig) GetMaxZipSize() int64 {
	return int64(c.Processing.MaxZipSizeMB) << 20
}

// GetOAuthProviders returns the enabled OAuth providers.
func (c *AppConfig) GetOAuthProviders() []string {
	var providers []string
	for _, p := range strings.Split(c.Auth.OAuthProviders, ",") {
		if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
			providers = append(providers, p)
		}
	}
	return providers
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.TempDirectory,
	}
	if c.Storage.Provider == "local" {
		dirs = append(dirs, c.Storage.LocalRoot)
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
