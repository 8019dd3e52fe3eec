package config

import "time"

// Config represents the complete xyrun configuration.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	API    APIConfig    `yaml:"api"`
	Script ScriptConfig `yaml:"script"`
	Legacy LegacyConfig `yaml:"legacy"`
	Output OutputConfig `yaml:"output"`
}

// LogConfig controls the stderr diagnostics logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// APIConfig describes how remote helpers reach the host REST API.
type APIConfig struct {
	// KeySecret names the job secret that holds the API key.
	KeySecret string `yaml:"key_secret"`
	// CacheBucketSecret names the job secret that holds the cache bucket id.
	CacheBucketSecret string `yaml:"cache_bucket_secret"`
	// Timeout bounds each request. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`
	Paths   APIPaths      `yaml:"paths"`
}

// APIPaths are endpoint paths relative to the job's base_url.
type APIPaths struct {
	GetBucket        string `yaml:"get_bucket"`
	UploadBucketFile string `yaml:"upload_bucket_files"`
	DeleteBucketFile string `yaml:"delete_bucket_file"`
	WriteBucketData  string `yaml:"write_bucket_data"`
	GetTags          string `yaml:"get_tags"`
	SendEmail        string `yaml:"send_email"`
}

// ScriptConfig controls the in-process script executor.
type ScriptConfig struct {
	// ExtensionGlob selects input files loaded before the command.
	ExtensionGlob string `yaml:"extension_glob"`
}

// LegacyConfig controls the subprocess executor.
type LegacyConfig struct {
	Interpreter   string        `yaml:"interpreter"`
	Args          []string      `yaml:"args,omitempty"`
	ExtensionGlob string        `yaml:"extension_glob"`
	SupportedOS   []string      `yaml:"supported_os"`
	GracePeriod   time.Duration `yaml:"grace_period"`
}

// OutputConfig tweaks envelope rendering.
type OutputConfig struct {
	// MarkdownAsHTML renders markdown panels to html before sending.
	MarkdownAsHTML bool `yaml:"markdown_as_html"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		API: APIConfig{
			KeySecret:         "XYOPS_API_KEY",
			CacheBucketSecret: "XYOPS_CACHE_BUCKET",
			Paths: APIPaths{
				GetBucket:        "/api/app/get_bucket/v1",
				UploadBucketFile: "/api/app/upload_bucket_files/v1",
				DeleteBucketFile: "/api/app/delete_bucket_file/v1",
				WriteBucketData:  "/api/app/write_bucket_data/v1",
				GetTags:          "/api/app/get_tags/v1",
				SendEmail:        "/api/app/send_email/v1",
			},
		},
		Script: ScriptConfig{
			ExtensionGlob: "*.js",
		},
		Legacy: LegacyConfig{
			Interpreter:   "/bin/sh",
			ExtensionGlob: "*.sh",
			SupportedOS:   []string{"linux", "darwin", "freebsd", "openbsd", "netbsd"},
			GracePeriod:   5 * time.Second,
		},
	}
}
