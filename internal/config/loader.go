package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. An empty path returns
// the defaults.
func Load(configPath string) (*Config, error) {
	if strings.TrimSpace(configPath) == "" {
		return Defaults(), nil
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}

	cfg = applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	// Parse into an empty config; defaults are applied afterwards so a
	// partial file only overrides what it names.
	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}

	if cfg.API.KeySecret == "" {
		cfg.API.KeySecret = defaults.API.KeySecret
	}
	if cfg.API.CacheBucketSecret == "" {
		cfg.API.CacheBucketSecret = defaults.API.CacheBucketSecret
	}
	paths := &cfg.API.Paths
	if paths.GetBucket == "" {
		paths.GetBucket = defaults.API.Paths.GetBucket
	}
	if paths.UploadBucketFile == "" {
		paths.UploadBucketFile = defaults.API.Paths.UploadBucketFile
	}
	if paths.DeleteBucketFile == "" {
		paths.DeleteBucketFile = defaults.API.Paths.DeleteBucketFile
	}
	if paths.WriteBucketData == "" {
		paths.WriteBucketData = defaults.API.Paths.WriteBucketData
	}
	if paths.GetTags == "" {
		paths.GetTags = defaults.API.Paths.GetTags
	}
	if paths.SendEmail == "" {
		paths.SendEmail = defaults.API.Paths.SendEmail
	}

	if cfg.Script.ExtensionGlob == "" {
		cfg.Script.ExtensionGlob = defaults.Script.ExtensionGlob
	}

	if cfg.Legacy.Interpreter == "" {
		cfg.Legacy.Interpreter = defaults.Legacy.Interpreter
	}
	if cfg.Legacy.ExtensionGlob == "" {
		cfg.Legacy.ExtensionGlob = defaults.Legacy.ExtensionGlob
	}
	if len(cfg.Legacy.SupportedOS) == 0 {
		cfg.Legacy.SupportedOS = defaults.Legacy.SupportedOS
	}
	if cfg.Legacy.GracePeriod == 0 {
		cfg.Legacy.GracePeriod = defaults.Legacy.GracePeriod
	}

	return cfg
}

func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Leave the placeholder; validate reports it.
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error (got %q)", cfg.Log.Level)
	}

	if cfg.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}
	for field, value := range map[string]string{
		"api.key_secret":          cfg.API.KeySecret,
		"api.cache_bucket_secret": cfg.API.CacheBucketSecret,
		"legacy.interpreter":      cfg.Legacy.Interpreter,
	} {
		if envVarPattern.MatchString(value) {
			matches := envVarPattern.FindStringSubmatch(value)
			return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
		}
	}

	for field, p := range map[string]string{
		"api.paths.get_bucket":          cfg.API.Paths.GetBucket,
		"api.paths.upload_bucket_files": cfg.API.Paths.UploadBucketFile,
		"api.paths.delete_bucket_file":  cfg.API.Paths.DeleteBucketFile,
		"api.paths.write_bucket_data":   cfg.API.Paths.WriteBucketData,
		"api.paths.get_tags":            cfg.API.Paths.GetTags,
		"api.paths.send_email":          cfg.API.Paths.SendEmail,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must start with / (got %q)", field, p)
		}
	}

	for field, glob := range map[string]string{
		"script.extension_glob": cfg.Script.ExtensionGlob,
		"legacy.extension_glob": cfg.Legacy.ExtensionGlob,
	} {
		if _, err := path.Match(glob, ""); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}

	if cfg.Legacy.GracePeriod < 0 {
		return fmt.Errorf("legacy.grace_period must not be negative")
	}
	return nil
}
