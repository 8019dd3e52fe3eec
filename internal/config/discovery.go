package config

import (
	"os"
	"path/filepath"
)

// EnvConfigPath names the environment variable that points at a config file.
const EnvConfigPath = "XYRUN_CONFIG"

// DiscoverConfigPath finds the config file by checking standard locations.
// Priority order: $XYRUN_CONFIG, ~/.config/xyrun/config.yaml, /etc/xyrun/config.yaml.
// Returns "" when none exists; the caller then runs on defaults.
func DiscoverConfigPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}

	var candidates []string
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "xyrun", "config.yaml"))
	}
	candidates = append(candidates, filepath.Join(string(filepath.Separator), "etc", "xyrun", "config.yaml"))

	for _, path := range candidates {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
