package internal

import (
	"fmt"
	"os"
	"path/filepath"
)

var (
	version   = "dev"
	gitCommit string
)

// GetConfigPath resolves the runtime config file: the WHISPERBOT_CONFIG
// environment variable when set, otherwise ~/.whisperbot/config.yaml.
func GetConfigPath() string {
	if path := os.Getenv("WHISPERBOT_CONFIG"); path != "" {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".whisperbot", "config.yaml")
}

// GetVersion returns the version string.
func GetVersion() string {
	return version
}

// FormatVersion returns the version string with optional git commit.
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}
