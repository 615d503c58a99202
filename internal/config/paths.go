package config

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.wppmcp.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wppmcp")
}

// ConfigPath returns the config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// StorePath returns the default archive location.
func StorePath() string {
	return filepath.Join(BaseDir(), "store", "messages.db")
}

// RunDir holds the daemon lock and health socket.
func RunDir() string {
	return filepath.Join(BaseDir(), "run")
}

// SocketPath returns the health socket path.
func SocketPath() string {
	return filepath.Join(RunDir(), "health.sock")
}

// LogPath returns the daemon log file path.
func LogPath() string {
	return filepath.Join(BaseDir(), "logs", "wppmcp.log")
}

// EnsureDirs creates the parent directories of every path the config names.
func (c *Config) EnsureDirs() error {
	dirs := []string{filepath.Dir(c.HealthSocket)}
	if c.LogPath != "" {
		dirs = append(dirs, filepath.Dir(c.LogPath))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
