package appdir

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.mingle.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mingle")
}

// Dir returns the profile-specific directory.
func Dir(profile string) string {
	return filepath.Join(BaseDir(), "profiles", profile)
}

// CacheDBPath returns the on-disk cache database path for a profile.
func CacheDBPath(profile string) string {
	return filepath.Join(Dir(profile), "cache.db")
}

// LockPath returns the lock file path for a profile.
func LockPath(profile string) string {
	return filepath.Join(Dir(profile), "LOCK")
}

// LogDir returns the log directory for a profile.
func LogDir(profile string) string {
	return filepath.Join(Dir(profile), "logs")
}

// LogPath returns the core log file path.
func LogPath(profile string) string {
	return filepath.Join(LogDir(profile), "mingle.log")
}

// ConfigPath returns the per-profile config file path.
func ConfigPath(profile string) string {
	return filepath.Join(Dir(profile), "config.toml")
}

// EnsureDir creates the profile directory tree with proper permissions.
func EnsureDir(profile string) error {
	dirs := []string{
		Dir(profile),
		LogDir(profile),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
