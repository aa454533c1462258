// Package storage resolves the platform-specific directories the USI layer
// falls back to when Eval_Dir / Book_File aren't set explicitly, the same
// role the teacher's internal/storage played for its own data directory.
package storage

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "shogi-engine"

// GetDataDir returns the platform-specific data directory for the application.
// - macOS: ~/Library/Application Support/shogi-engine/
// - Linux: ~/.local/share/shogi-engine/
// - Windows: %APPDATA%/shogi-engine/
func GetDataDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "darwin":
		// macOS: ~/Library/Application Support/
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		baseDir = filepath.Join(homeDir, "Library", "Application Support")

	case "windows":
		// Windows: %APPDATA%
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(homeDir, "AppData", "Roaming")
		}

	default:
		// Linux and other Unix-like: ~/.local/share/
		// Check XDG_DATA_HOME first
		baseDir = os.Getenv("XDG_DATA_HOME")
		if baseDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(homeDir, ".local", "share")
		}
	}

	dataDir := filepath.Join(baseDir, appName)

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}

	return dataDir, nil
}

// GetEvalDir returns the default directory the engine looks in for
// KPP_synthesized.bin / KKP_synthesized.bin when Eval_Dir isn't set.
func GetEvalDir() (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}

	evalDir := filepath.Join(dataDir, "eval")
	if err := os.MkdirAll(evalDir, 0755); err != nil {
		return "", err
	}

	return evalDir, nil
}

// GetDatabaseDir returns the directory for storing the BadgerDB-backed
// opening book when Book_File isn't set.
func GetDatabaseDir() (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}

	dbDir := filepath.Join(dataDir, "book")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return "", err
	}

	return dbDir, nil
}
