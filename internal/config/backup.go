package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	// MaxBackups is the maximum number of config backups to keep.
	MaxBackups = 3

	// BackupSuffix is the file extension for backup files.
	BackupSuffix = ".bak"
)

// BackupUserConfig creates a timestamped backup of the user config file.
// Returns the backup file path on success. If no user config exists,
// returns empty string and nil error.
func BackupUserConfig() (string, error) {
	configPath := GetUserConfigPath()

	if !UserConfigExists() {
		return "", nil
	}

	timestamp := time.Now().Format("20060102-150405")
	backupPath := fmt.Sprintf("%s%s.%s", configPath, BackupSuffix, timestamp)

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	// Pruning is best-effort; the backup itself already succeeded.
	_ = cleanupOldBackups(configPath)

	return backupPath, nil
}

// ListUserConfigBackups returns all backup files for the user config,
// sorted newest first.
func ListUserConfigBackups() ([]string, error) {
	configPath := GetUserConfigPath()
	pattern := configPath + BackupSuffix + ".*"

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}

// cleanupOldBackups removes backups beyond MaxBackups, oldest first.
func cleanupOldBackups(configPath string) error {
	matches, err := filepath.Glob(configPath + BackupSuffix + ".*")
	if err != nil {
		return err
	}

	if len(matches) <= MaxBackups {
		return nil
	}

	// Timestamped names sort chronologically.
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-MaxBackups] {
		if err := os.Remove(old); err != nil {
			return err
		}
	}
	return nil
}
