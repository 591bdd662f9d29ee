// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
)

//go:embed modelroute.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/modelroute/modelroute.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "modelroute", "modelroute.yaml"), nil
}

// DefaultDataDir returns ~/.local/share/modelroute, where the snapshot
// lives unless storage.path says otherwise.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "modelroute"), nil
}

// WriteDefaultConfig writes the commented default config to path unless
// a file already exists there. It reports whether it wrote the file.
func WriteDefaultConfig(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating config directory: %w", err)
	}
	if err := os.WriteFile(path, DefaultConfigYAML, 0o600); err != nil {
		return false, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "writing default config: %w", err)
	}
	return true, nil
}

// BootstrapConfig writes the default config to DefaultConfigPath if no
// file exists there. It returns the path written, or an empty string if
// the file already existed or could not be written (logged and skipped).
func BootstrapConfig(logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}

	cfgPath, err := DefaultConfigPath()
	if err != nil {
		logger.Debug("skipping config bootstrap", "error", err)
		return ""
	}

	wrote, err := WriteDefaultConfig(cfgPath)
	if err != nil {
		logger.Debug("skipping config bootstrap", "path", cfgPath, "error", err)
		return ""
	}
	if !wrote {
		return ""
	}

	logger.Info("created default config", "path", cfgPath)
	return cfgPath
}
