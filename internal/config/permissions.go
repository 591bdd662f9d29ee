// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// WarnInsecurePermissions logs a warning when the file at path can be
// modified by group or other users. It never fails.
func WarnInsecurePermissions(logger *slog.Logger, path string) {
	if path == "" {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Debug("could not stat config file for permission check", "path", path, "error", err)
		return
	}

	const groupWrite fs.FileMode = 0o020
	const otherWrite fs.FileMode = 0o002

	mode := info.Mode()
	if mode.Perm()&(groupWrite|otherWrite) != 0 {
		logger.Warn("config file is writable by other users",
			"path", path,
			"mode", mode,
			"recommended", "0600",
		)
	}
}
