// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build !windows

package config_test

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/sigil-dev/modelroute/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestWarnInsecurePermissions(t *testing.T) {
	tests := []struct {
		name       string
		perm       os.FileMode
		expectWarn bool
	}{
		{name: "owner only 0600", perm: 0o600},
		{name: "read only 0400", perm: 0o400},
		{name: "world readable 0644", perm: 0o644},
		{name: "group writable 0660", perm: 0o660, expectWarn: true},
		{name: "world writable 0606", perm: 0o606, expectWarn: true},
		{name: "everyone 0666", perm: 0o666, expectWarn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "modelroute.yaml")
			require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o600))
			// Chmod bypasses the umask applied by WriteFile.
			require.NoError(t, os.Chmod(path, tt.perm))

			logger, buf := captureLogger()
			config.WarnInsecurePermissions(logger, path)

			out := buf.String()
			if tt.expectWarn {
				assert.Contains(t, out, "writable by other users")
				assert.Contains(t, out, path)
				assert.Contains(t, out, "0600")
				return
			}
			assert.NotContains(t, out, "writable by other users")
		})
	}
}

func TestWarnInsecurePermissions_EmptyPath(t *testing.T) {
	logger, buf := captureLogger()
	config.WarnInsecurePermissions(logger, "")
	assert.Empty(t, buf.String())
}

func TestWarnInsecurePermissions_MissingFile(t *testing.T) {
	logger, buf := captureLogger()
	config.WarnInsecurePermissions(logger, "/nonexistent/path/modelroute.yaml")

	out := buf.String()
	assert.Contains(t, out, "could not stat")
	assert.NotContains(t, out, "writable by other users")
}
