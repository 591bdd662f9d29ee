// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sigil-dev/modelroute/internal/config"
	"github.com/sigil-dev/modelroute/internal/profiler"
	"github.com/sigil-dev/modelroute/internal/router"
	"github.com/sigil-dev/modelroute/internal/store"
	_ "github.com/sigil-dev/modelroute/internal/store/file"   // register file backend
	_ "github.com/sigil-dev/modelroute/internal/store/sqlite" // register sqlite backend
	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
	"github.com/spf13/viper"
)

// App holds the wired subsystems for one command invocation.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    store.Store
	Profiler *profiler.Profiler
	Router   *router.Router
}

// WireApp loads configuration from v, opens the snapshot store, loads the
// profiler state and builds the router. The caller must Close the App.
func WireApp(ctx context.Context, v *viper.Viper, logOut io.Writer) (*App, error) {
	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}

	if cfg.DataDir == "" {
		dir, err := config.DefaultDataDir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = dir
	}

	logger := newLogger(cfg.Logging, v.GetBool("verbose"), logOut)
	if used := v.ConfigFileUsed(); used != "" {
		config.WarnInsecurePermissions(logger, used)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating data directory: %w", err)
	}

	st, err := store.Open(cfg.StoreConfig())
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "opening snapshot store: %w", err)
	}

	prof, err := profiler.Open(ctx, cfg.ProfilerConfig(), st, profiler.WithLogger(logger))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	routerCfg, err := cfg.RouterConfig()
	if err != nil {
		_ = prof.Close(ctx)
		_ = st.Close()
		return nil, err
	}

	rt, err := router.New(routerCfg, prof, router.WithLogger(logger))
	if err != nil {
		_ = prof.Close(ctx)
		_ = st.Close()
		return nil, err
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    st,
		Profiler: prof,
		Router:   rt,
	}, nil
}

// Close flushes the profiler and closes the store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Profiler.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return sigilerr.Join(errs...)
	}
	return nil
}

// closeApp closes the App and keeps the command's own error if it has one.
func closeApp(ctx context.Context, app *App, err *error) {
	if cerr := app.Close(ctx); cerr != nil && *err == nil {
		*err = cerr
	}
}

func newLogger(cfg config.LoggingConfig, verbose bool, out io.Writer) *slog.Logger {
	level := parseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
