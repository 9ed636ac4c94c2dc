// Package app wires configuration, storage, the realtime hub and the
// HTTP server into one lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"tradetalk/pkg/config"
	"tradetalk/pkg/realtime"
	"tradetalk/pkg/store"
	"tradetalk/pkg/validation"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	hub *realtime.Hub
	srv *http.Server
}

// New initializes resources that do not require a running context (DB,
// validation rules, runtime keys). It does not start the hub or the
// HTTP server; call Run to start those and block until shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	// validate effective config early and fail fast
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	// runtime keys: backend API keys double as caller signing secrets
	runtimeCfg := &config.RuntimeConfig{BackendKeys: map[string]struct{}{}, SigningKeys: map[string]struct{}{}}
	for _, k := range eff.Config.Security.APIKeys.Backend {
		runtimeCfg.BackendKeys[k] = struct{}{}
		runtimeCfg.SigningKeys[k] = struct{}{}
	}
	config.SetRuntime(runtimeCfg)

	// validation rules
	validation.SetRules(validation.Rules{
		MaxTextBytes: int(eff.Config.Chat.MaxMessageBytes.Int64()),
	})

	// open store
	if err := store.Open(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	hub := realtime.NewHub(realtime.Options{
		TypingTTL:  eff.Config.Chat.TypingTTL.Duration(),
		SendBuffer: eff.Config.Chat.SendBuffer,
	})

	return &App{eff: eff, version: version, commit: commit, buildDate: buildDate, hub: hub}, nil
}

// Hub exposes the realtime hub, used by tests to inspect presence.
func (a *App) Hub() *realtime.Hub { return a.hub }

// Run starts the realtime hub, the retention scheduler and the HTTP
// server, and blocks until ctx is canceled or a fatal server error
// occurs.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	go a.hub.Run()
	defer a.hub.Stop()

	cancelRetention, err := a.startRetention(ctx)
	if err != nil {
		return err
	}
	defer cancelRetention()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.srv.Shutdown(shutCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Close releases the store. Call after Run returns.
func (a *App) Close() error {
	return store.Close()
}
