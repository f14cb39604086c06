package main

import (
	"fmt"

	"github.com/leanprover/elan/internal/dist"
	"github.com/leanprover/elan/internal/store"
	"github.com/leanprover/elan/internal/telemetry"
	"github.com/leanprover/elan/internal/toolchain"
)

// app is the composition root for the manager CLI: every command
// handler receives one and delegates to the internal/* packages through
// it, rather than constructing its own Layout/Registry/Client. Adapted
// from the teacher's own App/Dependencies composition-root pattern
// (cmd/invowk/app.go), simplified to elan's much smaller service surface
// — there is no Discovery/Commands/Diagnostics split to mirror, only a
// store layout, its persisted settings, a release client, and a sink.
type app struct {
	Layout   store.Layout
	Settings *store.SettingsFile
	Client   *dist.Client
	Registry *toolchain.Registry
	Sink     telemetry.Sink
}

// newApp resolves the store layout and builds every shared service a
// command handler might need. It does not create any directories on
// disk — EnsureDirs is only called by the bootstrap installer.
func newApp(sink telemetry.Sink) (*app, error) {
	layout, err := store.Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolving elan home: %w", err)
	}

	settings := store.NewSettingsFile(layout.SettingsPath)
	client := dist.NewClient(dist.WithUserAgent("elan/" + Version))
	registry := toolchain.New(layout, settings, client)
	registry.Sink = sink

	return &app{
		Layout:   layout,
		Settings: settings,
		Client:   client,
		Registry: registry,
		Sink:     sink,
	}, nil
}

// defaultOrigin reads the configured default-origin setting, used by
// command handlers that need to resolve a descriptor to an identity
// without going through the registry.
func (a *app) defaultOrigin() (string, error) {
	var origin string
	err := a.Settings.With(func(s store.Settings) error {
		origin = s.DefaultOrigin
		return nil
	})
	return origin, err
}
