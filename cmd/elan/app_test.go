package main

import (
	"testing"

	"github.com/leanprover/elan/internal/descriptor"
	"github.com/leanprover/elan/internal/telemetry"
)

func TestNewAppResolvesLayoutFromElanHome(t *testing.T) {
	t.Setenv("ELAN_HOME", t.TempDir())

	app, err := newApp(telemetry.Noop{})
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	if app.Layout.Root == "" {
		t.Fatal("newApp returned an app with an empty Layout.Root")
	}
	if app.Registry == nil || app.Settings == nil || app.Client == nil {
		t.Fatal("newApp left a required service nil")
	}
}

func TestParseDescriptorArgParsesChannelAndRemote(t *testing.T) {
	t.Setenv("ELAN_HOME", t.TempDir())

	app, err := newApp(telemetry.Noop{})
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}

	desc, err := parseDescriptorArg(app, "stable")
	if err != nil {
		t.Fatalf("parseDescriptorArg: %v", err)
	}
	if desc.Kind != descriptor.Symbolic || desc.Channel != "stable" {
		t.Fatalf("parseDescriptorArg(\"stable\") = %+v, want a Symbolic \"stable\" descriptor", desc)
	}

	remote, err := parseDescriptorArg(app, "leanprover/lean4:v4.9.0")
	if err != nil {
		t.Fatalf("parseDescriptorArg: %v", err)
	}
	if remote.Kind != descriptor.Remote || remote.Origin != "leanprover/lean4" || remote.Tag != "v4.9.0" {
		t.Fatalf("parseDescriptorArg(origin:tag) = %+v, want a Remote descriptor", remote)
	}
}
