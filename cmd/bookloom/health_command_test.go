package main

import (
	"strings"
	"testing"
)

func TestHealthReportsStores(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"health"}, env.configPath)
	if err != nil {
		t.Fatalf("health: %v\n%s", err, out)
	}
	requireContains(t, out, "Job store")
	requireContains(t, out, "Library store")
	requireContains(t, out, "Provider key")
	requireContains(t, out, "Data directory")
	if strings.Contains(out, "[ERROR]") {
		t.Fatalf("unexpected failure in %q", out)
	}
}

func TestHealthFailsWithoutProviderKey(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Provider.APIKey = ""
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err := runCLI(t, []string{"health"}, env.configPath)
	if err == nil {
		t.Fatal("expected health to fail without a provider key")
	}
	requireContains(t, out, "[ERROR]")
}
