package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bookloom/internal/config"
	"bookloom/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	t.Setenv("BOOKLOOM_API_KEY", "")
	t.Setenv("BOOKLOOM_NTFY_TOPIC", "")
	cfg := testsupport.NewConfig(t, testsupport.WithoutImages())
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
artifact_dir = %q
log_dir = %q

[store]
driver = "sqlite"
sqlite_path = %q

[provider]
api_key = %q
base_url = %q

[workflow]
worker_name = %q

[images]
enabled = false

[status_api]
enabled = false
`,
		cfg.Paths.DataDir,
		cfg.Paths.ArtifactDir,
		cfg.Paths.LogDir,
		cfg.Store.SQLitePath,
		cfg.Provider.APIKey,
		cfg.Provider.BaseURL,
		cfg.Workflow.WorkerName,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func decodeJSON(t *testing.T, output string, target any) {
	t.Helper()
	if err := json.Unmarshal([]byte(output), target); err != nil {
		t.Fatalf("decode %q: %v", output, err)
	}
}

type addedBook struct {
	Book struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"book"`
	Job struct {
		ID       string `json:"id"`
		Pipeline string `json:"pipeline"`
		Status   string `json:"status"`
	} `json:"job"`
}

func addBook(t *testing.T, env *cliTestEnv, title string) addedBook {
	t.Helper()
	out, _, err := runCLI(t, []string{
		"book", "add",
		"--title", title,
		"--premise", "A lighthouse keeper befriends a storm.",
		"--chapters", "3",
		"--json",
	}, env.configPath)
	if err != nil {
		t.Fatalf("book add: %v", err)
	}
	var added addedBook
	decodeJSON(t, out, &added)
	return added
}
