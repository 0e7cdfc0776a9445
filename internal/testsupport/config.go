package testsupport

import (
	"path/filepath"
	"testing"

	"bookloom/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Provider.APIKey = "test"
	cfgVal.Provider.BaseURL = "http://127.0.0.1:0"
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.ArtifactDir = filepath.Join(base, "artifacts")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Store.SQLitePath = filepath.Join(base, "data", "bookloom.db")
	cfgVal.Workflow.WorkerName = "test"
	cfgVal.StatusAPI.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithoutImages disables the illustration step.
func WithoutImages() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Images.Enabled = false
	}
}

// WithChunkLimit sets the narration chunk size.
func WithChunkLimit(chars int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Narration.MaxChunkChars = chars
	}
}

// WithAutoNarrate turns on narration enqueue after text completion.
func WithAutoNarrate() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.AutoNarrate = true
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

// WithConfig applies an arbitrary mutation to the test config.
func WithConfig(fn func(*config.Config)) ConfigOption {
	return func(b *configBuilder) {
		fn(b.cfg)
	}
}
