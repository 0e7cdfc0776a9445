package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	ArtifactDir string `toml:"artifact_dir"`
	LogDir      string `toml:"log_dir"`
}

// Store selects and configures the persistence backend.
type Store struct {
	Driver      string `toml:"driver"` // sqlite or postgres
	SQLitePath  string `toml:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn"`
}

// Provider contains connection settings for the OpenAI-compatible generation API.
type Provider struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	TextModel      string `toml:"text_model"`
	ImageModel     string `toml:"image_model"`
	SpeechModel    string `toml:"speech_model"`
	Voice          string `toml:"voice"`
	ImageSize      string `toml:"image_size"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	// RetryAttempts is the number of attempts per call. 1 means no in-pass
	// retry; failed jobs are recovered by requeue instead.
	RetryAttempts int `toml:"retry_attempts"`
}

// Workflow contains configuration for the poller, lease, and lanes.
type Workflow struct {
	WorkerName         string `toml:"worker_name"`
	PollInterval       int    `toml:"poll_interval"`
	LeaseSeconds       int    `toml:"lease_seconds"`
	HeartbeatInterval  int    `toml:"heartbeat_interval"`
	ErrorRetryInterval int    `toml:"error_retry_interval"`
	TextEnabled        bool   `toml:"text_enabled"`
	AudioEnabled       bool   `toml:"audio_enabled"`
	AutoNarrate        bool   `toml:"auto_narrate"`
}

// Narration contains audio pipeline settings.
type Narration struct {
	MaxChunkChars int    `toml:"max_chunk_chars"`
	Format        string `toml:"format"`
}

// Images contains illustration settings.
type Images struct {
	Enabled      bool   `toml:"enabled"`
	MaxDimension int    `toml:"max_dimension"`
	Format       string `toml:"format"`
	JPEGQuality  int    `toml:"jpeg_quality"`
}

// StatusAPI configures the read-only worker status endpoint.
type StatusAPI struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
	Token   string `toml:"token"` // optional bearer token
}

// Notifications configures ntfy delivery of job outcomes.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"` // full topic URL; empty disables
	RequestTimeout int    `toml:"request_timeout"`
	NotifyComplete bool   `toml:"notify_complete"`
	NotifyFailure  bool   `toml:"notify_failure"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format            string            `toml:"format"`
	Level             string            `toml:"level"`
	PipelineOverrides map[string]string `toml:"pipeline_overrides"`
}

// Config encapsulates all configuration values for bookloom.
//
// Configuration sections by subsystem:
//   - Paths: data, artifact, and log directories
//   - Store: sqlite or postgres persistence
//   - Provider: generation API connection and models
//   - Workflow: poll interval, lease, heartbeat, enabled lanes
//   - Narration: audio chunking and format
//   - Images: illustration normalization
//   - StatusAPI: read-only HTTP status endpoint
//   - Notifications: ntfy job outcome notifications
//   - Logging: log format, level, and per-pipeline overrides
type Config struct {
	Paths     Paths         `toml:"paths"`
	Store     Store         `toml:"store"`
	Provider  Provider      `toml:"provider"`
	Workflow  Workflow      `toml:"workflow"`
	Narration Narration     `toml:"narration"`
	Images    Images        `toml:"images"`
	StatusAPI StatusAPI     `toml:"status_api"`
	Notify    Notifications `toml:"notifications"`
	Logging   Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file next to the config (or in the working
// directory) is loaded first so environment fallbacks can see it.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	loadDotEnv(resolvedPath)

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv never overrides variables that are already set.
func loadDotEnv(configPath string) {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(configPath), ".env")}, candidates...)
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			_ = godotenv.Load(candidate)
		}
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("bookloom.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.ArtifactDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the single-instance lock file for the configured worker name.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "worker-"+c.Workflow.WorkerName+".lock")
}

// PIDPath returns the file holding the running worker's process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "worker-"+c.Workflow.WorkerName+".pid")
}

// DaemonOutputPath receives stdout and stderr of a background worker.
func (c *Config) DaemonOutputPath() string {
	return filepath.Join(c.Paths.LogDir, "worker-"+c.Workflow.WorkerName+".out")
}

// Lease returns the lock lease duration.
func (c *Config) Lease() time.Duration {
	return time.Duration(c.Workflow.LeaseSeconds) * time.Second
}

// PollInterval returns the idle wait between claim attempts.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollInterval) * time.Second
}

// HeartbeatInterval returns how often a running job's lease is renewed.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Workflow.HeartbeatInterval) * time.Second
}

// ErrorRetryInterval returns the back-off after a failed claim attempt.
func (c *Config) ErrorRetryInterval() time.Duration {
	return time.Duration(c.Workflow.ErrorRetryInterval) * time.Second
}

// RequireProvider reports an error when generation credentials are missing.
// Only the worker daemon needs them; admin commands do not.
func (c *Config) RequireProvider() error {
	if strings.TrimSpace(c.Provider.APIKey) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("provider.api_key is required. Set BOOKLOOM_API_KEY env var or edit %s (create with 'bookloom config init')", defaultPath)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
