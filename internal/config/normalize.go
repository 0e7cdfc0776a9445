package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeProvider()
	c.normalizeWorkflow()
	c.normalizeNarration()
	c.normalizeImages()
	c.normalizeStatusAPI()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ArtifactDir) == "" {
		c.Paths.ArtifactDir = filepath.Join(c.Paths.DataDir, "artifacts")
	}
	if c.Paths.ArtifactDir, err = expandPath(c.Paths.ArtifactDir); err != nil {
		return fmt.Errorf("paths.artifact_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = defaultStoreDriver
	}
	if c.Store.Driver == "postgresql" {
		c.Store.Driver = "postgres"
	}
	c.Store.PostgresDSN = strings.TrimSpace(c.Store.PostgresDSN)
	if c.Store.PostgresDSN == "" {
		if value, ok := os.LookupEnv("BOOKLOOM_POSTGRES_DSN"); ok {
			c.Store.PostgresDSN = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("DATABASE_URL"); ok {
			c.Store.PostgresDSN = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Store.SQLitePath) == "" {
		c.Store.SQLitePath = filepath.Join(c.Paths.DataDir, defaultSQLiteFile)
	}
	var err error
	if c.Store.SQLitePath, err = expandPath(c.Store.SQLitePath); err != nil {
		return fmt.Errorf("store.sqlite_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeProvider() {
	c.Provider.APIKey = strings.TrimSpace(c.Provider.APIKey)
	if c.Provider.APIKey == "" {
		if value, ok := os.LookupEnv("BOOKLOOM_API_KEY"); ok {
			c.Provider.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.Provider.APIKey = strings.TrimSpace(value)
		}
	}
	c.Provider.BaseURL = strings.TrimRight(strings.TrimSpace(c.Provider.BaseURL), "/")
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = defaultProviderBaseURL
	}
	c.Provider.TextModel = strings.TrimSpace(c.Provider.TextModel)
	c.Provider.ImageModel = strings.TrimSpace(c.Provider.ImageModel)
	c.Provider.SpeechModel = strings.TrimSpace(c.Provider.SpeechModel)
	c.Provider.Voice = strings.TrimSpace(c.Provider.Voice)
	if c.Provider.Voice == "" {
		c.Provider.Voice = defaultVoice
	}
	c.Provider.ImageSize = strings.TrimSpace(c.Provider.ImageSize)
	if c.Provider.ImageSize == "" {
		c.Provider.ImageSize = defaultImageSize
	}
	if c.Provider.RetryAttempts == 0 {
		c.Provider.RetryAttempts = defaultRetryAttempts
	}
}

func (c *Config) normalizeWorkflow() {
	c.Workflow.WorkerName = strings.TrimSpace(c.Workflow.WorkerName)
	if c.Workflow.WorkerName == "" {
		c.Workflow.WorkerName = defaultWorkerName
	}
}

func (c *Config) normalizeNarration() {
	c.Narration.Format = strings.ToLower(strings.TrimSpace(c.Narration.Format))
	if c.Narration.Format == "" {
		c.Narration.Format = defaultNarrationFormat
	}
}

func (c *Config) normalizeImages() {
	c.Images.Format = strings.ToLower(strings.TrimSpace(c.Images.Format))
	switch c.Images.Format {
	case "":
		c.Images.Format = defaultImageFormat
	case "jpeg":
		c.Images.Format = "jpg"
	}
	if c.Images.JPEGQuality == 0 {
		c.Images.JPEGQuality = defaultJPEGQuality
	}
}

func (c *Config) normalizeStatusAPI() {
	c.StatusAPI.Bind = strings.TrimSpace(c.StatusAPI.Bind)
	c.StatusAPI.Token = strings.TrimSpace(c.StatusAPI.Token)
	if c.StatusAPI.Token == "" {
		if value, ok := os.LookupEnv("BOOKLOOM_STATUS_TOKEN"); ok {
			c.StatusAPI.Token = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeNotifications() {
	c.Notify.NtfyTopic = strings.TrimSpace(c.Notify.NtfyTopic)
	if c.Notify.NtfyTopic == "" {
		c.Notify.NtfyTopic = strings.TrimSpace(os.Getenv("BOOKLOOM_NTFY_TOPIC"))
	}
	if c.Notify.RequestTimeout <= 0 {
		c.Notify.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if len(c.Logging.PipelineOverrides) > 0 {
		normalized := make(map[string]string, len(c.Logging.PipelineOverrides))
		for key, value := range c.Logging.PipelineOverrides {
			k := strings.ToLower(strings.TrimSpace(key))
			v := strings.ToLower(strings.TrimSpace(value))
			if k == "" || v == "" {
				continue
			}
			normalized[k] = v
		}
		c.Logging.PipelineOverrides = normalized
	}
}
