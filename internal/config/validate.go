package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateProvider(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNarration(); err != nil {
		return err
	}
	if err := c.validateImages(); err != nil {
		return err
	}
	if err := c.validateStatusAPI(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case "sqlite":
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return errors.New("store.sqlite_path must be set when store.driver is sqlite")
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgres_dsn must be set when store.driver is postgres (or set DATABASE_URL)")
		}
	default:
		return fmt.Errorf("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	return nil
}

func (c *Config) validateProvider() error {
	if c.Provider.TimeoutSeconds <= 0 {
		return errors.New("provider.timeout_seconds must be positive")
	}
	if c.Provider.RetryAttempts < 1 {
		return errors.New("provider.retry_attempts must be at least 1")
	}
	if c.Provider.TextModel == "" {
		return errors.New("provider.text_model must be set")
	}
	if c.Workflow.AudioEnabled && c.Provider.SpeechModel == "" {
		return errors.New("provider.speech_model must be set when workflow.audio_enabled is true")
	}
	if c.Images.Enabled && c.Provider.ImageModel == "" {
		return errors.New("provider.image_model must be set when images.enabled is true")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.poll_interval":        c.Workflow.PollInterval,
		"workflow.lease_seconds":        c.Workflow.LeaseSeconds,
		"workflow.heartbeat_interval":   c.Workflow.HeartbeatInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
	}); err != nil {
		return err
	}
	if c.Workflow.LeaseSeconds <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.lease_seconds must be greater than workflow.heartbeat_interval")
	}
	if strings.ContainsAny(c.Workflow.WorkerName, `/\ `) {
		return fmt.Errorf("workflow.worker_name %q must not contain spaces or path separators", c.Workflow.WorkerName)
	}
	return nil
}

func (c *Config) validateNarration() error {
	if c.Narration.MaxChunkChars <= 0 {
		return errors.New("narration.max_chunk_chars must be positive")
	}
	if c.Narration.MaxChunkChars > maxProviderSpeechChunkSize {
		return fmt.Errorf("narration.max_chunk_chars must not exceed %d", maxProviderSpeechChunkSize)
	}
	switch c.Narration.Format {
	case "mp3", "wav", "opus", "aac", "flac":
	default:
		return fmt.Errorf("narration.format %q is not supported", c.Narration.Format)
	}
	return nil
}

func (c *Config) validateImages() error {
	if !c.Images.Enabled {
		return nil
	}
	if c.Images.MaxDimension <= 0 {
		return errors.New("images.max_dimension must be positive")
	}
	switch c.Images.Format {
	case "png", "jpg":
	default:
		return fmt.Errorf("images.format must be png or jpg, got %q", c.Images.Format)
	}
	if c.Images.JPEGQuality < 1 || c.Images.JPEGQuality > 100 {
		return errors.New("images.jpeg_quality must be between 1 and 100")
	}
	return nil
}

func (c *Config) validateStatusAPI() error {
	if !c.StatusAPI.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.StatusAPI.Bind); err != nil {
		return fmt.Errorf("status_api.bind: %w", err)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notify.NtfyTopic == "" {
		return nil
	}
	u, err := url.Parse(c.Notify.NtfyTopic)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL, got %q", c.Notify.NtfyTopic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if !validLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	for pipeline, level := range c.Logging.PipelineOverrides {
		if !validLevel(level) {
			return fmt.Errorf("logging.pipeline_overrides.%s: level %q is not recognized", pipeline, level)
		}
	}
	return nil
}

func validLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
