package config

const (
	defaultConfigPath          = "~/.config/bookloom/config.toml"
	defaultDataDir             = "~/.local/share/bookloom"
	defaultArtifactDir         = "~/.local/share/bookloom/artifacts"
	defaultLogDir              = "~/.local/share/bookloom/logs"
	defaultStoreDriver         = "sqlite"
	defaultSQLiteFile          = "bookloom.db"
	defaultProviderBaseURL     = "https://api.openai.com/v1"
	defaultTextModel           = "gpt-4o-mini"
	defaultImageModel          = "gpt-image-1"
	defaultSpeechModel         = "gpt-4o-mini-tts"
	defaultVoice               = "alloy"
	defaultImageSize           = "1024x1024"
	defaultProviderTimeout     = 180
	defaultRetryAttempts       = 1
	defaultWorkerName          = "default"
	defaultPollInterval        = 60
	defaultLeaseSeconds        = 300
	defaultHeartbeatInterval   = 60
	defaultErrorRetryInterval  = 10
	defaultMaxChunkChars       = 4000
	defaultNarrationFormat     = "mp3"
	defaultImageMaxDimension   = 1600
	defaultImageFormat         = "png"
	defaultJPEGQuality         = 90
	defaultStatusAPIBind       = "127.0.0.1:7590"
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	maxProviderSpeechChunkSize = 4096
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			ArtifactDir: defaultArtifactDir,
			LogDir:      defaultLogDir,
		},
		Store: Store{
			Driver: defaultStoreDriver,
		},
		Provider: Provider{
			BaseURL:        defaultProviderBaseURL,
			TextModel:      defaultTextModel,
			ImageModel:     defaultImageModel,
			SpeechModel:    defaultSpeechModel,
			Voice:          defaultVoice,
			ImageSize:      defaultImageSize,
			TimeoutSeconds: defaultProviderTimeout,
			RetryAttempts:  defaultRetryAttempts,
		},
		Workflow: Workflow{
			WorkerName:         defaultWorkerName,
			PollInterval:       defaultPollInterval,
			LeaseSeconds:       defaultLeaseSeconds,
			HeartbeatInterval:  defaultHeartbeatInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			TextEnabled:        true,
			AudioEnabled:       true,
			AutoNarrate:        false,
		},
		Narration: Narration{
			MaxChunkChars: defaultMaxChunkChars,
			Format:        defaultNarrationFormat,
		},
		Images: Images{
			Enabled:      true,
			MaxDimension: defaultImageMaxDimension,
			Format:       defaultImageFormat,
			JPEGQuality:  defaultJPEGQuality,
		},
		StatusAPI: StatusAPI{
			Enabled: true,
			Bind:    defaultStatusAPIBind,
		},
		Notify: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			NotifyComplete: true,
			NotifyFailure:  true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
