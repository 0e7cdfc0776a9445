package daemonrun

import (
	"context"
	"log/slog"

	"bookloom/internal/admin"
	"bookloom/internal/artifacts"
	"bookloom/internal/bookgen"
	"bookloom/internal/config"
	"bookloom/internal/logging"
	"bookloom/internal/narration"
	"bookloom/internal/notifications"
	"bookloom/internal/services/genai"
	"bookloom/internal/workflow"
)

// NewGenerator builds the provider client from the provider section.
func NewGenerator(cfg *config.Config) *genai.Client {
	return genai.NewClient(genai.Config{
		APIKey:         cfg.Provider.APIKey,
		BaseURL:        cfg.Provider.BaseURL,
		TextModel:      cfg.Provider.TextModel,
		ImageModel:     cfg.Provider.ImageModel,
		SpeechModel:    cfg.Provider.SpeechModel,
		Voice:          cfg.Provider.Voice,
		ImageSize:      cfg.Provider.ImageSize,
		TimeoutSeconds: cfg.Provider.TimeoutSeconds,
	}, genai.WithRetryMaxAttempts(cfg.Provider.RetryAttempts))
}

// NewAdmin builds the administrative service over stores.
func NewAdmin(cfg *config.Config, stores *Stores, logger *slog.Logger) *admin.Service {
	return admin.New(stores.Jobs, stores.Library, artifacts.NewLayout(cfg.Paths.ArtifactDir), cfg.Lease(),
		admin.WithLogger(logger))
}

// NewManager builds the workflow manager with a lane per enabled pipeline.
// With auto_narrate set, a completed text job enqueues narration.
func NewManager(cfg *config.Config, stores *Stores, gen genai.Generator, logger *slog.Logger, opts ...workflow.ManagerOption) *workflow.Manager {
	layout := artifacts.NewLayout(cfg.Paths.ArtifactDir)

	bookOpts := []bookgen.Option{}
	if cfg.Images.Enabled {
		bookOpts = append(bookOpts, bookgen.WithImages(artifacts.ImageOptions{
			MaxDimension: cfg.Images.MaxDimension,
			Format:       cfg.Images.Format,
			JPEGQuality:  cfg.Images.JPEGQuality,
		}))
	}
	if cfg.Workflow.AutoNarrate && cfg.Workflow.AudioEnabled {
		adm := NewAdmin(cfg, stores, logger)
		bookOpts = append(bookOpts, bookgen.WithCompletionHook(func(ctx context.Context, bookID string) error {
			_, _, err := adm.EnqueueNarration(ctx, bookID)
			return err
		}))
	}

	notifier := notifications.NewService(cfg, notifications.WithTitleLookup(func(ctx context.Context, bookID string) string {
		book, err := stores.Library.GetBook(ctx, bookID)
		if err != nil {
			return ""
		}
		return book.Title
	}))
	opts = append([]workflow.ManagerOption{workflow.WithNotifier(notifier)}, opts...)

	mgr := workflow.NewManager(cfg, stores.Jobs, logger, opts...)
	mgr.ConfigureLanes(
		bookgen.New(stores.Library, gen, layout, bookOpts...),
		narration.New(stores.Library, gen, layout, narration.Settings{
			Voice:         cfg.Provider.Voice,
			Format:        cfg.Narration.Format,
			MaxChunkChars: cfg.Narration.MaxChunkChars,
		}),
	)
	logger.Debug("pipeline lanes configured",
		logging.String(logging.FieldEventType, "lanes_configured"),
		logging.Int("lanes", len(mgr.Pipelines())),
		logging.Bool("images", cfg.Images.Enabled),
		logging.Bool("auto_narrate", cfg.Workflow.AutoNarrate),
	)
	return mgr
}
