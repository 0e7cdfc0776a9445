package pipeline

import (
	"context"
	"fmt"

	"bookloom/internal/logging"
)

// Extension is a best-effort side generation run after the macro stage.
type Extension struct {
	Name string
	Run  func(ctx context.Context, run *Run) error
}

// runExtensions runs each extension in order. Errors and panics are logged
// and never returned; only shutdown stops the list early.
func runExtensions(ctx context.Context, run *Run, extensions []Extension) {
	for _, ext := range extensions {
		if ctx.Err() != nil {
			return
		}
		if err := runExtension(ctx, run, ext); err != nil {
			logging.WarnWithContext(run.Logger, "optional generation failed", "extension_failed",
				logging.String("extension", ext.Name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "requeue with force to retry optional content"),
			)
			continue
		}
		run.Logger.Debug("optional generation finished", logging.String("extension", ext.Name))
	}
}

func runExtension(ctx context.Context, run *Run, ext Extension) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extension %s panicked: %v", ext.Name, r)
		}
	}()
	if ext.Run == nil {
		return nil
	}
	return ext.Run(ctx, run)
}
