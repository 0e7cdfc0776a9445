package narration

import (
	"context"
	"fmt"
	"os"

	"bookloom/internal/artifacts"
	"bookloom/internal/library"
	"bookloom/internal/logging"
	"bookloom/internal/pipeline"
	"bookloom/internal/queue"
	"bookloom/internal/services"
	"bookloom/internal/services/genai"
	"bookloom/internal/textutil"
)

// Execute narrates one unit chunk by chunk, then assembles the final file.
// Finished part files are reused unless the run is forced.
func (d *Definition) Execute(ctx context.Context, run *pipeline.Run, unit pipeline.Unit, step queue.Step) error {
	if step != queue.StepAudio {
		return services.Wrap(services.ErrValidation, "narration", "execute", "unknown step "+string(step), nil)
	}
	bookID := run.SubjectID()
	plan, err := d.plan(ctx, bookID)
	if err != nil {
		return err
	}
	planned, ok := plan.Unit(unit.Index)
	if !ok {
		return services.Wrap(services.ErrNotFound, "narration", "execute", fmt.Sprintf("unit %d is not in the plan", unit.Index), nil)
	}
	script, err := d.script(ctx, bookID, planned)
	if err != nil {
		return err
	}
	chunks := textutil.SplitChunks(script, d.settings.MaxChunkChars)
	if len(chunks) == 0 {
		return services.Wrap(services.ErrValidation, "narration", "execute", fmt.Sprintf("unit %d has no text", unit.Index), nil)
	}

	done, err := d.finishedParts(run, bookID, unit.Index)
	if err != nil {
		return err
	}

	parts := make([]string, 0, len(chunks))
	reused := 0
	for i, chunk := range chunks {
		path := d.layout.AudioPartPath(bookID, unit.Index, i+1, plan.Format)
		parts = append(parts, path)
		if _, ok := done[path]; ok {
			reused++
			continue
		}
		if i > 0 {
			if err := run.Checkpoint(ctx); err != nil {
				return err
			}
		}
		if err := d.narrateChunk(ctx, run, plan, chunk, path); err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}

	final := d.layout.AudioUnitPath(bookID, unit.Index, plan.Format)
	tmp, err := artifacts.ConcatAudioParts(final, parts)
	if err != nil {
		return err
	}
	segment := library.AudioSegment{
		BookID:     bookID,
		Index:      unit.Index,
		Label:      planned.Label,
		Path:       final,
		Characters: len([]rune(script)),
		Chunks:     len(chunks),
	}
	if err := d.store.SaveAudioSegment(ctx, segment); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save audio segment: %w", err)
	}
	if err := artifacts.PromoteAudio(tmp, final); err != nil {
		return err
	}
	if err := artifacts.RemoveAudioParts(d.layout.AudioPartsDir(bookID, unit.Index)); err != nil {
		logging.WarnWithContext(run.Logger, "audio part cleanup failed", "audio_parts_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale part files remain on disk"),
		)
	}
	run.Logger.Info("narration unit stored",
		logging.String(logging.FieldEventType, "audio_unit_stored"),
		logging.Int(logging.FieldUnit, unit.Index),
		logging.Int("chunks", len(chunks)),
		logging.Int("reused_chunks", reused),
		logging.String("path", final),
	)
	return nil
}

// finishedParts returns the part files already on disk for a unit. Forced
// runs reuse nothing.
func (d *Definition) finishedParts(run *pipeline.Run, bookID string, index int) (map[string]struct{}, error) {
	if run.Force() {
		return nil, nil
	}
	existing, err := artifacts.ExistingParts(d.layout.AudioPartsDir(bookID, index))
	if err != nil {
		return nil, services.Wrap(services.ErrContent, "narration", "execute", "list audio parts", err)
	}
	done := make(map[string]struct{}, len(existing))
	for _, path := range existing {
		done[path] = struct{}{}
	}
	if len(done) > 0 {
		run.Logger.Debug("resuming unit from finished parts",
			logging.Int(logging.FieldUnit, index),
			logging.Int("parts", len(done)),
		)
	}
	return done, nil
}

func (d *Definition) narrateChunk(ctx context.Context, run *pipeline.Run, plan *library.AudioPlan, chunk, path string) error {
	res, err := run.Generate(ctx, d.gen, genai.Request{
		Modality: genai.ModalitySpeech,
		Purpose:  "narration",
		Prompt:   chunk,
		Voice:    plan.Voice,
		Format:   plan.Format,
	})
	if err != nil {
		return err
	}
	if len(res.Data) == 0 {
		return services.Wrap(services.ErrContent, "narration", "speech", "empty audio payload", nil)
	}
	return artifacts.WriteAudioPart(path, res.Data)
}
