package workflow

import (
	"bookloom/internal/logging"
	"bookloom/internal/pipeline"
	"bookloom/internal/queue"
)

// ConfigureLanes registers one lane per definition whose pipeline is enabled
// in the workflow config. Later definitions for the same pipeline replace
// earlier ones.
func (m *Manager) ConfigureLanes(defs ...pipeline.Definition) {
	lanes := make(map[queue.Pipeline]*lane)
	order := make([]queue.Pipeline, 0, len(defs))
	for _, def := range defs {
		if def == nil {
			continue
		}
		p := def.Pipeline()
		if !m.pipelineEnabled(p) {
			m.logger.Info("pipeline lane disabled by config",
				logging.String(logging.FieldPipeline, string(p)),
			)
			continue
		}
		if _, ok := lanes[p]; !ok {
			order = append(order, p)
		}
		lanes[p] = &lane{pipeline: p, def: def}
	}

	m.mu.Lock()
	m.lanes = lanes
	m.laneOrder = order
	m.mu.Unlock()
}

func (m *Manager) pipelineEnabled(p queue.Pipeline) bool {
	switch p {
	case queue.PipelineText:
		return m.cfg.Workflow.TextEnabled
	case queue.PipelineAudio:
		return m.cfg.Workflow.AudioEnabled
	}
	return false
}

// Pipelines lists the configured lanes in start order.
func (m *Manager) Pipelines() []queue.Pipeline {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]queue.Pipeline(nil), m.laneOrder...)
}
