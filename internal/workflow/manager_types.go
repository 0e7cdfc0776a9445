package workflow

import (
	"log/slog"
	"time"

	"bookloom/internal/pipeline"
	"bookloom/internal/queue"
)

// Clock is the poller's time source.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type lane struct {
	pipeline queue.Pipeline
	def      pipeline.Definition
	logger   *slog.Logger
}
