package pipeline

import (
	"context"

	"github.com/specialistvlad/gridnav/internal/command"
)

// Observer is notified around every command of a run. Observers must not
// block; they run on the orchestrator goroutine.
type Observer interface {
	CommandStarted(ctx context.Context, pipeline, cmd string)
	CommandFinished(ctx context.Context, pipeline string, result command.Result)
}

func (p *Pipeline) notifyStarted(ctx context.Context, cmd string) {
	for _, o := range p.observers {
		o.CommandStarted(ctx, p.name, cmd)
	}
}

func (p *Pipeline) notifyFinished(ctx context.Context, result command.Result) {
	for _, o := range p.observers {
		o.CommandFinished(ctx, p.name, result)
	}
}
