package manager

import (
	"github.com/specialistvlad/gridnav/internal/dag"
	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/pipeline"
)

// Verify checks that pipelines, run in the given order, form a valid plan:
// command names and declared outputs are unique across the run, every
// requirement is part of the run, the requirement graph is acyclic and the
// run order respects it.
func Verify(pipelines []*pipeline.Pipeline) error {
	g := dag.New()
	var order []string
	producers := map[string]string{}
	for _, p := range pipelines {
		for _, cmd := range p.Commands() {
			if g.Has(cmd.Name()) {
				return faults.Configuration("command %q appears in more than one pipeline", cmd.Name())
			}
			for _, key := range cmd.Outputs() {
				if other, dup := producers[key]; dup {
					return faults.Configuration("commands %q and %q both declare output %q", other, cmd.Name(), key)
				}
				producers[key] = cmd.Name()
			}
			g.AddNode(cmd.Name())
			order = append(order, cmd.Name())
		}
	}

	for _, p := range pipelines {
		for _, cmd := range p.Commands() {
			for _, req := range cmd.Requires() {
				if !g.Has(req.Name()) {
					return faults.Internal("command %s requires %s, which no pipeline runs", cmd.Name(), req.Name())
				}
				if err := g.AddEdge(req.Name(), cmd.Name()); err != nil {
					return faults.Internal("invalid requirement of %s: %v", cmd.Name(), err)
				}
			}
		}
	}

	if err := g.DetectCycles(); err != nil {
		return faults.Internal("command graph is not acyclic: %v", err)
	}
	if err := g.VerifyOrder(order); err != nil {
		return faults.Internal("pipelines are not in dependency order: %v", err)
	}
	return nil
}
