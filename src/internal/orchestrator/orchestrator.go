// Package orchestrator executes a dependency graph's topological
// stages: stages run serially, and nodes within a stage run
// concurrently on a bounded conc/pool worker pool that cancels the
// stage on the first error.
package orchestrator

import (
	"context"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"github.com/zoi-pm/zoi/src/internal/errs"
	"github.com/zoi-pm/zoi/src/internal/graph"
	"github.com/zoi-pm/zoi/src/internal/telemetry"
)

// DefaultWorkers is the default concurrency ceiling per stage.
const DefaultWorkers = 3

// NodeFunc is the unit of work the orchestrator runs per node; the
// caller supplies the plan/download/build/install/journal sequence
// for pkgID.
type NodeFunc func(ctx context.Context, pkgID string) error

// Orchestrator runs a graph's topological stages against a NodeFunc.
type Orchestrator struct {
	Workers int
}

// Run executes g's stages serially; within a stage, nodes run
// concurrently (bounded by Workers) via a conc/pool.ContextPool, which
// cancels the stage's context on the first error so sibling nodes
// still in flight stop promptly.
func (o *Orchestrator) Run(ctx context.Context, g *graph.Graph, fn NodeFunc) error {
	stages, cycle, err := g.Stages()
	if err != nil {
		return err
	}
	if len(cycle) > 0 {
		sorted := append([]string{}, cycle...)
		sort.Strings(sorted)
		return errs.Newf(errs.Cycle, "", "dependency cycle among: %v", sorted)
	}

	workers := o.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	for stageIdx, stage := range stages {
		done := telemetry.StartSpan("orchestrator.stage", "index", stageIdx, "size", len(stage))

		p := pool.New().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(workers)
		for _, pkgID := range stage {
			id := pkgID
			p.Go(func(stageCtx context.Context) error {
				return fn(stageCtx, id)
			})
		}
		if runErr := p.Wait(); runErr != nil {
			done("status", "error", "error", runErr.Error())
			return runErr
		}
		done("status", "ok")
	}
	return nil
}
