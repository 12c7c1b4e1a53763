package site

import (
	"context"

	"github.com/edvin/lampctl/internal/driver"
	"github.com/edvin/lampctl/internal/model"
)

// stepFunc performs one plan step.
type stepFunc func(ctx context.Context, spec driver.Spec) (model.OperationResult, error)

// step binds a plan entry to the driver call that carries it out and the
// operator hint that reverses it.
type step struct {
	name        string
	description string
	run         stepFunc
	undo        string
}

// plan renders the step table as an InstallPlan. The same table drives both
// execution and dry-run, so the plan is identical in both modes.
func (o *Orchestrator) plan(command, target string, steps []step) *model.InstallPlan {
	p := &model.InstallPlan{
		Command: command,
		Target:  target,
		DryRun:  o.opts.DryRun,
		Steps:   make([]model.PlanStep, 0, len(steps)),
	}
	for _, s := range steps {
		p.Steps = append(p.Steps, model.PlanStep{
			Name:        s.name,
			Description: s.description,
			DryRun:      o.opts.DryRun,
		})
	}
	return p
}

// execute runs steps in order and appends their results to report. The
// first failure halts the run; the remaining steps are recorded as not
// attempted and the undo hints of the applied steps are attached in
// reverse order. Applied steps are never rolled back.
func (o *Orchestrator) execute(ctx context.Context, report *model.ExecutionReport, steps []step, spec driver.Spec) error {
	spec.DryRun = o.opts.DryRun

	for i, s := range steps {
		log := o.logger.With().Str("step", s.name).Logger()
		log.Debug().Str("description", s.description).Msg("running step")

		start := o.now()
		res, err := s.run(ctx, spec)
		res.Step = s.name
		if err != nil && res.Status != model.StatusFailed {
			out := res.Output
			res = model.Failed(s.name, err)
			res.Output = out
		}
		o.metrics.ObserveStep(report.Command, s.name, res.Status, o.now().Sub(start))
		report.Results = append(report.Results, res)

		if err != nil {
			log.Error().Err(err).Msg("step failed")
			for _, rest := range steps[i+1:] {
				report.NotAttempted = append(report.NotAttempted, rest.name)
			}
			report.UndoHints = undoHints(steps[:i], report.Results)
			return err
		}
		log.Info().Str("status", res.Status).Str("detail", res.Detail).Msg("step finished")
	}
	return nil
}

// undoHints returns the undo text of every applied step, newest first.
func undoHints(done []step, results []model.OperationResult) []string {
	applied := map[string]bool{}
	for _, r := range results {
		if r.Status == model.StatusApplied {
			applied[r.Step] = true
		}
	}
	var hints []string
	for i := len(done) - 1; i >= 0; i-- {
		if applied[done[i].name] && done[i].undo != "" {
			hints = append(hints, done[i].undo)
		}
	}
	return hints
}

// reloadStep builds the web server reload step from the vhost driver.
func (o *Orchestrator) reloadStep() (step, error) {
	vh, err := o.driver(driver.KindVhost)
	if err != nil {
		return step{}, err
	}
	r, ok := vh.(driver.Reloader)
	if !ok {
		return step{}, model.NewInvalid("%s driver cannot reload the web server", vh.Kind())
	}
	return step{
		name:        "reload-webserver",
		description: "reload the web server configuration",
		run:         r.Reload,
	}, nil
}
