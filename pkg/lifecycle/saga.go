package lifecycle

import (
	"context"
)

// sagaStep is one unit of a lifecycle operation. Steps that mutate the
// external platform carry a compensation that undoes the mutation when a
// later step fails.
type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// runSaga executes steps in order. On failure, compensations of already
// completed steps run in reverse. Compensation failures are logged, not
// returned: the original error is what the caller acts on.
func (m *Manager) runSaga(ctx context.Context, op string, steps []sagaStep) error {
	completed := make([]sagaStep, 0, len(steps))

	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			m.logger.Warn().
				Err(err).
				Str("operation", op).
				Str("step", step.name).
				Msg("Lifecycle step failed, compensating")

			for i := len(completed) - 1; i >= 0; i-- {
				prev := completed[i]
				if prev.compensate == nil {
					continue
				}
				if cerr := prev.compensate(ctx); cerr != nil {
					m.logger.Error().
						Err(cerr).
						Str("operation", op).
						Str("step", prev.name).
						Msg("Compensation failed, system may need manual repair")
				}
			}
			return err
		}
		completed = append(completed, step)
	}

	return nil
}
