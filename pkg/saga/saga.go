// Package saga runs a sequence of steps whose side effects must be undone
// together. Checkout uses it to roll an order back when no payment reference
// can be obtained.
package saga

import (
	"context"
	"errors"
	"fmt"
)

// Step pairs an action with the compensation that undoes it. Compensate may
// be nil for steps with no lasting side effects.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Saga is an ordered list of steps executed front to back and compensated
// back to front.
type Saga struct {
	name  string
	steps []Step
}

func New(name string) *Saga {
	return &Saga{name: name}
}

// AddStep appends a step and returns the saga for chaining.
func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Len returns the number of registered steps.
func (s *Saga) Len() int {
	return len(s.steps)
}

// Execute runs the steps in order. When a step fails, every step that had
// completed is compensated in reverse order, and the index of the failed
// step is returned with the error. On success the index is -1.
func (s *Saga) Execute(ctx context.Context) (failedStep int, err error) {
	for i, step := range s.steps {
		if err := step.Execute(ctx); err != nil {
			if compErr := s.unwind(ctx, i); compErr != nil {
				return i, fmt.Errorf("saga %s: step %q failed (%w), compensation also failed: %v", s.name, step.Name, err, compErr)
			}
			return i, fmt.Errorf("saga %s: step %q failed: %w", s.name, step.Name, err)
		}
	}
	return -1, nil
}

// unwind compensates steps [0, failed) in reverse, collecting every error so
// a partial rollback is visible in full.
func (s *Saga) unwind(ctx context.Context, failed int) error {
	var errs []error
	for i := failed - 1; i >= 0; i-- {
		step := s.steps[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("compensate step %q: %w", step.Name, err))
		}
	}
	return errors.Join(errs...)
}
