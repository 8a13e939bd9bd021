package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/extdeck/extdeck/internal/host"
)

// StepResult records the outcome of a single step.
type StepResult struct {
	Name     string
	Passed   bool
	Duration time.Duration
	Error    string // empty when passed
}

// Result records the outcome of an entire scenario.
type Result struct {
	ScenarioName string
	Passed       bool
	Steps        []StepResult
	Duration     time.Duration
}

// Runner executes scenarios through a launcher.
type Runner struct {
	launcher *host.Launcher
	logger   *slog.Logger
	runs     int
}

// NewRunner creates a runner opening sessions on l.
func NewRunner(l *host.Launcher, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{launcher: l, logger: logger}
}

// Run executes s. An error means the session could not be opened; step
// failures are reported in the result.
func (r *Runner) Run(ctx context.Context, s *Scenario) (*Result, error) {
	start := time.Now()
	result := &Result{ScenarioName: s.Name, Passed: true}

	vars := make(map[string]string, len(s.Variables))
	for k, v := range s.Variables {
		vars[k] = v
	}
	args, err := expandMap(s.Args, vars)
	if err != nil {
		return nil, fmt.Errorf("args: %w", err)
	}

	r.runs++
	sess, err := r.launcher.Open(ctx, fmt.Sprintf("scn_%06d", r.runs), s.Extension, s.Command, args)
	if err != nil {
		return nil, fmt.Errorf("opening %s %s: %w", s.Extension, s.Command, err)
	}
	defer sess.Close()
	sess.Wait()

	for i := range s.Steps {
		sr := r.runStep(ctx, sess, &s.Steps[i], vars)
		result.Steps = append(result.Steps, sr)
		if !sr.Passed {
			result.Passed = false
		}
		r.logger.Debug("scenario step", "scenario", s.Name, "step", sr.Name, "passed", sr.Passed)
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (r *Runner) runStep(ctx context.Context, sess *host.Session, step *Step, vars map[string]string) StepResult {
	start := time.Now()
	sr := StepResult{Name: step.Name}
	fail := func(format string, args ...any) StepResult {
		sr.Error = fmt.Sprintf(format, args...)
		sr.Duration = time.Since(start)
		return sr
	}

	before := len(sess.Snapshot().Toasts)
	applyErr, err := apply(ctx, sess, step, vars)
	if err != nil {
		return fail("%v", err)
	}
	sess.Wait()
	snap := sess.Snapshot()

	var want string
	if step.Assert != nil {
		want = step.Assert.Error
	}
	switch {
	case applyErr != nil && want == "":
		return fail("unexpected error: %v", applyErr)
	case applyErr == nil && want != "":
		return fail("expected error containing %q, got none", want)
	case applyErr != nil && !strings.Contains(applyErr.Error(), want):
		return fail("expected error containing %q, got %q", want, applyErr.Error())
	}
	if applyErr != nil {
		snap.Error = applyErr.Error()
	}

	doc, err := decode(snap)
	if err != nil {
		return fail("encoding snapshot: %v", err)
	}

	for name, path := range step.Capture {
		val, found, err := lookup(doc, path)
		if err != nil {
			return fail("capture %q: %v", name, err)
		}
		if !found {
			return fail("capture %q: %s: no match found", name, path)
		}
		vars[name] = fmt.Sprint(val)
	}

	if step.Assert != nil {
		before = min(before, len(snap.Toasts))
		titles := make([]string, 0, len(snap.Toasts)-before)
		for _, t := range snap.Toasts[before:] {
			titles = append(titles, t.Title)
		}
		for _, want := range step.Assert.Toasts {
			if !containsTitle(titles, want) {
				return fail("expected toast %q, got %q", want, titles)
			}
		}

		expected := make(map[string]any, len(step.Assert.Snapshot))
		for path, v := range step.Assert.Snapshot {
			if s, ok := v.(string); ok {
				expanded, err := ExpandTemplates(s, vars)
				if err != nil {
					return fail("assertion %s: %v", path, err)
				}
				v = expanded
			}
			expected[path] = v
		}
		if err := checkSnapshot(doc, expected); err != nil {
			return fail("%v", err)
		}
	}

	sr.Passed = true
	sr.Duration = time.Since(start)
	return sr
}

// apply runs the step's inputs. applyErr is the session's answer; err means
// the step itself is malformed.
func apply(ctx context.Context, sess *host.Session, step *Step, vars map[string]string) (applyErr, err error) {
	if step.Search != nil {
		text, err := ExpandTemplates(*step.Search, vars)
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		if applyErr = sess.Search(text); applyErr != nil {
			return applyErr, nil
		}
	}
	if step.Filter != nil {
		value, err := ExpandTemplates(*step.Filter, vars)
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		if applyErr = sess.Filter(value); applyErr != nil {
			return applyErr, nil
		}
	}
	if step.Action == "" {
		if len(step.Input) > 0 {
			return nil, errors.New("input without an action")
		}
		return nil, nil
	}
	action, err := ExpandTemplates(step.Action, vars)
	if err != nil {
		return nil, fmt.Errorf("action: %w", err)
	}
	input, err := expandMap(step.Input, vars)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	sess.Wait()
	return sess.Perform(ctx, action, input), nil
}

func containsTitle(titles []string, want string) bool {
	for _, t := range titles {
		if strings.Contains(t, want) {
			return true
		}
	}
	return false
}
