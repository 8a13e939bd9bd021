// Package procrun runs a local shell command, collecting combined output
// as it arrives, and allows retrying it once it has finished.
package procrun

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// State is a run's lifecycle state.
type State string

const (
	Idle      State = "idle"
	Running   State = "running"
	Succeeded State = "succeeded"
	Failed    State = "failed"
)

// Terminal reports whether s allows Retry.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}

// ErrBusy is returned when starting a command that is already running.
var ErrBusy = errors.New("command is already running")

// Snapshot is a point-in-time view of a Runner.
type Snapshot struct {
	Command    string    `json:"command"`
	State      State     `json:"state"`
	Output     string    `json:"output"`
	ExitCode   int       `json:"exit_code"`
	Retries    int       `json:"retries"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Runner executes one command line through the shell. There is no timeout
// and no way to stop a running command.
type Runner struct {
	command  string
	shell    string
	dir      string
	env      []string
	onChange func()
	logger   *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	state    State
	output   bytes.Buffer
	exitCode int
	retries  int
	run      int
	started  time.Time
	finished time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithShell replaces /bin/sh.
func WithShell(path string) Option {
	return func(r *Runner) { r.shell = path }
}

// WithDir sets the working directory.
func WithDir(dir string) Option {
	return func(r *Runner) { r.dir = dir }
}

// WithEnv appends KEY=value pairs to the inherited environment.
func WithEnv(kv ...string) Option {
	return func(r *Runner) { r.env = append(r.env, kv...) }
}

// WithOnChange is called after every output chunk and state change.
func WithOnChange(fn func()) Option {
	return func(r *Runner) { r.onChange = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New returns an idle Runner for command.
func New(command string, opts ...Option) *Runner {
	r := &Runner{
		command: command,
		shell:   "/bin/sh",
		state:   Idle,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Start launches the command. A launch failure is reported as a failed
// run with the error in the output, not as an error.
func (r *Runner) Start() error {
	r.mu.Lock()
	if r.state == Running {
		r.mu.Unlock()
		return ErrBusy
	}
	r.startLocked()
	r.mu.Unlock()
	r.changed()
	return nil
}

// Retry resets the output, increments the retry counter and starts again.
// It is only valid once the previous run has finished.
func (r *Runner) Retry() error {
	r.mu.Lock()
	if !r.state.Terminal() {
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("cannot retry a %s command", state)
	}
	r.retries++
	r.startLocked()
	r.mu.Unlock()
	r.changed()
	return nil
}

func (r *Runner) startLocked() {
	r.run++
	run := r.run
	r.output.Reset()
	r.exitCode = 0
	r.state = Running
	r.started = time.Now()
	r.finished = time.Time{}

	cmd := exec.Command(r.shell, "-c", r.command)
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(), r.env...)
	w := &chunkWriter{r: r, run: run}
	cmd.Stdout = w
	cmd.Stderr = w
	setProcessGroup(cmd)

	r.logger.Info("starting command", "command", r.command, "retry", r.retries)
	if err := cmd.Start(); err != nil {
		fmt.Fprintf(&r.output, "%v\n", err)
		r.finishLocked(-1)
		return
	}
	go r.wait(cmd, run)
}

func (r *Runner) wait(cmd *exec.Cmd, run int) {
	err := cmd.Wait()
	code := cmd.ProcessState.ExitCode()
	if err != nil && code == 0 {
		code = -1
	}

	r.mu.Lock()
	if run == r.run {
		r.finishLocked(code)
	}
	r.mu.Unlock()
	r.changed()
}

func (r *Runner) finishLocked(code int) {
	r.exitCode = code
	r.finished = time.Now()
	if code == 0 {
		r.state = Succeeded
	} else {
		r.state = Failed
	}
	r.logger.Info("command finished", "command", r.command, "state", r.state, "exit_code", code)
	r.cond.Broadcast()
}

// Snapshot returns the current state and output.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Wait blocks until the current run has finished.
func (r *Runner) Wait() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.state == Running {
		r.cond.Wait()
	}
	return r.snapshotLocked()
}

func (r *Runner) snapshotLocked() Snapshot {
	return Snapshot{
		Command:    r.command,
		State:      r.state,
		Output:     r.output.String(),
		ExitCode:   r.exitCode,
		Retries:    r.retries,
		StartedAt:  r.started,
		FinishedAt: r.finished,
	}
}

func (r *Runner) changed() {
	if r.onChange != nil {
		r.onChange()
	}
}

// chunkWriter appends to the runner's buffer for one run only.
type chunkWriter struct {
	r   *Runner
	run int
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	w.r.mu.Lock()
	if w.run == w.r.run {
		w.r.output.Write(p)
	}
	w.r.mu.Unlock()
	w.r.changed()
	return len(p), nil
}
