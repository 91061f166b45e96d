package builder

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Logger receives process output and failures. It matches logging.Logger's
// signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// CommandBuilder runs the workspace build commands as child processes in the
// project directory.
type CommandBuilder struct {
	logger      Logger
	gracePeriod time.Duration
	env         []string
}

// Option customizes a CommandBuilder.
type Option func(*CommandBuilder)

// WithLogger routes process output to l.
func WithLogger(l Logger) Option {
	return func(b *CommandBuilder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithGracePeriod sets how long a cancelled process may take to exit after
// the interrupt before it is killed.
func WithGracePeriod(d time.Duration) Option {
	return func(b *CommandBuilder) {
		if d > 0 {
			b.gracePeriod = d
		}
	}
}

// WithEnv appends KEY=VALUE pairs to every child environment.
func WithEnv(env ...string) Option {
	return func(b *CommandBuilder) {
		b.env = append(b.env, env...)
	}
}

// NewCommandBuilder returns a builder that shells out to the configured commands.
func NewCommandBuilder(opts ...Option) *CommandBuilder {
	b := &CommandBuilder{logger: nopLogger{}, gracePeriod: 2 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Open starts the build. In once mode the typecheck and bundle commands run in
// sequence and the handle finishes when both exit. In watch mode only the
// watch command runs and the handle stays open until closed or the process
// exits on its own.
func (b *CommandBuilder) Open(ctx context.Context, job Job) (Handle, error) {
	steps, err := b.steps(job)
	if err != nil {
		return nil, err
	}
	return Go(ctx, func(runCtx context.Context) error {
		for _, argv := range steps {
			if err := b.run(runCtx, job, argv); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

func (b *CommandBuilder) steps(job Job) ([][]string, error) {
	var steps [][]string
	switch job.Mode {
	case ModeWatch:
		if len(job.Commands.Watch) == 0 {
			return nil, fmt.Errorf("builder: project %s: no watch command configured", job.Project)
		}
		steps = append(steps, job.Commands.Watch)
	case ModeOnce, "":
		if len(job.Commands.Typecheck) > 0 {
			steps = append(steps, job.Commands.Typecheck)
		}
		if len(job.Commands.Bundle) > 0 {
			steps = append(steps, job.Commands.Bundle)
		}
	default:
		return nil, fmt.Errorf("builder: project %s: unknown mode %q", job.Project, job.Mode)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("builder: project %s: no build commands configured", job.Project)
	}
	return steps, nil
}

func (b *CommandBuilder) run(ctx context.Context, job Job, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = job.Dir
	cmd.Env = append(cmd.Environ(), b.env...)
	cmd.Env = append(cmd.Env, "WEFT_PROJECT="+job.Project, "WEFT_BUILD_ID="+job.ID)
	cmd.Cancel = func() error { return interrupt(cmd) }
	cmd.WaitDelay = b.gracePeriod

	out := &lineWriter{logger: b.logger, prefix: "builder " + job.Project + ": "}
	cmd.Stdout = out
	cmd.Stderr = out
	b.logger.Printf("builder %s: run %s", job.Project, describe(argv))
	err := cmd.Run()
	out.Flush()
	if err != nil {
		return fmt.Errorf("builder: %s %s: %w", job.Project, describe(argv), err)
	}
	return nil
}

// lineWriter forwards complete lines of process output to a logger.
type lineWriter struct {
	logger Logger
	prefix string

	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			w.buf.WriteString(line)
			return len(p), nil
		}
		w.logger.Printf("%s%s", w.prefix, strings.TrimRight(line, "\r\n"))
	}
}

// Flush emits any trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.logger.Printf("%s%s", w.prefix, w.buf.String())
		w.buf.Reset()
	}
}

// Install runs the workspace install command in root and waits for it.
func (b *CommandBuilder) Install(ctx context.Context, root string, argv []string) error {
	if len(argv) == 0 {
		return nil
	}
	return b.run(ctx, Job{Project: "install", Dir: root}, argv)
}
