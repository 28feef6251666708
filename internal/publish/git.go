package publish

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/keithlinneman/linnemanlabs-folio/internal/log"
	"github.com/keithlinneman/linnemanlabs-folio/internal/xerrors"
)

const DefaultCommandTimeout = 60 * time.Second

// VersionControl records and ships the static data directory.
type VersionControl interface {
	StageAll(ctx context.Context, path string) error
	// Commit returns ErrNothingToCommit when the index has no changes.
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context) error
}

// Git runs the git binary in a working tree.
type Git struct {
	dir     string
	bin     string
	remote  string
	branch  string
	timeout time.Duration
	env     []string
	logger  log.Logger
}

type GitOption func(*Git)

func WithRemote(remote string) GitOption {
	return func(g *Git) {
		if remote != "" {
			g.remote = remote
		}
	}
}

// WithBranch pushes an explicit branch; empty pushes the current branch's upstream.
func WithBranch(branch string) GitOption {
	return func(g *Git) { g.branch = branch }
}

func WithCommandTimeout(d time.Duration) GitOption {
	return func(g *Git) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithGitBinary(path string) GitOption {
	return func(g *Git) {
		if path != "" {
			g.bin = path
		}
	}
}

// WithAuthor sets the commit identity through git's environment variables.
func WithAuthor(name, email string) GitOption {
	return func(g *Git) {
		if name != "" {
			g.env = append(g.env, "GIT_AUTHOR_NAME="+name, "GIT_COMMITTER_NAME="+name)
		}
		if email != "" {
			g.env = append(g.env, "GIT_AUTHOR_EMAIL="+email, "GIT_COMMITTER_EMAIL="+email)
		}
	}
}

func WithGitLogger(l log.Logger) GitOption {
	return func(g *Git) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGit runs git in dir. A relative dir is resolved against the current
// working directory now, like the static dir handed to the pipeline.
func NewGit(dir string, opts ...GitOption) *Git {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	g := &Git{
		dir:     dir,
		bin:     "git",
		remote:  "origin",
		timeout: DefaultCommandTimeout,
		logger:  log.Nop(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Git) StageAll(ctx context.Context, path string) error {
	_, err := g.run(ctx, StepAdd, "add", "-A", "--", path)
	return err
}

func (g *Git) Commit(ctx context.Context, message string) error {
	out, err := g.run(ctx, StepCommit, "commit", "-m", message)
	if err != nil && isNothingToCommit(out) {
		return ErrNothingToCommit
	}
	return err
}

func (g *Git) Push(ctx context.Context) error {
	args := []string{"push", g.remote}
	if g.branch != "" {
		args = append(args, g.branch)
	}
	_, err := g.run(ctx, StepPush, args...)
	return err
}

// MaxRunTime bounds the git work of one publish: add, commit and push each
// get the full command timeout.
func (g *Git) MaxRunTime() time.Duration { return 3 * g.timeout }

// Ready checks that dir is inside a git work tree.
func (g *Git) Ready(ctx context.Context) error {
	_, err := g.run(ctx, "rev-parse", "rev-parse", "--is-inside-work-tree")
	return err
}

func (g *Git) run(ctx context.Context, step Step, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, g.bin, args...)
	cmd.Dir = g.dir
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	// never block on a credential prompt
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	cmd.Env = append(cmd.Env, g.env...)

	start := time.Now()
	err := cmd.Run()
	out := strings.TrimSpace(buf.String())
	g.logger.Debug(ctx, "git command finished",
		"args", strings.Join(args, " "),
		"duration", time.Since(start),
		"ok", err == nil,
	)
	if err == nil {
		return out, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = xerrors.Wrapf(ctx.Err(), "git %s timed out after %s", args[0], g.timeout)
	}
	return out, &Error{Step: step, Output: out, Err: err}
}

func isNothingToCommit(out string) bool {
	return strings.Contains(out, "nothing to commit") ||
		strings.Contains(out, "nothing added to commit") ||
		strings.Contains(out, "no changes added to commit")
}
