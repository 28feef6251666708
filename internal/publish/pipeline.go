package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/keithlinneman/linnemanlabs-folio/internal/content"
	"github.com/keithlinneman/linnemanlabs-folio/internal/log"
	"github.com/keithlinneman/linnemanlabs-folio/internal/xerrors"
)

// DocumentLister supplies the documents to publish.
type DocumentLister interface {
	List(ctx context.Context) ([]*content.Document, error)
}

// Result describes a completed publish.
type Result struct {
	Message   string
	Files     []string
	Manifest  bool
	Mirrored  bool
	Committed bool
	Pushed    bool
	Duration  time.Duration
}

// Pipeline runs one publish at a time.
type Pipeline struct {
	docs      DocumentLister
	staticDir string
	vcs       VersionControl
	signer    Signer
	mirror    Mirror
	logger    log.Logger
	now       func() time.Time

	mu sync.Mutex
}

type Option func(*Pipeline)

func WithSigner(s Signer) Option {
	return func(p *Pipeline) { p.signer = s }
}

func WithMirror(m Mirror) Option {
	return func(p *Pipeline) { p.mirror = m }
}

func WithLogger(l log.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPipeline(docs DocumentLister, staticDir string, vcs VersionControl, opts ...Option) (*Pipeline, error) {
	if staticDir == "" {
		return nil, xerrors.New("publish: static data dir is required")
	}
	if vcs == nil {
		return nil, xerrors.New("publish: version control is required")
	}
	// git runs in its repository dir, so a path relative to ours would be
	// resolved against the wrong directory.
	abs, err := filepath.Abs(staticDir)
	if err != nil {
		return nil, xerrors.Wrapf(err, "publish: resolve %s", staticDir)
	}
	p := &Pipeline{
		docs:      docs,
		staticDir: abs,
		vcs:       vcs,
		logger:    log.Nop(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// DefaultMessage is the commit message used when the caller gives none.
func DefaultMessage(t time.Time) string {
	return "content: publish " + t.UTC().Format(time.RFC3339)
}

// Publish runs every step. It returns ErrInProgress without doing anything
// if another publish is running, and *Error for a failed step.
func (p *Pipeline) Publish(ctx context.Context, message string) (Result, error) {
	if !p.mu.TryLock() {
		return Result{}, ErrInProgress
	}
	defer p.mu.Unlock()

	start := p.now()
	if message == "" {
		message = DefaultMessage(start)
	}
	res := Result{}

	docs, err := p.docs.List(ctx)
	if err != nil {
		return res, &Error{Step: StepCopy, Err: err}
	}
	if err := os.MkdirAll(p.staticDir, 0o755); err != nil {
		return res, &Error{Step: StepCopy, Err: xerrors.Wrapf(err, "create %s", p.staticDir)}
	}
	for _, d := range docs {
		name := d.Category.FileName()
		if err := content.WriteFileAtomic(filepath.Join(p.staticDir, name), d.Raw, 0o644); err != nil {
			return res, &Error{Step: StepCopy, Err: err}
		}
		res.Files = append(res.Files, name)
	}

	manifest, changed, err := writeManifest(ctx, p.staticDir, buildManifest(docs), p.signer)
	if err != nil {
		return res, &Error{Step: StepManifest, Err: err}
	}
	res.Manifest = changed

	if p.mirror != nil {
		for _, d := range docs {
			if err := p.mirror.Put(ctx, d.Category.FileName(), d.Raw); err != nil {
				return res, &Error{Step: StepMirror, Err: err}
			}
		}
		if err := p.mirror.Put(ctx, ManifestFile, manifest); err != nil {
			return res, &Error{Step: StepMirror, Err: err}
		}
		res.Mirrored = true
	}

	if err := p.vcs.StageAll(ctx, p.staticDir); err != nil {
		return res, asStepError(StepAdd, err)
	}

	err = p.vcs.Commit(ctx, message)
	switch {
	case errors.Is(err, ErrNothingToCommit):
		res.Message = ErrNothingToCommit.Error()
		res.Duration = p.now().Sub(start)
		p.logger.Info(ctx, "publish found nothing to commit", "files", len(res.Files))
		return res, nil
	case err != nil:
		return res, asStepError(StepCommit, err)
	}
	res.Committed = true

	if err := p.vcs.Push(ctx); err != nil {
		return res, asStepError(StepPush, err)
	}
	res.Pushed = true
	res.Message = "content published"
	res.Duration = p.now().Sub(start)

	p.logger.Info(ctx, "content published",
		"files", len(res.Files),
		"manifest_changed", res.Manifest,
		"mirrored", res.Mirrored,
		"duration", res.Duration,
	)
	return res, nil
}

func asStepError(step Step, err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Step: step, Err: err}
}
