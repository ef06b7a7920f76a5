// Package gitdir finds the git metadata directory of a working tree.
//
// A working tree usually has its metadata in a .git directory, but git may
// leave a .git file in its place instead ("gitdir: <path>") for submodules,
// linked worktrees and repositories created with --separate-git-dir. Linked
// worktrees additionally keep most of their state in a common directory
// named by the worktree's commondir file.
//
// Resolution comes in three shapes that share one implementation:
//
//	path, err := gitdir.ResolveSync(".", gitdir.Config{Roam: true})
//
//	future := gitdir.Resolve(ctx, ".", gitdir.Config{Common: true})
//	path, err := future.Wait(ctx)
//
//	gitdir.ResolveFunc(ctx, ".", gitdir.Roam(true), func(err error, path string) { ... })
//
// An empty path with a nil error means no metadata directory was found.
package gitdir

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/gitdir/internal/log"
)

const (
	// DirName is the conventional name of the metadata directory.
	DirName = ".git"

	commonDirFile = "commondir"
	tracerName    = "github.com/zjrosen/gitdir"
)

// Span attribute keys.
const (
	AttrStart  = "gitdir.start"
	AttrRoam   = "gitdir.roam"
	AttrCommon = "gitdir.common"
	AttrPath   = "gitdir.path"
	AttrFound  = "gitdir.found"
)

// Resolver locates metadata directories on a filesystem.
// A Resolver holds no mutable state and is safe for concurrent use.
type Resolver struct {
	fs     afero.Fs
	finder Finder
	tracer trace.Tracer
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFs sets the filesystem that candidates, .git files and commondir are
// read from. The default is the host filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(r *Resolver) {
		r.fs = fsys
	}
}

// WithFinder sets the ancestor search used when Roam is set. The default is
// an UpwardFinder on the Resolver's filesystem.
func WithFinder(f Finder) Option {
	return func(r *Resolver) {
		r.finder = f
	}
}

// WithTracer sets the tracer used for resolution spans. The default is the
// global OpenTelemetry tracer provider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(r *Resolver) {
		r.tracer = t
	}
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	if r.fs == nil {
		r.fs = afero.NewOsFs()
	}
	if r.finder == nil {
		r.finder = NewUpwardFinder(r.fs)
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	return r
}

// resolve is the only implementation of the resolution algorithm; every
// calling convention ends up here.
func (r *Resolver) resolve(ctx context.Context, dir string, cfg Config) (result string, err error) {
	ctx, span := r.tracer.Start(ctx, "gitdir.resolve", trace.WithAttributes(
		attribute.String(AttrStart, dir),
		attribute.Bool(AttrRoam, cfg.Roam),
		attribute.Bool(AttrCommon, cfg.Common),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.ErrorErr(log.CatResolve, "resolution failed", err, "start", dir)
		} else {
			span.SetAttributes(attribute.String(AttrPath, result), attribute.Bool(AttrFound, result != ""))
			log.Debug(log.CatResolve, "resolved", "start", dir, "path", result)
		}
		span.End()
	}()

	if dir == "" {
		dir = "."
	}
	start, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving start directory %q: %w", dir, err)
	}

	candidate, err := r.candidate(ctx, start, cfg)
	if err != nil || candidate == "" {
		return "", err
	}

	gitDir, err := r.inspect(ctx, candidate)
	if err != nil || gitDir == "" {
		return "", err
	}

	if cfg.Common {
		return r.commonDir(ctx, gitDir)
	}
	return gitDir, nil
}

// candidate picks the path that should be the metadata directory. An empty
// result means an ancestor search found nothing.
func (r *Resolver) candidate(ctx context.Context, start string, cfg Config) (string, error) {
	switch {
	case filepath.Base(start) == DirName:
		log.Debug(log.CatResolve, "start is a metadata directory", "path", start)
		return start, nil

	case cfg.Roam:
		if err := ctx.Err(); err != nil {
			return "", err
		}
		found, err := r.finder.Find(DirName, start)
		if err != nil {
			return "", fmt.Errorf("searching for %s from %s: %w", DirName, start, err)
		}
		if found == "" {
			log.Debug(log.CatResolve, "no metadata directory in ancestors", "start", start)
			return "", nil
		}
		return filepath.Clean(found), nil

	default:
		return filepath.Join(start, DirName), nil
	}
}

// inspect decides what the candidate is. A directory is the answer itself,
// a regular file is followed as a gitdir pointer, and a missing path is not
// found.
func (r *Resolver) inspect(ctx context.Context, candidate string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	info, err := r.fs.Stat(candidate)
	if err != nil {
		if isNotExist(err) {
			log.Debug(log.CatResolve, "candidate does not exist", "path", candidate)
			return "", nil
		}
		return "", fmt.Errorf("inspecting %s: %w", candidate, err)
	}
	if info.IsDir() {
		return candidate, nil
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	content, err := afero.ReadFile(r.fs, candidate)
	if err != nil {
		if isNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading gitdir file: %w", err)
	}

	target, ok := ParseIndirection(content)
	if !ok {
		log.Warn(log.CatResolve, "gitdir file has no target", "path", candidate)
		return "", nil
	}

	resolved := resolveAgainst(filepath.Dir(candidate), target)
	log.Debug(log.CatResolve, "followed gitdir file", "file", candidate, "target", resolved)
	return resolved, nil
}

// commonDir maps a metadata directory to the directory named by its
// commondir file. Without one the metadata directory is its own common dir.
func (r *Resolver) commonDir(ctx context.Context, gitDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	content, err := afero.ReadFile(r.fs, filepath.Join(gitDir, commonDirFile))
	if err != nil {
		if isNotExist(err) {
			return gitDir, nil
		}
		return "", fmt.Errorf("reading commondir: %w", err)
	}

	common := resolveAgainst(gitDir, strings.TrimSpace(string(content)))
	log.Debug(log.CatResolve, "followed commondir", "gitdir", gitDir, "common", common)
	return common, nil
}

// resolveAgainst returns target if absolute, else target joined onto base.
func resolveAgainst(base, target string) string {
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Join(base, target)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
