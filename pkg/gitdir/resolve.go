package gitdir

import "context"

// Future is the pending result of Resolve.
type Future struct {
	done chan struct{}
	path string
	err  error
}

// Done is closed once the resolution has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the resolution finishes or ctx is done, whichever comes
// first. Giving up on ctx does not stop the resolution itself; use the
// context passed to Resolve for that.
func (f *Future) Wait(ctx context.Context) (string, error) {
	select {
	case <-f.done:
		return f.path, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Callback receives the outcome of ResolveFunc. path is "" when nothing was
// found.
type Callback func(err error, path string)

// ResolveSync returns the metadata directory for dir, blocking the calling
// goroutine. dir defaults to the current directory.
//
// A path named by a .git file is returned without checking that it exists;
// callers find out when they use it, as git itself does.
func (r *Resolver) ResolveSync(dir string, arg Arg) (string, error) {
	return r.resolve(context.Background(), dir, normalize(arg))
}

// Resolve starts resolving the metadata directory for dir and returns
// immediately. Cancelling ctx makes the pending resolution stop before its
// next filesystem access and report ctx.Err().
func (r *Resolver) Resolve(ctx context.Context, dir string, arg Arg) *Future {
	cfg := normalize(arg)
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.path, f.err = r.resolve(ctx, dir, cfg)
	}()
	return f
}

// ResolveFunc resolves like Resolve and hands the outcome to cb, which runs
// exactly once on a goroutine of its own.
func (r *Resolver) ResolveFunc(ctx context.Context, dir string, arg Arg, cb Callback) {
	f := r.Resolve(ctx, dir, arg)
	go func() {
		<-f.done
		cb(f.err, f.path)
	}()
}

var defaultResolver = New()

// ResolveSync resolves on the host filesystem. See Resolver.ResolveSync.
func ResolveSync(dir string, arg Arg) (string, error) {
	return defaultResolver.ResolveSync(dir, arg)
}

// Resolve resolves on the host filesystem. See Resolver.Resolve.
func Resolve(ctx context.Context, dir string, arg Arg) *Future {
	return defaultResolver.Resolve(ctx, dir, arg)
}

// ResolveFunc resolves on the host filesystem. See Resolver.ResolveFunc.
func ResolveFunc(ctx context.Context, dir string, arg Arg, cb Callback) {
	defaultResolver.ResolveFunc(ctx, dir, arg, cb)
}
