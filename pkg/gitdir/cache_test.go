package gitdir

import (
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCachedResolver_ServesFromCacheUntilInvalidated(t *testing.T) {
	mem := newMemFs(t, nil, "/work/.git", "/work/src")
	cached := NewCachedResolver(New(WithFs(mem)), 0)

	got, err := cached.ResolveSync("/work/src", Roam(true))
	require.NoError(t, err)
	require.Equal(t, "/work/.git", got)
	require.Equal(t, 1, cached.Len())

	require.NoError(t, mem.RemoveAll("/work/.git"))

	got, err = cached.ResolveSync("/work/src", Config{Roam: true})
	require.NoError(t, err)
	require.Equal(t, "/work/.git", got, "legacy and structured arguments share an entry")

	cached.Invalidate()
	require.Equal(t, 0, cached.Len())

	got, err = cached.ResolveSync("/work/src", Roam(true))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestCachedResolver_KeysOnConfig(t *testing.T) {
	mem := newMemFs(t, map[string]string{
		"/main/.git/worktrees/wt/commondir": "../..",
		"/wt/.git":                          "gitdir: /main/.git/worktrees/wt",
	}, "/wt/src")
	cached := NewCachedResolver(New(WithFs(mem)), time.Minute)

	private, err := cached.ResolveSync("/wt/src", Config{Roam: true})
	require.NoError(t, err)
	common, err := cached.ResolveSync("/wt/src", Config{Roam: true, Common: true})
	require.NoError(t, err)
	direct, err := cached.ResolveSync("/wt/src", Config{})
	require.NoError(t, err)

	require.Equal(t, "/main/.git/worktrees/wt", private)
	require.Equal(t, "/main/.git", common)
	require.Empty(t, direct)
	require.Equal(t, 3, cached.Len())
}

func TestCachedResolver_RelativeAndAbsoluteShareEntry(t *testing.T) {
	root := mkdirs(t, t.TempDir(), ".git")
	t.Chdir(root)
	cached := NewCachedResolver(New(), time.Minute)

	rel, err := cached.ResolveSync("", nil)
	require.NoError(t, err)
	abs, err := cached.ResolveSync(".", nil)
	require.NoError(t, err)

	require.Equal(t, rel, abs)
	require.Equal(t, 1, cached.Len())
}

func TestCachedResolver_DoesNotCacheErrors(t *testing.T) {
	mem := newMemFs(t, nil, "/work/.git")
	failing := &failingFs{Fs: mem, failures: map[string]error{"/work/.git": fs.ErrPermission}}
	cached := NewCachedResolver(New(WithFs(failing)), time.Minute)

	_, err := cached.ResolveSync("/work", nil)
	require.ErrorIs(t, err, fs.ErrPermission)
	require.Equal(t, 0, cached.Len())

	delete(failing.failures, "/work/.git")
	got, err := cached.ResolveSync("/work", nil)
	require.NoError(t, err)
	require.Equal(t, "/work/.git", got)
}

func TestCachedResolver_Expires(t *testing.T) {
	mem := newMemFs(t, nil, "/work/.git")
	cached := NewCachedResolver(New(WithFs(mem)), 20*time.Millisecond)

	got, err := cached.ResolveSync("/work", nil)
	require.NoError(t, err)
	require.Equal(t, "/work/.git", got)

	require.NoError(t, mem.RemoveAll("/work/.git"))
	require.Eventually(t, func() bool {
		got, err := cached.ResolveSync("/work", nil)
		return err == nil && got == ""
	}, time.Second, 10*time.Millisecond)
}

func TestCachedResolver_Concurrent(t *testing.T) {
	mem := newMemFs(t, nil, "/work/.git", "/work/a", "/work/b")
	cached := NewCachedResolver(New(WithFs(mem)), time.Minute)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dir := "/work/a"
			if i%2 == 0 {
				dir = "/work/b"
			}
			got, err := cached.ResolveSync(dir, Roam(true))
			if err != nil || got != "/work/.git" {
				t.Errorf("resolve %s: got %q, %v", dir, got, err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 2, cached.Len())
}
