package gitdir

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// mkdirs creates each directory under root and returns root.
func mkdirs(t *testing.T, root string, dirs ...string) string {
	t.Helper()
	for _, dir := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0750))
	}
	return root
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

// noSearch fails the test if an ancestor search is attempted.
func noSearch(t *testing.T) Finder {
	return FinderFunc(func(name, dir string) (string, error) {
		t.Fatalf("unexpected search for %s from %s", name, dir)
		return "", nil
	})
}

func TestResolveSync_StartIsMetadataDir(t *testing.T) {
	root := mkdirs(t, t.TempDir(), ".git")
	start := filepath.Join(root, ".git")

	for _, cfg := range []Config{{}, {Roam: true}} {
		got, err := New(WithFinder(noSearch(t))).ResolveSync(start, cfg)
		require.NoError(t, err)
		require.Equal(t, start, got)
	}
}

func TestResolveSync_PlainRepository(t *testing.T) {
	root := mkdirs(t, t.TempDir(), ".git")

	got, err := ResolveSync(root, nil)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, ".git"), got)
}

func TestResolveSync_NoRoamChecksDirectChildOnly(t *testing.T) {
	root := mkdirs(t, t.TempDir(), ".git", "sub")

	got, err := New(WithFinder(noSearch(t))).ResolveSync(filepath.Join(root, "sub"), Config{})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestResolveSync_RoamFindsAncestor(t *testing.T) {
	root := mkdirs(t, t.TempDir(), ".git", "a/b/c")

	got, err := ResolveSync(filepath.Join(root, "a", "b", "c"), Config{Roam: true})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, ".git"), got)
}

func TestResolveSync_RoamFindsNearest(t *testing.T) {
	root := mkdirs(t, t.TempDir(), ".git", "inner/.git", "inner/pkg")

	got, err := ResolveSync(filepath.Join(root, "inner", "pkg"), Roam(true))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "inner", ".git"), got)
}

func TestResolveSync_RoamNothingFound(t *testing.T) {
	r := New(WithFs(afero.NewMemMapFs()))

	got, err := r.ResolveSync("/work/project", Config{Roam: true})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestResolveSync_MissingStartDirectory(t *testing.T) {
	root := mkdirs(t, t.TempDir(), ".git")
	missing := filepath.Join(root, "does", "not", "exist")

	got, err := ResolveSync(missing, Config{})
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = ResolveSync(missing, Config{Roam: true})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, ".git"), got)
}

func TestResolveSync_AbsoluteIndirection(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "elsewhere", "repo.git")
	writeFile(t, filepath.Join(root, "work", ".git"), "gitdir: "+target+"\n")

	got, err := ResolveSync(filepath.Join(root, "work"), nil)
	require.NoError(t, err)
	require.Equal(t, target, got)
}

func TestResolveSync_RelativeIndirection(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub", ".git"), "gitdir: ../.git")

	got, err := ResolveSync(filepath.Join(root, "sub"), nil)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, ".git"), got)
}

func TestResolveSync_StartIsIndirectionFile(t *testing.T) {
	root := mkdirs(t, t.TempDir(), ".git/modules/lib")
	gitFile := filepath.Join(root, "lib", ".git")
	writeFile(t, gitFile, "gitdir: ../.git/modules/lib\n")

	got, err := ResolveSync(gitFile, nil)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, ".git", "modules", "lib"), got)
}

func TestResolveSync_Submodule(t *testing.T) {
	root := mkdirs(t, t.TempDir(), ".git/modules/lib", "lib/src")
	writeFile(t, filepath.Join(root, "lib", ".git"), "gitdir: ../.git/modules/lib\n")

	got, err := ResolveSync(filepath.Join(root, "lib", "src"), Config{Roam: true})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, ".git", "modules", "lib"), got)
}

func TestResolveSync_DanglingIndirectionIsReturned(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".git"), "gitdir: gone/.git\n")

	got, err := ResolveSync(root, Config{Common: true})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "gone", ".git"), got)
}

func TestResolveSync_UnusableIndirection(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty file", ""},
		{"empty target", "gitdir: "},
		{"empty target with newline", "gitdir:\n"},
		{"other key", "worktree: /src/app\n"},
		{"garbage", "not a pointer at all"},
		{"key not at line start", "  gitdir: /src/app/.git"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, filepath.Join(root, ".git"), tt.content)

			got, err := ResolveSync(root, Config{Common: true})
			require.NoError(t, err)
			require.Empty(t, got)
		})
	}
}

func TestResolveSync_CommonWithoutCommondir(t *testing.T) {
	root := mkdirs(t, t.TempDir(), ".git")

	got, err := ResolveSync(root, Config{Common: true})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, ".git"), got)
}

func TestResolveSync_CommonRelative(t *testing.T) {
	root := mkdirs(t, t.TempDir(), "repo/.git")
	gitDir := filepath.Join(root, "repo", ".git")
	writeFile(t, filepath.Join(gitDir, "commondir"), "../../.git\n")

	got, err := ResolveSync(filepath.Join(root, "repo"), Config{Common: true})
	require.NoError(t, err)
	require.Equal(t, filepath.Clean(filepath.Join(gitDir, "../../.git")), got)
	require.Equal(t, filepath.Join(root, ".git"), got)
}

func TestResolveSync_CommonAbsolute(t *testing.T) {
	root := mkdirs(t, t.TempDir(), ".git")
	shared := filepath.Join(root, "shared.git")
	writeFile(t, filepath.Join(root, ".git", "commondir"), "  "+shared+"  \n")

	got, err := ResolveSync(root, Config{Common: true})
	require.NoError(t, err)
	require.Equal(t, shared, got)
}

func TestResolveSync_LinkedWorktree(t *testing.T) {
	root := mkdirs(t, t.TempDir(), "main/.git/worktrees/feature", "feature/cmd")
	worktreeGitDir := filepath.Join(root, "main", ".git", "worktrees", "feature")
	writeFile(t, filepath.Join(worktreeGitDir, "commondir"), "../..\n")
	writeFile(t, filepath.Join(root, "feature", ".git"), "gitdir: "+worktreeGitDir+"\n")

	start := filepath.Join(root, "feature", "cmd")

	got, err := ResolveSync(start, Config{Roam: true})
	require.NoError(t, err)
	require.Equal(t, worktreeGitDir, got)

	got, err = ResolveSync(start, Config{Roam: true, Common: true})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "main", ".git"), got)
}

func TestResolveSync_RelativeStartDirectory(t *testing.T) {
	root := mkdirs(t, t.TempDir(), ".git", "sub")
	t.Chdir(filepath.Join(root, "sub"))

	got, err := ResolveSync("", Roam(true))
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(got))
	require.Equal(t, ".git", filepath.Base(got))

	got, err = ResolveSync("..", nil)
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(got))
	require.Equal(t, ".git", filepath.Base(got))
}

func TestResolveSync_StartUnderRegularFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "file.txt"), "x")

	_, err := ResolveSync(filepath.Join(root, "file.txt"), nil)
	require.Error(t, err)
}

func TestResolveSync_LegacyRoamMatchesConfig(t *testing.T) {
	root := mkdirs(t, t.TempDir(), ".git", "a/b")
	start := filepath.Join(root, "a", "b")

	for _, roam := range []bool{true, false} {
		legacy, err := ResolveSync(start, Roam(roam))
		require.NoError(t, err)
		structured, err := ResolveSync(start, Config{Roam: roam})
		require.NoError(t, err)
		require.Equal(t, structured, legacy)
	}
}

func TestNormalize(t *testing.T) {
	require.Equal(t, Config{}, normalize(nil))
	require.Equal(t, Config{Roam: true}, normalize(Roam(true)))
	require.Equal(t, Config{}, normalize(Roam(false)))
	require.Equal(t, Config{Roam: true, Common: true}, normalize(Config{Roam: true, Common: true}))
}

// failingFs injects errors for specific paths on top of a real Fs.
type failingFs struct {
	afero.Fs
	failures map[string]error
}

func (f *failingFs) Stat(name string) (os.FileInfo, error) {
	if err, ok := f.failures[name]; ok {
		return nil, &os.PathError{Op: "stat", Path: name, Err: err}
	}
	return f.Fs.Stat(name)
}

func (f *failingFs) Open(name string) (afero.File, error) {
	if err, ok := f.failures[name]; ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}
	return f.Fs.Open(name)
}

func newMemFs(t *testing.T, files map[string]string, dirs ...string) afero.Fs {
	t.Helper()
	mem := afero.NewMemMapFs()
	for _, dir := range dirs {
		require.NoError(t, mem.MkdirAll(dir, 0750))
	}
	for path, content := range files {
		require.NoError(t, afero.WriteFile(mem, path, []byte(content), 0600))
	}
	return mem
}

func TestResolveSync_FilesystemErrorsPropagate(t *testing.T) {
	denied := func(paths ...string) map[string]error {
		failures := make(map[string]error, len(paths))
		for _, p := range paths {
			failures[p] = fs.ErrPermission
		}
		return failures
	}

	tests := []struct {
		name  string
		fs    afero.Fs
		start string
		cfg   Config
	}{
		{
			name:  "candidate stat",
			fs:    &failingFs{Fs: newMemFs(t, nil, "/work/repo/.git"), failures: denied("/work/repo/.git")},
			start: "/work/repo",
		},
		{
			name: "gitdir file read",
			fs: &openFailingFs{
				Fs:   newMemFs(t, map[string]string{"/work/repo/.git": "gitdir: /elsewhere"}),
				path: "/work/repo/.git",
				err:  fs.ErrPermission,
			},
			start: "/work/repo",
		},
		{
			name:  "commondir read",
			fs:    &failingFs{Fs: newMemFs(t, nil, "/work/repo/.git"), failures: denied("/work/repo/.git/commondir")},
			start: "/work/repo",
			cfg:   Config{Common: true},
		},
		{
			name:  "ancestor search",
			fs:    &failingFs{Fs: newMemFs(t, nil, "/work/repo/src"), failures: denied("/work/.git")},
			start: "/work/repo/src",
			cfg:   Config{Roam: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(WithFs(tt.fs)).ResolveSync(tt.start, tt.cfg)
			require.ErrorIs(t, err, fs.ErrPermission)
			require.Empty(t, got)
		})
	}
}

// openFailingFs fails reads of one path while leaving its stat intact.
type openFailingFs struct {
	afero.Fs
	path string
	err  error
}

func (f *openFailingFs) Open(name string) (afero.File, error) {
	if name == f.path {
		return nil, &os.PathError{Op: "open", Path: name, Err: f.err}
	}
	return f.Fs.Open(name)
}

func TestResolveSync_FinderErrorPropagates(t *testing.T) {
	boom := errors.New("search failed")
	r := New(
		WithFs(afero.NewMemMapFs()),
		WithFinder(FinderFunc(func(string, string) (string, error) { return "", boom })),
	)

	_, err := r.ResolveSync("/work", Config{Roam: true})
	require.ErrorIs(t, err, boom)
}

func TestResolveSync_ReadVanishedCandidateIsNotFound(t *testing.T) {
	mem := newMemFs(t, map[string]string{"/work/.git": "gitdir: /elsewhere"})
	r := New(WithFs(&openFailingFs{Fs: mem, path: "/work/.git", err: fs.ErrNotExist}))

	got, err := r.ResolveSync("/work", nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestResolveSync_MemFs(t *testing.T) {
	mem := newMemFs(t, map[string]string{
		"/src/app/.git":                         "gitdir: /src/main/.git/worktrees/app\n",
		"/src/main/.git/worktrees/app/commondir": "../..\n",
	}, "/src/main/.git/worktrees/app", "/src/app/internal")
	r := New(WithFs(mem))

	got, err := r.ResolveSync("/src/app/internal", Config{Roam: true})
	require.NoError(t, err)
	require.Equal(t, "/src/main/.git/worktrees/app", filepath.ToSlash(got))

	got, err = r.ResolveSync("/src/app/internal", Config{Roam: true, Common: true})
	require.NoError(t, err)
	require.Equal(t, "/src/main/.git", filepath.ToSlash(got))
}
