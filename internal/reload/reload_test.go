package reload

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/again/internal/diag"
	"github.com/hupe1980/again/internal/library"
	"github.com/hupe1980/again/internal/loader"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

// ---------------------------------------------------------------------------
// Flag
// ---------------------------------------------------------------------------

func TestFlag_ScopeRestores(t *testing.T) {
	var f Flag
	assert.False(t, f.Get())

	f.Scope(func() {
		assert.True(t, f.Get())

		f.Scope(func() { assert.True(t, f.Get()) })

		assert.True(t, f.Get(), "inner scope must restore the outer value")
	})

	assert.False(t, f.Get())
}

func TestFlag_ScopeRestoresOnPanic(t *testing.T) {
	var f Flag

	assert.Panics(t, func() {
		f.Scope(func() { panic("boom") })
	})
	assert.False(t, f.Get())
}

// ---------------------------------------------------------------------------
// stage / copyFile
// ---------------------------------------------------------------------------

func TestStage_CreatesMarkedSnapshot(t *testing.T) {
	src := filepath.Join(t.TempDir(), "main.sh")
	writeFile(t, src, "echo main\n")

	tmp := t.TempDir()
	now := time.Unix(1700000000, 0)

	dir, staged, err := stage(src, tmp, now, slog.Default())
	require.NoError(t, err)

	assert.Equal(t, tmp, filepath.Dir(dir))
	assert.True(t, strings.HasPrefix(filepath.Base(dir), library.ReloadMarker+"-dir-1700000000-"))
	assert.Equal(t, library.ReloadMarker+"main.sh", filepath.Base(staged))

	data, err := os.ReadFile(staged)
	require.NoError(t, err)
	assert.Equal(t, "echo main\n", string(data))
}

func TestStage_RepeatedReloadsDoNotCollide(t *testing.T) {
	src := filepath.Join(t.TempDir(), "main.sh")
	writeFile(t, src, "x")

	tmp := t.TempDir()
	now := time.Unix(1700000000, 0)

	dir1, _, err := stage(src, tmp, now, slog.Default())
	require.NoError(t, err)
	dir2, _, err := stage(src, tmp, now, slog.Default())
	require.NoError(t, err)

	assert.NotEqual(t, dir1, dir2)
}

func TestStage_MissingSource(t *testing.T) {
	tmp := t.TempDir()

	dir, staged, err := stage(filepath.Join(tmp, "missing.sh"), tmp, time.Now(), slog.Default())
	require.Error(t, err)
	assert.NotEmpty(t, dir, "scratch directory is reported so it can be removed")
	assert.Empty(t, staged)
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.sh")
	require.NoError(t, os.WriteFile(src, []byte("content"), 0o750))

	dst := filepath.Join(dir, "dst.sh")
	n, err := copyFile(src, dst)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o750), info.Mode().Perm())

	_, err = copyFile(src, dst)
	assert.Error(t, err, "existing destination is not overwritten")
}

// ---------------------------------------------------------------------------
// Executor
// ---------------------------------------------------------------------------

func TestExecutor_ReloadsLibraryDirectly(t *testing.T) {
	lib := filepath.Join(t.TempDir(), "lib.sh")
	writeFile(t, lib, "x")

	var got loader.Request

	var buf bytes.Buffer
	e := &Executor{
		Entry: "/proj/main.sh",
		Diag:  diag.New(&buf, true),
		Loader: loader.Func(func(_ context.Context, req loader.Request) error {
			got = req
			return nil
		}),
	}

	res := e.Reload(context.Background(), lib)
	require.NoError(t, res.Err)
	assert.False(t, res.Staged)
	assert.Equal(t, lib, res.LoadPath)
	assert.Equal(t, loader.Request{Path: lib, Original: lib, Reloaded: true}, got)
	assert.Equal(t, "Reloading "+lib+"\n", buf.String())
}

func TestExecutor_EntryFileSubstitution(t *testing.T) {
	proj := t.TempDir()
	entry := filepath.Join(proj, "main.sh")
	writeFile(t, entry, "echo main\n")

	flag := &Flag{}

	var (
		loadedPath    string
		loadedContent string
		flagDuring    bool
	)

	e := &Executor{
		Entry:   entry,
		Flag:    flag,
		TempDir: t.TempDir(),
		Loader: loader.Func(func(_ context.Context, req loader.Request) error {
			loadedPath = req.Path
			flagDuring = flag.Get()

			data, err := os.ReadFile(req.Path)
			require.NoError(t, err)
			loadedContent = string(data)

			return nil
		}),
	}

	res := e.Reload(context.Background(), entry)
	require.NoError(t, res.Err)

	assert.True(t, res.Staged)
	assert.NotEqual(t, entry, loadedPath)
	assert.Contains(t, loadedPath, library.ReloadMarker)
	assert.Equal(t, "echo main\n", loadedContent)
	assert.True(t, flagDuring, "reloaded flag is set during the load")
	assert.False(t, flag.Get(), "reloaded flag is cleared afterwards")

	_, err := os.Stat(loadedPath)
	assert.True(t, os.IsNotExist(err), "scratch copy is removed")
	_, err = os.Stat(filepath.Dir(loadedPath))
	assert.True(t, os.IsNotExist(err), "scratch directory is removed")

	data, err := os.ReadFile(entry)
	require.NoError(t, err)
	assert.Equal(t, "echo main\n", string(data), "entry file is untouched")
}

func TestExecutor_FailureIsContained(t *testing.T) {
	lib := filepath.Join(t.TempDir(), "broken.sh")
	writeFile(t, lib, "syntax error here")

	var buf bytes.Buffer
	flag := &Flag{}
	e := &Executor{
		Flag: flag,
		Diag: diag.New(&buf, true),
		Loader: loader.Func(func(context.Context, loader.Request) error {
			return errors.Join(loader.ErrLoad, errors.New("unexpected token near line 1"))
		}),
	}

	var res Result

	assert.NotPanics(t, func() { res = e.Reload(context.Background(), lib) })
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, loader.ErrLoad)
	assert.Contains(t, buf.String(), "unexpected token near line 1")
	assert.False(t, flag.Get())
}

func TestExecutor_PanicIsContainedWithStack(t *testing.T) {
	proj := t.TempDir()
	entry := filepath.Join(proj, "main.sh")
	writeFile(t, entry, "x")

	var (
		buf        bytes.Buffer
		loadedPath string
	)

	flag := &Flag{}
	e := &Executor{
		Entry:   entry,
		Flag:    flag,
		TempDir: t.TempDir(),
		Diag:    diag.New(&buf, true),
		Loader: loader.Func(func(_ context.Context, req loader.Request) error {
			loadedPath = req.Path
			panic("unit exploded")
		}),
	}

	var res Result

	assert.NotPanics(t, func() { res = e.Reload(context.Background(), entry) })
	assert.ErrorIs(t, res.Err, loader.ErrLoad)
	assert.Contains(t, buf.String(), "unit exploded")
	assert.Contains(t, buf.String(), "goroutine")
	assert.False(t, flag.Get())

	_, err := os.Stat(loadedPath)
	assert.True(t, os.IsNotExist(err), "scratch copy is removed on panic")
}

func TestExecutor_SubsequentReloadAfterFailure(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.sh")
	good := filepath.Join(dir, "good.sh")
	writeFile(t, broken, "x")
	writeFile(t, good, "y")

	var loads []string

	e := &Executor{
		Loader: loader.Func(func(_ context.Context, req loader.Request) error {
			loads = append(loads, req.Path)
			if req.Path == broken {
				return loader.ErrLoad
			}

			return nil
		}),
	}

	assert.Error(t, e.Reload(context.Background(), broken).Err)
	assert.NoError(t, e.Reload(context.Background(), good).Err)
	assert.Equal(t, []string{broken, good}, loads)
}

func TestExecutor_StagingFailureCleansUp(t *testing.T) {
	tmp := t.TempDir()
	entry := filepath.Join(t.TempDir(), "gone.sh")

	called := false
	e := &Executor{
		Entry:   entry,
		TempDir: tmp,
		Loader: loader.Func(func(context.Context, loader.Request) error {
			called = true
			return nil
		}),
	}

	res := e.Reload(context.Background(), entry)
	assert.ErrorIs(t, res.Err, loader.ErrLoad)
	assert.False(t, called)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directory is removed when staging fails")
}

func TestExecutor_EntryReloadThroughService(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	proj := t.TempDir()
	entry := filepath.Join(proj, "main.sh")
	writeFile(t, entry, "echo \"main-ran $AGAIN_RELOADED\"\nexec sleep 30\n")

	out := &syncBuffer{}
	errOut := &syncBuffer{}
	svc := &loader.Service{Command: "sh {}", Stdout: out, Stderr: errOut, GracePeriod: time.Second}
	defer svc.Stop()

	e := &Executor{Entry: entry, Loader: svc, TempDir: t.TempDir()}

	res := e.Reload(context.Background(), entry)
	require.NoError(t, res.Err)
	assert.True(t, res.Staged)
	assert.True(t, res.Retained, "the service owns the scratch copy")

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "main-ran 1") },
		2*time.Second, 10*time.Millisecond)
	assert.Empty(t, errOut.String())
	assert.True(t, svc.Running())

	scratch := filepath.Dir(res.LoadPath)
	_, err := os.Stat(scratch)
	require.NoError(t, err, "scratch copy lives as long as the service")

	svc.Stop()

	_, err = os.Stat(scratch)
	assert.True(t, os.IsNotExist(err), "scratch copy is removed once the service exits")
}

func TestExecutor_PassesEntryToLoader(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "main.sh")
	lib := filepath.Join(dir, "lib.sh")
	writeFile(t, lib, "x")

	var got loader.Request

	e := &Executor{
		Entry: entry,
		Loader: loader.Func(func(_ context.Context, req loader.Request) error {
			got = req
			return nil
		}),
	}

	res := e.Reload(context.Background(), lib)
	require.NoError(t, res.Err)
	assert.False(t, res.Retained)
	assert.Equal(t, loader.Request{Path: lib, Original: lib, Entry: entry, Reloaded: true}, got)
}
