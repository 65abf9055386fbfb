package build

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goplus/llarmagick/internal/build/lockedfile"
	"github.com/goplus/llarmagick/internal/source"
	"github.com/goplus/llarmagick/mod/module"
	"github.com/goplus/llarmagick/recipe"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor records calls and installs a minimal package tree.
type fakeExecutor struct {
	ws           Workspace
	calls        *[]string
	configureErr error
	buildErr     error
}

func (f *fakeExecutor) Configure(ctx context.Context) error {
	*f.calls = append(*f.calls, "configure")
	return f.configureErr
}

// Build installs lib/ before reporting buildErr, like a make install that
// dies halfway.
func (f *fakeExecutor) Build(ctx context.Context) error {
	*f.calls = append(*f.calls, "build")
	if err := os.MkdirAll(filepath.Join(f.ws.InstallDir, "lib"), 0o755); err != nil {
		return err
	}
	return f.buildErr
}

type harness struct {
	t        *testing.T
	calls    []string
	fetches  int
	ws       Workspace
	exec     *fakeExecutor
	builder  *Builder
	resolved *recipe.Resolution
}

func newHarness(t *testing.T, settings recipe.Settings, opts map[string]string) *harness {
	t.Helper()
	res, err := recipe.Resolve(recipe.RawConfig{Settings: settings, Options: opts})
	require.NoError(t, err)

	h := &harness{t: t, resolved: res}
	h.exec = &fakeExecutor{calls: &h.calls}
	h.builder = NewBuilder(Options{
		WorkspaceDir: t.TempDir(),
		Stdout:       io.Discard,
		Stderr:       io.Discard,
		Fetch: func(ctx context.Context, v module.Version, dir string) (string, error) {
			h.fetches++
			src := filepath.Join(dir, "source_subfolder")
			if err := os.MkdirAll(src, 0o755); err != nil {
				return "", err
			}
			return src, os.WriteFile(filepath.Join(src, "LICENSE"), []byte("ImageMagick License"), 0o644)
		},
		NewExecutor: func(res *recipe.Resolution, ws Workspace, deps []string, stdout, stderr io.Writer) (Executor, error) {
			h.ws = ws
			h.exec.ws = ws
			return h.exec, nil
		},
	})
	return h
}

var linux = recipe.Settings{OS: "Linux", Arch: "x86_64", Compiler: "gcc", CompilerVersion: "9"}

func TestBuild(t *testing.T) {
	h := newHarness(t, linux, nil)

	r, err := h.builder.Build(context.Background(), h.resolved)
	require.NoError(t, err)

	assert.Equal(t, []string{"configure", "build"}, h.calls)
	assert.Equal(t, recipe.StatePackaged, r.State)
	assert.False(t, r.Cached)
	assert.Equal(t, h.resolved.Artifacts, r.Descriptor)
	assert.Equal(t, filepath.Join(r.Dir, "bin"), r.Env["PATH"])

	license, err := os.ReadFile(filepath.Join(r.Dir, "licenses", "LICENSE"))
	require.NoError(t, err)
	assert.Equal(t, "ImageMagick License", string(license))

	assert.True(t, strings.HasSuffix(r.Dir, h.resolved.Key()), "package dir %s is not keyed by configuration", r.Dir)
	_, err = os.Stat(r.Dir + ".work")
	assert.True(t, os.IsNotExist(err), "scratch dir left behind")
}

func TestBuildUsesCache(t *testing.T) {
	h := newHarness(t, linux, nil)
	ctx := context.Background()

	_, err := h.builder.Build(ctx, h.resolved)
	require.NoError(t, err)
	h.calls = nil

	r, err := h.builder.Build(ctx, h.resolved)
	require.NoError(t, err)
	assert.True(t, r.Cached)
	assert.Empty(t, h.calls)
	assert.Equal(t, 1, h.fetches)
	assert.Equal(t, h.resolved.Artifacts, r.Descriptor)

	// Force bypasses the cache.
	h.builder.opts.Force = true
	r, err = h.builder.Build(ctx, h.resolved)
	require.NoError(t, err)
	assert.False(t, r.Cached)
	assert.Equal(t, 2, h.fetches)
}

func TestBuildDistinctConfigurations(t *testing.T) {
	h := newHarness(t, linux, nil)
	ctx := context.Background()
	r1, err := h.builder.Build(ctx, h.resolved)
	require.NoError(t, err)

	other, err := recipe.Resolve(recipe.RawConfig{Settings: linux, Options: map[string]string{"shared": "True"}})
	require.NoError(t, err)
	r2, err := h.builder.Build(ctx, other)
	require.NoError(t, err)

	assert.NotEqual(t, r1.Dir, r2.Dir)
	assert.False(t, r2.Cached)
}

func TestBuildStageErrors(t *testing.T) {
	boom := errors.New("exit status 1")
	tests := []struct {
		name  string
		setup func(*fakeExecutor)
		stage recipe.Stage
		calls []string
	}{
		{"configure", func(f *fakeExecutor) { f.configureErr = boom }, recipe.StageConfigure, []string{"configure"}},
		{"build", func(f *fakeExecutor) { f.buildErr = boom }, recipe.StageBuild, []string{"configure", "build"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, linux, nil)
			tt.setup(h.exec)

			_, err := h.builder.Build(context.Background(), h.resolved)
			var se *StageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.stage, se.Stage)
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, tt.calls, h.calls)
		})
	}
}

func TestBuildFailedRebuildDropsCache(t *testing.T) {
	h := newHarness(t, linux, nil)
	ctx := context.Background()
	r, err := h.builder.Build(ctx, h.resolved)
	require.NoError(t, err)

	boom := errors.New("exit status 2")
	h.exec.buildErr = boom
	h.builder.opts.Force = true
	_, err = h.builder.Build(ctx, h.resolved)
	require.ErrorIs(t, err, boom)
	_, err = os.Stat(r.Dir)
	assert.True(t, os.IsNotExist(err), "partial package dir left behind")

	cacheDir, err := h.builder.cacheDir(h.resolved.Version)
	require.NoError(t, err)
	cache, err := loadCache(cacheDir)
	require.NoError(t, err)
	_, ok := cache.get(h.resolved.Version.Version, h.resolved.Key())
	assert.False(t, ok, "cache entry kept after a failed rebuild")

	h.exec.buildErr = nil
	h.builder.opts.Force = false
	h.calls = nil
	r, err = h.builder.Build(ctx, h.resolved)
	require.NoError(t, err)
	assert.False(t, r.Cached)
	assert.Equal(t, []string{"configure", "build"}, h.calls)
	_, err = os.Stat(filepath.Join(r.Dir, "licenses", "LICENSE"))
	assert.NoError(t, err)
}

// gateExecutor holds every build in Configure until all of them got there.
type gateExecutor struct {
	ws      Workspace
	arrived *sync.WaitGroup
	open    <-chan struct{}
}

func (g *gateExecutor) Configure(ctx context.Context) error {
	g.arrived.Done()
	select {
	case <-g.open:
		return nil
	case <-time.After(10 * time.Second):
		return errors.New("builds did not run concurrently")
	}
}

func (g *gateExecutor) Build(ctx context.Context) error {
	return os.MkdirAll(filepath.Join(g.ws.InstallDir, "lib"), 0o755)
}

func TestBuildConcurrentConfigurationsKeepCache(t *testing.T) {
	workspace := t.TempDir()
	var arrived sync.WaitGroup
	open := make(chan struct{})

	var configs []*recipe.Resolution
	for _, depth := range []string{"8", "16"} {
		res, err := recipe.Resolve(recipe.RawConfig{Settings: linux, Options: map[string]string{"quantum_depth": depth}})
		require.NoError(t, err)
		configs = append(configs, res)
	}
	arrived.Add(len(configs))
	go func() {
		arrived.Wait()
		close(open)
	}()

	builder := NewBuilder(Options{
		WorkspaceDir: workspace,
		Stdout:       io.Discard,
		Stderr:       io.Discard,
		Fetch: func(ctx context.Context, v module.Version, dir string) (string, error) {
			src := filepath.Join(dir, source.Subfolder)
			if err := os.MkdirAll(src, 0o755); err != nil {
				return "", err
			}
			return src, os.WriteFile(filepath.Join(src, "LICENSE"), []byte("ImageMagick License"), 0o644)
		},
		NewExecutor: func(res *recipe.Resolution, ws Workspace, deps []string, stdout, stderr io.Writer) (Executor, error) {
			return &gateExecutor{ws: ws, arrived: &arrived, open: open}, nil
		},
	})

	errs := make([]error, len(configs))
	var wg sync.WaitGroup
	for i, res := range configs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = builder.Build(context.Background(), res)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	cacheDir, err := builder.cacheDir(configs[0].Version)
	require.NoError(t, err)
	cache, err := loadCache(cacheDir)
	require.NoError(t, err)
	assert.Len(t, cache.Cache, 2)
	for _, res := range configs {
		r, err := builder.Build(context.Background(), res)
		require.NoError(t, err)
		assert.True(t, r.Cached, "quantum_depth %d rebuilt", res.Plan.Features.Quantum().Depth)
	}
}

// makeSourceArchive returns a release-style tar.gz holding top/LICENSE.
func makeSourceArchive(t *testing.T, top string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	body := []byte("ImageMagick License")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: top + "/", Typeflag: tar.TypeDir, Mode: 0o755}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: top + "/LICENSE", Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body))}))
	_, err := tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestBuildVerifiesArchiveChecksum(t *testing.T) {
	data := makeSourceArchive(t, "ImageMagick-7.0.8-10")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()
	good := sha256.Sum256(data)
	bad := sha256.Sum256([]byte("tampered"))

	tests := []struct {
		name    string
		sum     string
		wantErr error
	}{
		{"match", hex.EncodeToString(good[:]), nil},
		{"mismatch", hex.EncodeToString(bad[:]), source.ErrChecksum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, linux, nil)
			h.builder = NewBuilder(Options{
				WorkspaceDir: t.TempDir(),
				ArchiveURL:   srv.URL + "/7.0.8-10.tar.gz",
				SHA256:       tt.sum,
				Stdout:       io.Discard,
				Stderr:       io.Discard,
				NewExecutor:  h.builder.opts.NewExecutor,
			})

			r, err := h.builder.Build(context.Background(), h.resolved)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, h.calls, "configure ran after a checksum failure")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"configure", "build"}, h.calls)
			_, err = os.Stat(filepath.Join(r.Dir, "licenses", "LICENSE"))
			assert.NoError(t, err)
		})
	}
}

func TestBuildPackageErrorWithoutLicense(t *testing.T) {
	h := newHarness(t, linux, nil)
	h.builder.opts.Fetch = func(ctx context.Context, v module.Version, dir string) (string, error) {
		src := filepath.Join(dir, "src")
		return src, os.MkdirAll(src, 0o755)
	}
	_, err := h.builder.Build(context.Background(), h.resolved)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, recipe.StagePackage, se.Stage)
}

func TestBuildFetchError(t *testing.T) {
	h := newHarness(t, linux, nil)
	h.builder.opts.Fetch = func(ctx context.Context, v module.Version, dir string) (string, error) {
		return "", errors.New("network down")
	}
	_, err := h.builder.Build(context.Background(), h.resolved)
	require.Error(t, err)
	assert.Empty(t, h.calls, "configure ran after a failed fetch")
}

func TestBuildInProgress(t *testing.T) {
	h := newHarness(t, linux, nil)
	res := h.resolved

	cacheDir, err := h.builder.cacheDir(res.Version)
	require.NoError(t, err)
	lock := filepath.Join(cacheDir, cacheKey(res.Version.Version, res.Key())+".lock")
	unlock, err := lockedfile.MutexAt(lock).TryLock()
	require.NoError(t, err)
	defer unlock()

	_, err = h.builder.Build(context.Background(), res)
	assert.ErrorIs(t, err, ErrBuildInProgress)
	assert.Empty(t, h.calls)
}

func TestBuildStagesPkgConfig(t *testing.T) {
	dep := t.TempDir()
	pcDir := filepath.Join(dep, "lib", "pkgconfig")
	require.NoError(t, os.MkdirAll(pcDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pcDir, "zlib.pc"), []byte("Name: zlib\n"), 0o644))

	h := newHarness(t, linux, nil)
	h.builder.opts.Deps = []string{dep}
	var staged []string
	inner := h.builder.opts.NewExecutor
	h.builder.opts.NewExecutor = func(res *recipe.Resolution, ws Workspace, deps []string, stdout, stderr io.Writer) (Executor, error) {
		entries, err := os.ReadDir(ws.PkgConfigDir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			staged = append(staged, e.Name())
		}
		assert.Equal(t, []string{dep}, deps)
		return inner(res, ws, deps, stdout, stderr)
	}

	_, err := h.builder.Build(context.Background(), h.resolved)
	require.NoError(t, err)
	// Missing .pc files of the other delegates are skipped, not fatal.
	assert.Equal(t, []string{"zlib.pc"}, staged)
}

func TestBuildMSVCPackagesTree(t *testing.T) {
	win := recipe.Settings{OS: "Windows", Arch: "x86_64", Compiler: "Visual Studio", CompilerVersion: "15", CompilerRuntime: "MD"}
	h := newHarness(t, win, nil)
	src := t.TempDir()
	for _, f := range []string{
		"LICENSE",
		"MagickCore/MagickCore.h",
		"MagickWand/MagickWand.h",
		"Magick++/lib/Magick++.h",
		"Magick++/lib/Magick++/Image.h",
		"VisualMagick/lib/CORE_RL_MagickCore_.lib",
	} {
		p := filepath.Join(src, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}
	h.builder.opts.SourceDir = src

	r, err := h.builder.Build(context.Background(), h.resolved)
	require.NoError(t, err)
	assert.Equal(t, 0, h.fetches)
	for _, f := range []string{
		"include/ImageMagick-7/MagickCore/MagickCore.h",
		"include/ImageMagick-7/MagickWand/MagickWand.h",
		"include/ImageMagick-7/Magick++.h",
		"include/ImageMagick-7/Magick++/Image.h",
		"lib/CORE_RL_MagickCore_.lib",
		"licenses/LICENSE",
	} {
		_, err := os.Stat(filepath.Join(r.Dir, filepath.FromSlash(f)))
		assert.NoError(t, err, f)
	}
}

func TestResultEnviron(t *testing.T) {
	r := &Result{Env: map[string]string{"PATH": "/pkg/bin"}}
	sep := string(os.PathListSeparator)

	got := r.Environ([]string{"HOME=/root", "PATH=/usr/bin"})
	assert.Equal(t, []string{"HOME=/root", "PATH=/usr/bin" + sep + "/pkg/bin"}, got)

	got = r.Environ([]string{"HOME=/root"})
	assert.Equal(t, []string{"HOME=/root", "PATH=/pkg/bin"}, got)
}
