// Package build drives a resolved configuration through source, configure,
// build and package, and caches the packaged result per configuration.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/goplus/llarmagick/internal/build/lockedfile"
	"github.com/goplus/llarmagick/internal/source"
	"github.com/goplus/llarmagick/mod/module"
	"github.com/goplus/llarmagick/recipe"
	"github.com/qiniu/x/log"
)

// FetchFunc obtains the source tree of v under dir and returns its path.
type FetchFunc func(ctx context.Context, v module.Version, dir string) (string, error)

// Options configures a Builder.
type Options struct {
	WorkspaceDir string

	// SourceDir is an already unpacked source tree. When empty the source
	// is fetched into the build's scratch directory.
	SourceDir string
	Fetch     FetchFunc

	// ArchiveURL and SHA256 configure the default fetch. An empty URL means
	// the upstream release archive; an empty SHA256 skips verification.
	ArchiveURL string
	SHA256     string

	// Deps are install roots of delegate libraries.
	Deps []string

	// Force rebuilds even when a cached package exists.
	Force bool

	Stdout io.Writer
	Stderr io.Writer

	NewExecutor NewExecutorFunc
}

// Result describes a packaged build.
type Result struct {
	Dir        string // package directory
	Descriptor recipe.ArtifactDescriptor
	State      recipe.State
	Cached     bool

	// Env holds path-list variables consumers append to, such as PATH
	// with the package's bin directory.
	Env map[string]string
}

// Environ returns base with every variable of r.Env appended to.
func (r *Result) Environ(base []string) []string {
	out := make([]string, 0, len(base)+len(r.Env))
	seen := make(map[string]bool, len(r.Env))
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if add, has := r.Env[k]; ok && has {
			if v != "" {
				add = v + string(os.PathListSeparator) + add
			}
			kv = k + "=" + add
			seen[k] = true
		}
		out = append(out, kv)
	}
	for _, k := range sortedKeys(r.Env) {
		if !seen[k] {
			out = append(out, k+"="+r.Env[k])
		}
	}
	return out
}

// Builder builds resolved configurations into a workspace.
type Builder struct {
	opts Options
}

// NewBuilder returns a Builder. Unset hooks fall back to source.Fetch and
// NewExecutor.
func NewBuilder(opts Options) *Builder {
	if opts.Fetch == nil {
		opts.Fetch = fetchArchive(opts.ArchiveURL, opts.SHA256)
	}
	if opts.NewExecutor == nil {
		opts.NewExecutor = NewExecutor
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Builder{opts: opts}
}

func fetchArchive(url, sum string) FetchFunc {
	return func(ctx context.Context, v module.Version, dir string) (string, error) {
		u := url
		if u == "" {
			u = source.ArchiveURL(v)
		}
		return source.Fetch(ctx, u, sum, dir)
	}
}

// cacheDir returns the upstream-level directory: workspaceDir/<escapedPath>.
func (b *Builder) cacheDir(v module.Version) (string, error) {
	escaped, err := module.EscapePath(v.Path)
	if err != nil {
		return "", err
	}
	return filepath.Join(b.opts.WorkspaceDir, escaped), nil
}

// installDir returns the package directory:
// workspaceDir/<escapedPath>@<version>-<key>.
func (b *Builder) installDir(v module.Version, key string) (string, error) {
	escaped, err := module.EscapePath(v.Path)
	if err != nil {
		return "", err
	}
	return filepath.Join(b.opts.WorkspaceDir, fmt.Sprintf("%s@%s-%s", escaped, v.Version, key)), nil
}

// Build builds res unless a cached package exists. A concurrent build of
// the same configuration fails fast with ErrBuildInProgress.
func (b *Builder) Build(ctx context.Context, res *recipe.Resolution) (*Result, error) {
	key := res.Key()
	cacheDir, err := b.cacheDir(res.Version)
	if err != nil {
		return nil, err
	}
	installDir, err := b.installDir(res.Version, key)
	if err != nil {
		return nil, err
	}

	lock := filepath.Join(cacheDir, cacheKey(res.Version.Version, key)+".lock")
	unlock, err := lockedfile.MutexAt(lock).TryLock()
	if errors.Is(err, lockedfile.ErrLocked) {
		return nil, ErrBuildInProgress
	}
	if err != nil {
		return nil, err
	}
	defer unlock()

	cache, err := loadCache(cacheDir)
	if err != nil {
		log.Warnf("ignore unreadable build cache: %v", err)
		cache = &buildCache{}
	}
	entry, cached := cache.get(res.Version.Version, key)
	if cached && !b.opts.Force {
		if _, err := os.Stat(installDir); err == nil {
			log.Infof("%s: using cached build %s", res.Version, key)
			return newResult(installDir, entry.Descriptor, true), nil
		}
	}

	// The package dir is rewritten from here on, so the entry must go first.
	if cached {
		err := updateCache(cacheDir, func(c *buildCache) {
			c.remove(res.Version.Version, key)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update build cache: %w", err)
		}
	}

	desc, err := b.build(ctx, res, installDir)
	if err != nil {
		if rerr := os.RemoveAll(installDir); rerr != nil {
			log.Warnf("failed to remove %s: %v", installDir, rerr)
		}
		return nil, err
	}

	m := res.Matrix()
	err = updateCache(cacheDir, func(c *buildCache) {
		c.set(res.Version.Version, key, &buildEntry{
			Descriptor: desc,
			Matrix:     m.String(),
			BuildTime:  time.Now(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save build cache: %w", err)
	}
	return newResult(installDir, desc, false), nil
}

func (b *Builder) build(ctx context.Context, res *recipe.Resolution, installDir string) (recipe.ArtifactDescriptor, error) {
	var none recipe.ArtifactDescriptor
	lc := recipe.NewLifecycle()
	workDir := installDir + ".work"

	if err := os.RemoveAll(installDir); err != nil {
		return none, err
	}
	if err := os.RemoveAll(workDir); err != nil {
		return none, err
	}

	srcDir := b.opts.SourceDir
	if srcDir == "" {
		dir, err := b.opts.Fetch(ctx, res.Version, workDir)
		if err != nil {
			return none, fmt.Errorf("failed to fetch %s: %w", res.Version, err)
		}
		srcDir = dir
	}

	ws := Workspace{
		SourceDir:    srcDir,
		BuildDir:     filepath.Join(workDir, "build"),
		InstallDir:   installDir,
		PkgConfigDir: filepath.Join(workDir, "pkgconfig"),
	}

	fail := func(stage recipe.Stage, err error) (recipe.ArtifactDescriptor, error) {
		if lerr := lc.Fail(err); lerr != nil {
			log.Warnf("lifecycle: %v", lerr)
		}
		return none, &StageError{Stage: stage, Err: err}
	}

	if err := lc.Configure(res.Plan.Family); err != nil {
		return none, err
	}
	if res.Plan.Family == recipe.FamilyPOSIX {
		if _, err := stagePkgConfig(ws.PkgConfigDir, res.Plan.Features, b.opts.Deps); err != nil {
			return fail(recipe.StageConfigure, err)
		}
	}
	exec, err := b.opts.NewExecutor(res, ws, b.opts.Deps, b.opts.Stdout, b.opts.Stderr)
	if err != nil {
		return fail(recipe.StageConfigure, err)
	}
	if err := exec.Configure(ctx); err != nil {
		return fail(recipe.StageConfigure, err)
	}
	if err := exec.Build(ctx); err != nil {
		return fail(recipe.StageBuild, err)
	}
	if err := lc.Built(); err != nil {
		return none, err
	}

	if res.Plan.Family == recipe.FamilyMSVC {
		if err := packageMSVC(srcDir, installDir, res.Major); err != nil {
			return fail(recipe.StagePackage, err)
		}
	}
	if err := copyLicense(srcDir, installDir); err != nil {
		return fail(recipe.StagePackage, err)
	}
	if err := lc.Packaged(); err != nil {
		return none, err
	}
	if err := os.RemoveAll(workDir); err != nil {
		log.Warnf("failed to remove %s: %v", workDir, err)
	}
	return res.Artifacts, nil
}

func newResult(dir string, desc recipe.ArtifactDescriptor, cached bool) *Result {
	r := &Result{
		Dir:        dir,
		Descriptor: desc,
		State:      recipe.StatePackaged,
		Cached:     cached,
		Env:        map[string]string{},
	}
	var bins []string
	for _, d := range desc.BinDirs {
		bins = append(bins, filepath.Join(dir, filepath.FromSlash(d)))
	}
	if len(bins) > 0 {
		r.Env["PATH"] = strings.Join(bins, string(os.PathListSeparator))
	}
	return r
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
