// Package autotools drives the configure/make/make-install workflow of a
// POSIX build plan.
package autotools

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/goplus/llarmagick/recipe"
)

// AutoTools drives Autotools-style builds. Environment changes are kept on
// the value and passed to every spawned command; the process environment
// is never modified.
type AutoTools struct {
	sourceDir  string
	buildDir   string
	installDir string
	env        map[string]string
	stdout     io.Writer
	stderr     io.Writer

	runCmd func(*exec.Cmd) error
}

// New returns a ready-to-use AutoTools. An empty buildDir builds in-tree.
func New(sourceDir, buildDir, installDir string) *AutoTools {
	return &AutoTools{
		sourceDir:  sourceDir,
		buildDir:   buildDir,
		installDir: installDir,
		env:        make(map[string]string),
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		runCmd:     (*exec.Cmd).Run,
	}
}

// Source overrides the source directory.
func (a *AutoTools) Source(dir string) { a.sourceDir = dir }

// SetOutput redirects the output of spawned commands.
func (a *AutoTools) SetOutput(stdout, stderr io.Writer) {
	a.stdout, a.stderr = stdout, stderr
}

// Env sets key=value for every command spawned later.
func (a *AutoTools) Env(key, value string) { a.env[key] = value }

// Use adds include/lib/pkgconfig paths of a dependency installed at root.
func (a *AutoTools) Use(root string) error {
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("use %s: %w", root, err)
	}
	includeDir := filepath.Join(root, "include")
	libDir := filepath.Join(root, "lib")
	pkgconfigDir := filepath.Join(libDir, "pkgconfig")

	if _, err := os.Stat(pkgconfigDir); err == nil {
		a.prependPath("PKG_CONFIG_PATH", pkgconfigDir)
	}
	if runtime.GOOS == "windows" {
		if _, err := os.Stat(includeDir); err == nil {
			a.prependPath("INCLUDE", includeDir)
		}
		if _, err := os.Stat(libDir); err == nil {
			a.prependPath("LIB", libDir)
		}
		return nil
	}
	if _, err := os.Stat(includeDir); err == nil {
		a.appendFlag("CPPFLAGS", "-I"+includeDir)
	}
	if _, err := os.Stat(libDir); err == nil {
		a.appendFlag("LDFLAGS", "-L"+libDir)
	}
	return nil
}

// Run executes plan: configure with the plan's flags and environment,
// then make and make install.
func (a *AutoTools) Run(ctx context.Context, plan *recipe.POSIXPlan) error {
	if err := a.ConfigurePlan(ctx, plan); err != nil {
		return fmt.Errorf("configure: %w", err)
	}
	if err := a.Build(ctx); err != nil {
		return fmt.Errorf("make: %w", err)
	}
	if err := a.Install(ctx); err != nil {
		return fmt.Errorf("make install: %w", err)
	}
	return nil
}

// ConfigurePlan adds the plan's environment and runs configure with its
// arguments.
func (a *AutoTools) ConfigurePlan(ctx context.Context, plan *recipe.POSIXPlan) error {
	for _, k := range sortedKeys(plan.Env) {
		a.appendFlag(k, plan.Env[k])
	}
	return a.Configure(ctx, plan.ConfigureArgs...)
}

// Configure runs <sourceDir>/configure inside buildDir.
// --prefix is prepended automatically when installDir is set.
func (a *AutoTools) Configure(ctx context.Context, args ...string) error {
	dir := a.workDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	exe := filepath.Join(a.sourceDir, "configure")
	if dir == "." {
		exe = "./configure"
	}
	flags := make([]string, 0, 1+len(args))
	if a.installDir != "" {
		flags = append(flags, "--prefix="+a.installDir)
	}
	return a.run(ctx, exe, append(flags, args...))
}

// Build runs "make" with optional extra arguments.
func (a *AutoTools) Build(ctx context.Context, args ...string) error {
	return a.run(ctx, "make", args)
}

// Install runs "make install" with optional extra arguments appended.
func (a *AutoTools) Install(ctx context.Context, args ...string) error {
	return a.run(ctx, "make", append([]string{"install"}, args...))
}

// OutputDir returns installDir if set, otherwise buildDir.
func (a *AutoTools) OutputDir() string {
	if a.installDir != "" {
		return a.installDir
	}
	return a.buildDir
}

func (a *AutoTools) workDir() string {
	if a.buildDir == "" {
		return "."
	}
	return a.buildDir
}

func (a *AutoTools) run(ctx context.Context, name string, args []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = a.workDir()
	cmd.Stdout = a.stdout
	cmd.Stderr = a.stderr
	if len(a.env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), a.env)
	}
	return a.runCmd(cmd)
}

// mergeEnv returns base with every key in overrides replaced or appended.
func mergeEnv(base []string, overrides map[string]string) []string {
	out := slices.Clone(base)
	idx := make(map[string]int, len(out))
	for i, kv := range out {
		if k, _, ok := strings.Cut(kv, "="); ok {
			idx[k] = i
		}
	}
	for _, k := range sortedKeys(overrides) {
		if i, ok := idx[k]; ok {
			out[i] = k + "=" + overrides[k]
		} else {
			out = append(out, k+"="+overrides[k])
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// lookupEnv reads key from the pending overrides, falling back to the
// process environment.
func (a *AutoTools) lookupEnv(key string) string {
	if v, ok := a.env[key]; ok {
		return v
	}
	return os.Getenv(key)
}

// prependPath prepends value to a PATH-style variable.
func (a *AutoTools) prependPath(key, value string) {
	if cur := a.lookupEnv(key); cur != "" {
		value += string(os.PathListSeparator) + cur
	}
	a.env[key] = value
}

// appendFlag appends a space-separated flag to a variable.
func (a *AutoTools) appendFlag(key, flag string) {
	if cur := a.lookupEnv(key); cur != "" {
		flag = cur + " " + flag
	}
	a.env[key] = flag
}
