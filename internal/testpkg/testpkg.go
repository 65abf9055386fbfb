// Package testpkg compiles a small consumer program against a packaged
// build and checks that the requested delegates were compiled in.
package testpkg

import (
	"bufio"
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/goplus/llarmagick/recipe"
	"github.com/goplus/llarmagick/x/cmake"
	"github.com/qiniu/x/log"
)

//go:embed project
var project embed.FS

// ErrNoDelegates is returned when the program output has no delegates line.
var ErrNoDelegates = errors.New("testpkg: no delegates line in program output")

// Options configures a consumer check.
type Options struct {
	PackageDir string // root of the packaged build
	WorkDir    string // scratch directory for the consumer project
	Toolchain  recipe.Toolchain
	Artifacts  recipe.ArtifactDescriptor
	Stdout     io.Writer
	Stderr     io.Writer
}

// Check builds the consumer program, runs it and verifies the delegates it
// reports against features.
func Check(ctx context.Context, features *recipe.FeatureSet, opts Options) error {
	srcDir := filepath.Join(opts.WorkDir, "src")
	buildDir := filepath.Join(opts.WorkDir, "build")
	if err := writeProject(srcDir); err != nil {
		return err
	}

	c := cmake.New(srcDir, buildDir)
	if opts.Stdout != nil {
		c.SetOutput(opts.Stdout, opts.Stderr)
	}
	configure(c, opts)
	if err := c.Configure(ctx); err != nil {
		return fmt.Errorf("testpkg: configure: %w", err)
	}
	if err := c.Build(ctx); err != nil {
		return fmt.Errorf("testpkg: build: %w", err)
	}

	bin, err := findBinary(buildDir, opts.Toolchain.BuildType)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, bin)
	cmd.Env = runEnv(os.Environ(), opts.PackageDir)
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("testpkg: run %s: %w", bin, err)
	}
	log.Debug(string(out))

	line, err := Delegates(out)
	if err != nil {
		return err
	}
	return recipe.VerifyDelegates(features, line)
}

func configure(c *cmake.CMake, opts Options) {
	includes := make([]string, len(opts.Artifacts.IncludeDirs))
	for i, dir := range opts.Artifacts.IncludeDirs {
		includes[i] = filepath.ToSlash(filepath.Join(opts.PackageDir, filepath.FromSlash(dir)))
	}
	c.DefineList("MAGICK_INCLUDE_DIRS", includes)
	c.DefineList("MAGICK_LIBRARY_DIRS", []string{filepath.ToSlash(filepath.Join(opts.PackageDir, "lib"))})
	c.DefineList("MAGICK_LIBRARIES", opts.Artifacts.Libs)
	c.DefineList("MAGICK_DEFINITIONS", opts.Artifacts.Defines)
	c.BuildType(opts.Toolchain.BuildType)
	if opts.Toolchain.Family() == recipe.FamilyMSVC && opts.Toolchain.Arch == "x86" {
		c.Platform("Win32")
	}
}

func writeProject(dir string) error {
	sub, err := fs.Sub(project, "project")
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.CopyFS(dir, sub)
}

// findBinary locates test_package in single- and multi-config layouts.
func findBinary(buildDir, buildType string) (string, error) {
	name := "test_package"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	for _, p := range []string{
		filepath.Join(buildDir, name),
		filepath.Join(buildDir, buildType, name),
		filepath.Join(buildDir, "bin", name),
	} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("testpkg: %s not found below %s", name, buildDir)
}

// runEnv makes the package's shared libraries loadable.
func runEnv(base []string, pkgDir string) []string {
	key := "LD_LIBRARY_PATH"
	dirs := []string{filepath.Join(pkgDir, "lib")}
	switch runtime.GOOS {
	case "darwin":
		key = "DYLD_LIBRARY_PATH"
	case "windows":
		key = "PATH"
		dirs = append(dirs, filepath.Join(pkgDir, "bin"))
	}
	value := strings.Join(dirs, string(os.PathListSeparator))
	out := make([]string, 0, len(base)+1)
	found := false
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.EqualFold(k, key) {
			if v != "" {
				value += string(os.PathListSeparator) + v
			}
			kv = k + "=" + value
			found = true
		}
		out = append(out, kv)
	}
	if !found {
		out = append(out, key+"="+value)
	}
	return out
}

// delegateLabels are the labels the delegate list is printed under: by the
// consumer program and by "magick -version".
var delegateLabels = []string{"ImageMagick delegates", "Delegates (built-in)"}

// Delegates returns the delegate list found in output.
func Delegates(output []byte) (string, error) {
	sc := bufio.NewScanner(bytes.NewReader(output))
	for sc.Scan() {
		label, value, ok := strings.Cut(sc.Text(), ":")
		if ok && slices.Contains(delegateLabels, strings.TrimSpace(label)) {
			return strings.TrimSpace(value), nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", ErrNoDelegates
}
