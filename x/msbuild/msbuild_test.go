package msbuild

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/goplus/llarmagick/recipe"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func msvcPlan(t *testing.T) *recipe.MSVCPlan {
	t.Helper()
	tc := recipe.Toolchain{OS: "Windows", Arch: "x86_64", Compiler: "Visual Studio", Version: "16", Runtime: "MT", BuildType: "Release"}
	fs, err := recipe.Normalize(recipe.Latest, tc, map[string]string{"png": "False", recipe.OptQuantumDepth: "8"})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	plan, err := recipe.Dispatch(tc, fs)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	return plan.MSVC
}

func seedTree(t *testing.T) string {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "MagickCore", "magick-baseconfig.h"), "#define MAGICKCORE_QUANTUM_DEPTH 16\n#define MAGICKCORE_HDRI_ENABLE 1\n")
	writeFile(t, filepath.Join(src, "config", "config.h"), "#define MAGICKCORE_PNG_DELEGATE\n#define MAGICKCORE_OPENEXR_DELEGATE\n#define MAGICKCORE_ZLIB_DELEGATE\n")
	return src
}

func TestRun(t *testing.T) {
	src := seedTree(t)
	m := New(src)
	m.SetOutput(io.Discard, io.Discard)

	var cmds []*exec.Cmd
	var patchedBeforeModules bool
	m.runCmd = func(cmd *exec.Cmd) error {
		if strings.Contains(strings.Join(cmd.Args, " "), "CORE_MagickCore_") {
			data, _ := os.ReadFile(filepath.Join(src, "config", "config.h"))
			patchedBeforeModules = strings.Contains(string(data), "// #define MAGICKCORE_PNG_DELEGATE")
		}
		cmds = append(cmds, cmd)
		return nil
	}

	plan := msvcPlan(t)
	if err := m.Run(context.Background(), plan); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := 2 + len(plan.Targets); len(cmds) != want {
		t.Fatalf("spawned %d commands, want %d", len(cmds), want)
	}

	bootstrap := cmds[0].Args
	wantBootstrap := []string{"msbuild", filepath.Join(src, "VisualMagick", "configure", "configure.vcxproj"), "/p:Configuration=Release", "/p:Platform=Win32", "/m", "/nologo"}
	if !reflect.DeepEqual(bootstrap, wantBootstrap) {
		t.Errorf("bootstrap = %q, want %q", bootstrap, wantBootstrap)
	}

	configurator := cmds[1]
	exe := filepath.Join(src, "VisualMagick", "configure", "configure.exe")
	if configurator.Args[0] != exe || configurator.Dir != filepath.Dir(exe) {
		t.Errorf("configurator = %q in %q", configurator.Args, configurator.Dir)
	}
	if !reflect.DeepEqual(configurator.Args[1:], plan.ConfiguratorArgs) {
		t.Errorf("configurator args = %q, want %q", configurator.Args[1:], plan.ConfiguratorArgs)
	}
	if !patchedBeforeModules {
		t.Error("patches must be applied before the module projects build")
	}

	base, _ := os.ReadFile(filepath.Join(src, "MagickCore", "magick-baseconfig.h"))
	if !strings.Contains(string(base), "#define MAGICKCORE_QUANTUM_DEPTH 8") {
		t.Errorf("baseconfig not patched:\n%s", base)
	}
	cfg, _ := os.ReadFile(filepath.Join(src, "config", "config.h"))
	if !strings.Contains(string(cfg), "// #define MAGICKCORE_OPENEXR_DELEGATE") {
		t.Errorf("pruned openexr not disabled:\n%s", cfg)
	}
	if strings.Contains(string(cfg), "// #define MAGICKCORE_ZLIB_DELEGATE") {
		t.Errorf("enabled zlib must stay:\n%s", cfg)
	}

	last := cmds[len(cmds)-1].Args
	if !strings.HasSuffix(last[1], "CORE_coders_StaticMT.vcxproj") || last[3] != "/p:Platform=x64" {
		t.Errorf("last target = %q", last)
	}
}

func TestRunStopsOnBootstrapFailure(t *testing.T) {
	m := New(seedTree(t))
	m.SetOutput(io.Discard, io.Discard)
	calls := 0
	m.runCmd = func(*exec.Cmd) error {
		calls++
		return errors.New("exit status 1")
	}
	err := m.Run(context.Background(), msvcPlan(t))
	if err == nil || !strings.HasPrefix(err.Error(), "bootstrap:") {
		t.Fatalf("Run err = %v", err)
	}
	if calls != 1 {
		t.Errorf("ran %d commands after a failed bootstrap", calls)
	}
}

func TestApplyPatchesMissingFile(t *testing.T) {
	patches := []recipe.Patch{{File: recipe.ConfigHeader, Op: recipe.DisableDefine, Name: "MAGICKCORE_PNG_DELEGATE"}}
	if err := ApplyPatches(t.TempDir(), patches); err == nil {
		t.Fatal("ApplyPatches must fail on a missing file")
	}
}

func TestApplyPatchesIdempotent(t *testing.T) {
	src := seedTree(t)
	patches := msvcPlan(t).Patches
	if err := ApplyPatches(src, patches); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(src, "config", "config.h")
	first, _ := os.ReadFile(path)
	info, _ := os.Stat(path)
	if err := ApplyPatches(src, patches); err != nil {
		t.Fatal(err)
	}
	second, _ := os.ReadFile(path)
	info2, _ := os.Stat(path)
	if string(first) != string(second) {
		t.Errorf("second application changed the file:\n%s\n---\n%s", first, second)
	}
	if !info.ModTime().Equal(info2.ModTime()) {
		t.Error("unchanged file was rewritten")
	}
}
