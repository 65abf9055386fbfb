package recipe

import (
	"errors"
	"reflect"
	"slices"
	"testing"

	"github.com/goplus/llarmagick/mod/module"
)

var linuxSettings = Settings{OS: "Linux", Arch: "x86_64", Compiler: "gcc", CompilerVersion: "9", BuildType: "Release"}

func TestResolveScenarioStaticHDRI(t *testing.T) {
	res, err := Resolve(RawConfig{
		Settings: linuxSettings,
		Options:  map[string]string{OptShared: "False", OptHDRI: "True", OptQuantumDepth: "16"},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{"MagickCore-7.Q16HDRI", "MagickWand-7.Q16HDRI", "Magick++-7.Q16HDRI", "pthread"}
	if !reflect.DeepEqual(res.Artifacts.Libs, want) {
		t.Errorf("Libs = %v, want %v", res.Artifacts.Libs, want)
	}
	for _, def := range []string{"MAGICKCORE_QUANTUM_DEPTH=16", "MAGICKCORE_HDRI_ENABLE=1", "_MAGICKLIB_=1"} {
		if !slices.Contains(res.Artifacts.Defines, def) {
			t.Errorf("Defines %v missing %s", res.Artifacts.Defines, def)
		}
	}
	if res.Version != Upstream || res.Major != 7 {
		t.Errorf("Version = %v, Major = %d", res.Version, res.Major)
	}
}

func TestResolveScenarioShared(t *testing.T) {
	static, err := Resolve(RawConfig{Settings: linuxSettings, Options: map[string]string{OptShared: "False"}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	shared, err := Resolve(RawConfig{Settings: linuxSettings, Options: map[string]string{OptShared: "True"}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !slices.Contains(shared.Artifacts.Defines, DefineShared) {
		t.Errorf("Defines = %v, want %s", shared.Artifacts.Defines, DefineShared)
	}
	if !reflect.DeepEqual(static.Artifacts.Libs, shared.Artifacts.Libs) {
		t.Errorf("Libs differ by linkage: %v vs %v", static.Artifacts.Libs, shared.Artifacts.Libs)
	}
	if static.Key() == shared.Key() {
		t.Error("static and shared must map to different build directories")
	}
}

func TestResolveScenarioMSVCDebug(t *testing.T) {
	res, err := Resolve(RawConfig{
		Settings: Settings{OS: "Windows", Arch: "x86_64", Compiler: "Visual Studio", CompilerVersion: "16", BuildType: "Debug"},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Toolchain.Runtime != "MDd" {
		t.Errorf("default debug runtime = %q, want MDd", res.Toolchain.Runtime)
	}
	if res.Artifacts.Libs[0] != "CORE_DB_MagickCore_" {
		t.Errorf("Libs = %v", res.Artifacts.Libs)
	}
}

func TestResolveScenarioLegacyJPEG(t *testing.T) {
	res, err := Resolve(RawConfig{Settings: linuxSettings, Options: map[string]string{OptLegacyJPEG: "True"}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	opts := res.Features.Options()
	if opts[OptWithLibjpeg] != "libjpeg" {
		t.Errorf("with_libjpeg = %q, want libjpeg", opts[OptWithLibjpeg])
	}
	if _, ok := opts[OptLegacyJPEG]; ok {
		t.Error("normalized options still carry jpeg")
	}
	if _, ok := res.Matrix().Options[OptLegacyJPEG]; ok {
		t.Error("configuration key still carries jpeg")
	}
}

func TestResolveDeterministic(t *testing.T) {
	cfg := RawConfig{
		Version:  module.Version{Path: "ImageMagick/ImageMagick", Version: "7.0.8-10"},
		Settings: Settings{OS: "Windows", Arch: "x86", Compiler: "Visual Studio", CompilerVersion: "15", CompilerRuntime: "MT"},
		Options:  map[string]string{OptQuantumDepth: "32", "webp": "False"},
	}
	a, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	b, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Resolve is not deterministic:\n%+v\n%+v", a, b)
	}
	if a.Key() != b.Key() {
		t.Errorf("Key() differs: %s vs %s", a.Key(), b.Key())
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  RawConfig
	}{
		{"missing os", RawConfig{Settings: Settings{Arch: "x86_64", Compiler: "gcc"}}},
		{"bad build type", RawConfig{Settings: Settings{OS: "Linux", Arch: "x86_64", Compiler: "gcc", BuildType: "Fast"}}},
		{"runtime on gcc", RawConfig{Settings: Settings{OS: "Linux", Arch: "x86_64", Compiler: "gcc", CompilerRuntime: "MT"}}},
		{"msvc on linux", RawConfig{Settings: Settings{OS: "Linux", Arch: "x86_64", Compiler: "Visual Studio", CompilerVersion: "16"}}},
		{"bad version", RawConfig{Version: module.Version{Version: "latest"}, Settings: linuxSettings}},
		{"unknown schema", RawConfig{Schema: 9, Settings: linuxSettings}},
		{"unsupported compiler version", RawConfig{Settings: Settings{OS: "Windows", Arch: "x86_64", Compiler: "Visual Studio", CompilerVersion: "17"}}},
		{"bad depth", RawConfig{Settings: linuxSettings, Options: map[string]string{OptQuantumDepth: "24"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Resolve(tt.cfg)
			if res != nil {
				t.Fatalf("Resolve returned a partial resolution: %+v", res)
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("err = %v, want *ConfigError", err)
			}
		})
	}
}

func TestResolveMatrix(t *testing.T) {
	res, err := Resolve(RawConfig{Settings: linuxSettings})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	m := res.Matrix()
	if m.CombinationCount() != 1 {
		t.Fatalf("resolution matrix must be single valued, got %d combinations", m.CombinationCount())
	}
	if got := m.Require["os"]; !reflect.DeepEqual(got, []string{"Linux"}) {
		t.Errorf("Require[os] = %v", got)
	}
	if _, ok := m.Require["compiler.runtime"]; ok {
		t.Error("POSIX configuration must not carry a runtime")
	}
}
