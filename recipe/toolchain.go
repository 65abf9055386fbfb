package recipe

import "slices"

// Settings are the raw target settings handed over by the orchestrator.
type Settings struct {
	OS              string `json:"os" yaml:"os"`
	Arch            string `json:"arch" yaml:"arch"`
	Compiler        string `json:"compiler" yaml:"compiler"`
	CompilerVersion string `json:"compiler_version" yaml:"compiler_version"`
	CompilerRuntime string `json:"compiler_runtime,omitempty" yaml:"compiler_runtime"`
	BuildType       string `json:"build_type" yaml:"build_type"`
}

// Family is the compiler family, which selects the build strategy.
type Family int

const (
	FamilyPOSIX Family = iota + 1 // configure / make
	FamilyMSVC                    // VisualMagick project files
)

func (f Family) String() string {
	switch f {
	case FamilyPOSIX:
		return "posix"
	case FamilyMSVC:
		return "msvc"
	}
	return "unknown"
}

var msvcCompilers = []string{"Visual Studio", "msvc"}

var buildTypes = []string{"Debug", "Release", "RelWithDebInfo", "MinSizeRel"}

// Toolchain identifies the compiler and target of one build.
type Toolchain struct {
	OS        string
	Arch      string
	Compiler  string
	Version   string
	Runtime   string // MSVC only: MT, MTd, MD or MDd
	BuildType string
}

// ParseToolchain validates s. Lookup tables are consulted later by Dispatch;
// here only presence and the family-level combinations are checked.
func ParseToolchain(s Settings) (Toolchain, error) {
	tc := Toolchain{
		OS:        s.OS,
		Arch:      s.Arch,
		Compiler:  s.Compiler,
		Version:   s.CompilerVersion,
		Runtime:   s.CompilerRuntime,
		BuildType: s.BuildType,
	}
	required := []struct{ name, value string }{
		{"os", tc.OS}, {"arch", tc.Arch}, {"compiler", tc.Compiler},
	}
	for _, r := range required {
		if r.value == "" {
			return Toolchain{}, optionErr(r.name, r.value, "setting is required")
		}
	}
	if tc.BuildType == "" {
		tc.BuildType = "Release"
	}
	if !slices.Contains(buildTypes, tc.BuildType) {
		return Toolchain{}, optionErr("build_type", tc.BuildType, "want one of Debug, Release, RelWithDebInfo, MinSizeRel")
	}

	if tc.Family() != FamilyMSVC {
		if tc.Runtime != "" {
			return Toolchain{}, optionErr("compiler.runtime", tc.Runtime, "only applies to MSVC compilers")
		}
		return tc, nil
	}
	if !tc.IsWindows() {
		return Toolchain{}, optionErr("compiler", tc.Compiler, "MSVC compilers require os=Windows")
	}
	if tc.Runtime == "" {
		tc.Runtime = "MD"
		if tc.Debug() {
			tc.Runtime = "MDd"
		}
	}
	return tc, nil
}

// Family returns the compiler family of tc.
func (tc Toolchain) Family() Family {
	if slices.Contains(msvcCompilers, tc.Compiler) {
		return FamilyMSVC
	}
	return FamilyPOSIX
}

// IsWindows reports whether tc targets Windows.
func (tc Toolchain) IsWindows() bool { return tc.OS == "Windows" }

// IsLinux reports whether tc targets Linux.
func (tc Toolchain) IsLinux() bool { return tc.OS == "Linux" }

// Debug reports whether tc builds debug binaries.
func (tc Toolchain) Debug() bool { return tc.BuildType == "Debug" }

// MSVC lookup tables. A miss in any of them is a configuration error.
var (
	ideVersions = map[string]string{
		"9":  "/VS2002",
		"10": "/VS2010",
		"11": "/VS2012",
		"12": "/VS2013",
		"14": "/VS2015",
		"15": "/VS2017",
		"16": "/VS2019",
	}
	runtimeSwitches = map[string]string{
		"MT":  "/smt",
		"MTd": "/smtd",
		"MD":  "/dmt",
		"MDd": "/mdt",
	}
	// MD and MDd share the dynamic solution.
	solutionSuffixes = map[string]string{
		"MT":  "StaticMT",
		"MTd": "StaticMTD",
		"MD":  "DynamicMT",
		"MDd": "DynamicMT",
	}
	platforms = map[string]string{
		"x86":    "Win32",
		"x86_64": "x64",
	}
)

// Table names used in ConfigError.Table.
const (
	TableIDEVersion = "compiler.version"
	TableRuntime    = "compiler.runtime"
	TableSolution   = "solution"
	TablePlatform   = "platform"
)

func lookup(table string, m map[string]string, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", lookupErr(table, key)
	}
	return v, nil
}
