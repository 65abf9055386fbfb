package recipe

import (
	"fmt"
	"path"
)

// Linkage defines; exactly one is emitted.
const (
	DefineShared = "_MAGICKDLL_=1"
	DefineStatic = "_MAGICKLIB_=1"
)

// ArtifactDescriptor is what downstream consumers link against. The order
// of Libs is part of the contract.
type ArtifactDescriptor struct {
	IncludeDirs []string `json:"includedirs"`
	Libs        []string `json:"libs"`
	Defines     []string `json:"defines"`
	BinDirs     []string `json:"bindirs"`
}

// LibName returns the file name stem of module for the given toolchain.
//
// MSVC names only carry the build type: quantum depth and HDRI are compiled
// into the binary through defines and do not appear in the name.
func LibName(tc Toolchain, q QuantumConfig, module string, major int) string {
	if tc.Family() == FamilyMSVC {
		kind := "RL"
		if tc.Debug() {
			kind = "DB"
		}
		return fmt.Sprintf("CORE_%s_%s_", kind, module)
	}
	suffix := ""
	if q.HDRI {
		suffix = "HDRI"
	}
	return fmt.Sprintf("%s-%d.Q%d%s", module, major, q.Depth, suffix)
}

// Describe returns the artifact descriptor of a successful build.
func Describe(tc Toolchain, q QuantumConfig, shared bool, major int) ArtifactDescriptor {
	libs := make([]string, 0, len(Modules)+2)
	for _, m := range Modules {
		libs = append(libs, LibName(tc, q, m, major))
	}
	if tc.Family() == FamilyMSVC && !shared {
		libs = append(libs, LibName(tc, q, codersModule, major))
	}
	if tc.IsLinux() {
		libs = append(libs, "pthread")
	}

	hdri := 0
	if q.HDRI {
		hdri = 1
	}
	linkage := DefineStatic
	if shared {
		linkage = DefineShared
	}
	return ArtifactDescriptor{
		IncludeDirs: []string{path.Join("include", fmt.Sprintf("ImageMagick-%d", major))},
		Libs:        libs,
		Defines: []string{
			fmt.Sprintf("MAGICKCORE_QUANTUM_DEPTH=%d", q.Depth),
			fmt.Sprintf("MAGICKCORE_HDRI_ENABLE=%d", hdri),
			linkage,
		},
		BinDirs: []string{"bin"},
	}
}
