package recipe

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/qiniu/x/log"
)

// Plan is the build strategy chosen for one configuration. Exactly one of
// POSIX and MSVC is set.
type Plan struct {
	Family   Family
	POSIX    *POSIXPlan
	MSVC     *MSVCPlan
	Features *FeatureSet // effective features after pruning
	Pruned   []Delegate  // requested delegates the toolchain cannot build
}

// POSIXPlan is a configure / make / make install build.
type POSIXPlan struct {
	ConfigureArgs []string
	Env           map[string]string
}

// MSVCPlan is the three-stage VisualMagick build.
type MSVCPlan struct {
	Bootstrap        ProjectTarget   // stage 1: builds the configurator
	Configurator     string          // stage 2: configurator executable
	ConfiguratorArgs []string        // stage 2: translated toolchain switches
	Targets          []ProjectTarget // stage 3: module projects
	Patches          []Patch         // applied before stage 3
}

// ProjectTarget is one project file built with a configuration/platform
// pair. Paths are slash separated and relative to the source root.
type ProjectTarget struct {
	Module        string
	Project       string
	Configuration string
	Platform      string
}

const (
	bootstrapProject = "VisualMagick/configure/configure.vcxproj"
	configuratorExe  = "VisualMagick/configure/configure.exe"
)

// Modules are the libraries built from the source tree, in link order.
var Modules = []string{"MagickCore", "MagickWand", "Magick++"}

// codersModule is the aggregated coders archive of static MSVC builds.
const codersModule = "coders"

// Dispatch selects the build strategy for tc and translates fs into it.
func Dispatch(tc Toolchain, fs *FeatureSet) (*Plan, error) {
	if fs == nil {
		return nil, fmt.Errorf("dispatch: nil feature set")
	}
	if tc.Family() == FamilyMSVC {
		return dispatchMSVC(tc, fs)
	}
	return dispatchPOSIX(tc, fs)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func dispatchPOSIX(tc Toolchain, fs *FeatureSet) (*Plan, error) {
	q := fs.Quantum()
	args := []string{
		"--disable-openmp",
		"--disable-docs",
		"--with-utilities=" + yesNo(fs.Utilities()),
		"--with-perl=no",
		"--without-x",
		"--enable-shared=" + yesNo(fs.Shared()),
		"--enable-static=" + yesNo(!fs.Shared()),
		"--enable-hdri=" + yesNo(q.HDRI),
		"--with-quantum-depth=" + strconv.Itoa(q.Depth),
	}
	for _, d := range fs.Schema().configured() {
		args = append(args, "--with-"+delegates[d].configure+"="+yesNo(fs.Enabled(d)))
	}

	env := map[string]string{}
	if fpic, err := fs.FPIC(); err == nil && fpic && !fs.Shared() {
		env["CFLAGS"] = "-fPIC"
		env["CXXFLAGS"] = "-fPIC"
	}
	return &Plan{
		Family:   FamilyPOSIX,
		POSIX:    &POSIXPlan{ConfigureArgs: args, Env: env},
		Features: fs,
	}, nil
}

func dispatchMSVC(tc Toolchain, fs *FeatureSet) (*Plan, error) {
	if !fs.Schema().MSVC() {
		return nil, optionErr("compiler", tc.Compiler, fmt.Sprintf("schema v%d predates MSVC support", fs.Schema().Version))
	}
	ide, err := lookup(TableIDEVersion, ideVersions, tc.Version)
	if err != nil {
		return nil, err
	}
	runtimeSwitch, err := lookup(TableRuntime, runtimeSwitches, tc.Runtime)
	if err != nil {
		return nil, err
	}
	suffix, err := lookup(TableSolution, solutionSuffixes, tc.Runtime)
	if err != nil {
		return nil, err
	}
	platform, err := lookup(TablePlatform, platforms, tc.Arch)
	if err != nil {
		return nil, err
	}

	var pruned []Delegate
	for _, d := range fs.Delegates() {
		if !d.MSVCBuildable() {
			pruned = append(pruned, d)
		}
	}
	eff := fs
	if len(pruned) > 0 {
		eff = fs.without(pruned...)
		log.Warnf("msvc: delegates not buildable with %s, disabled: %s", tc.Compiler, joinDelegates(pruned))
	}

	q := eff.Quantum()
	args := []string{"/noWizard", ide, runtimeSwitch}
	if platform == "x64" {
		args = append(args, "/x64")
	}
	if !q.HDRI {
		args = append(args, "/noHdri")
	}
	args = append(args, "/Q"+strconv.Itoa(q.Depth), "/noOpenMP")

	config := "Release"
	if tc.Debug() {
		config = "Debug"
	}
	mods := Modules
	if !eff.Shared() {
		mods = append(mods[:len(mods):len(mods)], codersModule)
	}
	targets := make([]ProjectTarget, 0, len(mods))
	for _, m := range mods {
		targets = append(targets, ProjectTarget{
			Module:        m,
			Project:       fmt.Sprintf("VisualMagick/%s/CORE_%s_%s.vcxproj", m, m, suffix),
			Configuration: config,
			Platform:      platform,
		})
	}

	return &Plan{
		Family: FamilyMSVC,
		MSVC: &MSVCPlan{
			Bootstrap: ProjectTarget{
				Module:        "configure",
				Project:       bootstrapProject,
				Configuration: "Release",
				Platform:      "Win32",
			},
			Configurator:     configuratorExe,
			ConfiguratorArgs: args,
			Targets:          targets,
			Patches:          Patches(eff),
		},
		Features: eff,
		Pruned:   pruned,
	}, nil
}

func joinDelegates(ds []Delegate) string {
	names := make([]string, len(ds))
	for i, d := range ds {
		names[i] = string(d)
	}
	return strings.Join(names, ", ")
}
