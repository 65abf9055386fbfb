// Package recipe resolves an ImageMagick build configuration into a build
// plan and the artifact descriptor consumers link against.
//
// Resolution is pure: it runs no tools and touches no files, so the same
// RawConfig always yields the same Resolution.
package recipe

import (
	"strconv"

	"github.com/goplus/llarmagick/formula"
	"github.com/goplus/llarmagick/mod/module"
)

// Upstream is the default source of the wrapped project.
var Upstream = module.Version{Path: "ImageMagick/ImageMagick", Version: "7.0.8-10"}

// RawConfig is the caller-supplied configuration of one build.
type RawConfig struct {
	Version  module.Version    // zero value selects Upstream
	Schema   int               // 0 selects Latest
	Settings Settings          // target and toolchain
	Options  map[string]string // option name to raw value
}

// Resolution is the outcome of resolving a RawConfig.
type Resolution struct {
	Version   module.Version
	Major     int
	Toolchain Toolchain
	Features  *FeatureSet // as requested, before toolchain pruning
	Plan      *Plan
	Artifacts ArtifactDescriptor
}

// Resolve normalizes cfg, dispatches it to a toolchain strategy and names
// the resulting artifacts. Every failure is a *ConfigError or a version
// error and happens before any build step.
func Resolve(cfg RawConfig) (*Resolution, error) {
	ver := cfg.Version
	if ver.Path == "" {
		ver.Path = Upstream.Path
	}
	if ver.Version == "" {
		ver.Version = Upstream.Version
	}
	major, err := ver.Major()
	if err != nil {
		return nil, optionErr("version", ver.Version, err.Error())
	}
	schema, err := SchemaFor(cfg.Schema)
	if err != nil {
		return nil, err
	}
	tc, err := ParseToolchain(cfg.Settings)
	if err != nil {
		return nil, err
	}
	fs, err := Normalize(schema, tc, cfg.Options)
	if err != nil {
		return nil, err
	}
	plan, err := Dispatch(tc, fs)
	if err != nil {
		return nil, err
	}
	eff := plan.Features
	return &Resolution{
		Version:   ver,
		Major:     major,
		Toolchain: tc,
		Features:  fs,
		Plan:      plan,
		Artifacts: Describe(tc, eff.Quantum(), eff.Shared(), major),
	}, nil
}

// Matrix returns the single-valued matrix identifying r's configuration.
func (r *Resolution) Matrix() formula.Matrix {
	tc := r.Toolchain
	req := map[string][]string{
		"version":          {r.Version.Version},
		"schema":           {strconv.Itoa(r.Features.Schema().Version)},
		"os":               {tc.OS},
		"arch":             {tc.Arch},
		"compiler":         {tc.Compiler},
		"compiler.version": {tc.Version},
		"build_type":       {tc.BuildType},
	}
	if tc.Runtime != "" {
		req["compiler.runtime"] = []string{tc.Runtime}
	}
	opts := map[string][]string{}
	for k, v := range r.Plan.Features.Options() {
		opts[k] = []string{v}
	}
	return formula.Matrix{Require: req, Options: opts}
}

// Key is the configuration hash: one build directory per key.
func (r *Resolution) Key() string {
	m := r.Matrix()
	return m.Key()
}
