// Package profile loads build configurations from HCL, JSON or YAML files.
//
// An HCL profile looks like:
//
//	version = "7.0.8-10"
//	schema  = 5
//
//	settings {
//	  os       = "Linux"
//	  arch     = "x86_64"
//	  compiler = "gcc"
//	  compiler_version = "9"
//	}
//
//	options = {
//	  shared        = true
//	  quantum_depth = 16
//	}
//
//	matrix = {
//	  hdri = [true, false]
//	}
//
// The YAML form uses the same keys.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goplus/llarmagick/formula"
	"github.com/goplus/llarmagick/mod/module"
	"github.com/goplus/llarmagick/recipe"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"gopkg.in/yaml.v3"
)

// Profile is a loaded configuration file.
type Profile struct {
	Config recipe.RawConfig

	// Matrix lists alternative option values to expand. Options present in
	// Matrix override Config.Options for each combination.
	Matrix map[string][]string
}

// Combinations expands the profile into one RawConfig per matrix
// combination, in the stable order of formula.Matrix.
func (p *Profile) Combinations() []recipe.RawConfig {
	if len(p.Matrix) == 0 {
		return []recipe.RawConfig{p.Config}
	}
	m := formula.Matrix{Options: p.Matrix}
	var out []recipe.RawConfig
	for _, a := range m.Expand() {
		cfg := p.Config
		cfg.Options = make(map[string]string, len(p.Config.Options)+len(a.Options))
		for k, v := range p.Config.Options {
			cfg.Options[k] = v
		}
		for k, v := range a.Options {
			cfg.Options[k] = v
		}
		out = append(out, cfg)
	}
	return out
}

// Load reads the profile at path. The format follows the file extension:
// .hcl, .json, .yaml or .yml.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, path)
}

// Parse decodes a profile; filename selects the format and labels
// diagnostics.
func Parse(data []byte, filename string) (*Profile, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".hcl", ".json":
		return parseHCL(data, filename)
	case ".yaml", ".yml":
		return parseYAML(data, filename)
	}
	return nil, fmt.Errorf("unsupported profile format %q", filename)
}

type hclSettings struct {
	OS              string `hcl:"os"`
	Arch            string `hcl:"arch"`
	Compiler        string `hcl:"compiler"`
	CompilerVersion string `hcl:"compiler_version,optional"`
	CompilerRuntime string `hcl:"compiler_runtime,optional"`
	BuildType       string `hcl:"build_type,optional"`
}

type hclProfile struct {
	Version  string         `hcl:"version,optional"`
	Schema   int            `hcl:"schema,optional"`
	Settings *hclSettings   `hcl:"settings,block"`
	Options  hcl.Expression `hcl:"options,optional"`
	Matrix   hcl.Expression `hcl:"matrix,optional"`
}

func parseHCL(data []byte, filename string) (*Profile, error) {
	parser := hclparse.NewParser()
	var (
		file  *hcl.File
		diags hcl.Diagnostics
	)
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		file, diags = parser.ParseJSON(data, filename)
	} else {
		file, diags = parser.ParseHCL(data, filename)
	}
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse profile %s: %w", filename, diags)
	}

	var raw hclProfile
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode profile %s: %w", filename, diags)
	}
	if raw.Settings == nil {
		return nil, fmt.Errorf("profile %s: missing settings block", filename)
	}

	p := &Profile{
		Config: recipe.RawConfig{
			Version: version(raw.Version),
			Schema:  raw.Schema,
			Settings: recipe.Settings{
				OS:              raw.Settings.OS,
				Arch:            raw.Settings.Arch,
				Compiler:        raw.Settings.Compiler,
				CompilerVersion: raw.Settings.CompilerVersion,
				CompilerRuntime: raw.Settings.CompilerRuntime,
				BuildType:       raw.Settings.BuildType,
			},
		},
	}

	options, err := objectOf(raw.Options, "options")
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", filename, err)
	}
	p.Config.Options = make(map[string]string, len(options))
	for k, v := range options {
		s, err := stringOf(v)
		if err != nil {
			return nil, fmt.Errorf("profile %s: option %s: %w", filename, k, err)
		}
		p.Config.Options[k] = s
	}

	matrix, err := objectOf(raw.Matrix, "matrix")
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", filename, err)
	}
	for k, v := range matrix {
		if !v.Type().IsTupleType() && !v.Type().IsListType() {
			return nil, fmt.Errorf("profile %s: matrix %s: want a list of values", filename, k)
		}
		var values []string
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			s, err := stringOf(ev)
			if err != nil {
				return nil, fmt.Errorf("profile %s: matrix %s: %w", filename, k, err)
			}
			values = append(values, s)
		}
		if p.Matrix == nil {
			p.Matrix = make(map[string][]string)
		}
		p.Matrix[k] = values
	}
	return p, nil
}

// objectOf evaluates expr, which must be an object or map, into its
// attributes. An absent attribute yields nil.
func objectOf(expr hcl.Expression, name string) (map[string]cty.Value, error) {
	if expr == nil {
		return nil, nil
	}
	v, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s: %w", name, diags)
	}
	if v.IsNull() {
		return nil, nil
	}
	ty := v.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("%s: want an object, got %s", name, ty.FriendlyName())
	}
	return v.AsValueMap(), nil
}

// stringOf renders a primitive value the way option values are spelled.
func stringOf(v cty.Value) (string, error) {
	if v.IsNull() || !v.IsKnown() {
		return "", fmt.Errorf("value must be known and non-null")
	}
	if v.Type() == cty.Bool {
		if v.True() {
			return "True", nil
		}
		return "False", nil
	}
	s, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", err
	}
	return s.AsString(), nil
}

type yamlProfile struct {
	Version  string                 `yaml:"version"`
	Schema   int                    `yaml:"schema"`
	Settings *recipe.Settings       `yaml:"settings"`
	Options  map[string]yaml.Node   `yaml:"options"`
	Matrix   map[string][]yaml.Node `yaml:"matrix"`
}

func parseYAML(data []byte, filename string) (*Profile, error) {
	var raw yamlProfile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode profile %s: %w", filename, err)
	}
	if raw.Settings == nil {
		return nil, fmt.Errorf("profile %s: missing settings", filename)
	}
	p := &Profile{
		Config: recipe.RawConfig{
			Version:  version(raw.Version),
			Schema:   raw.Schema,
			Settings: *raw.Settings,
			Options:  make(map[string]string, len(raw.Options)),
		},
	}
	for _, k := range sortedKeys(raw.Options) {
		s, err := scalar(raw.Options[k])
		if err != nil {
			return nil, fmt.Errorf("profile %s: option %s: %w", filename, k, err)
		}
		p.Config.Options[k] = s
	}
	for k, nodes := range raw.Matrix {
		values := make([]string, len(nodes))
		for i := range nodes {
			s, err := scalar(nodes[i])
			if err != nil {
				return nil, fmt.Errorf("profile %s: matrix %s: %w", filename, k, err)
			}
			values[i] = s
		}
		if p.Matrix == nil {
			p.Matrix = make(map[string][]string)
		}
		p.Matrix[k] = values
	}
	return p, nil
}

func scalar(n yaml.Node) (string, error) {
	if n.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("line %d: want a scalar value", n.Line)
	}
	if n.Tag == "!!bool" {
		var b bool
		if err := n.Decode(&b); err != nil {
			return "", err
		}
		if b {
			return "True", nil
		}
		return "False", nil
	}
	return n.Value, nil
}

func version(v string) module.Version {
	if v == "" {
		return module.Version{}
	}
	return module.Version{Path: recipe.Upstream.Path, Version: v}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
