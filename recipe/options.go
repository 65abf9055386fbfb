package recipe

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/qiniu/x/log"
)

// JPEGVariant selects which JPEG implementation backs the jpeg delegate.
type JPEGVariant string

const (
	JPEGNone         JPEGVariant = "None"
	JPEGLibjpeg      JPEGVariant = "libjpeg"
	JPEGLibjpegTurbo JPEGVariant = "libjpeg-turbo"
)

// QuantumConfig is the ABI-affecting pixel storage configuration.
type QuantumConfig struct {
	Depth int  // bits per channel sample: 8, 16 or 32
	HDRI  bool // floating point high dynamic range pixels
}

// NewQuantumConfig validates depth and returns the configuration.
func NewQuantumConfig(depth int, hdri bool) (QuantumConfig, error) {
	switch depth {
	case 8, 16, 32:
		return QuantumConfig{Depth: depth, HDRI: hdri}, nil
	}
	return QuantumConfig{}, optionErr(OptQuantumDepth, strconv.Itoa(depth), "want one of 8, 16, 32")
}

// FeatureSet is the validated, immutable option set of one build.
type FeatureSet struct {
	schema    *Schema
	shared    bool
	fpic      *bool // nil where fPIC does not exist
	quantum   QuantumConfig
	jpeg      JPEGVariant
	utilities bool
	delegates map[Delegate]bool
	warnings  []string
}

// Schema returns the schema the set was normalized against.
func (f *FeatureSet) Schema() *Schema { return f.schema }

// Shared reports whether shared libraries are built instead of static ones.
func (f *FeatureSet) Shared() bool { return f.shared }

// Quantum returns the quantum depth and HDRI configuration.
func (f *FeatureSet) Quantum() QuantumConfig { return f.quantum }

// JPEG returns the JPEG implementation; JPEGNone when the delegate is off.
func (f *FeatureSet) JPEG() JPEGVariant { return f.jpeg }

// Utilities reports whether the command-line tools are built.
func (f *FeatureSet) Utilities() bool { return f.utilities }

// FPIC returns the fPIC option. It fails with ErrNotApplicable on targets
// where the option does not exist.
func (f *FeatureSet) FPIC() (bool, error) {
	if f.fpic == nil {
		return false, ErrNotApplicable
	}
	return *f.fpic, nil
}

// Enabled reports whether delegate d is compiled in.
func (f *FeatureSet) Enabled(d Delegate) bool { return f.delegates[d] }

// Delegates returns the enabled delegates in declaration order.
func (f *FeatureSet) Delegates() []Delegate {
	var out []Delegate
	for _, d := range allDelegates {
		if f.delegates[d] {
			out = append(out, d)
		}
	}
	return out
}

// Warnings returns the deprecation notices raised while normalizing.
func (f *FeatureSet) Warnings() []string { return slices.Clone(f.warnings) }

// Options returns the canonical value of every active option. Legacy and
// not-applicable options are absent.
func (f *FeatureSet) Options() map[string]string {
	out := map[string]string{
		OptShared:       formatBool(f.shared),
		OptHDRI:         formatBool(f.quantum.HDRI),
		OptQuantumDepth: strconv.Itoa(f.quantum.Depth),
	}
	if f.fpic != nil {
		out[OptFPIC] = formatBool(*f.fpic)
	}
	if f.schema.Has(OptUtilities) {
		out[OptUtilities] = formatBool(f.utilities)
	}
	for _, d := range f.schema.Delegates() {
		if d == JPEG {
			continue
		}
		out[string(d)] = formatBool(f.delegates[d])
	}
	switch {
	case f.schema.Has(OptWithLibjpeg):
		out[OptWithLibjpeg] = string(f.jpeg)
	case f.schema.Has(OptLegacyJPEG):
		out[OptLegacyJPEG] = formatBool(f.jpeg != JPEGNone)
	}
	return out
}

// without returns a copy of f with ds disabled.
func (f *FeatureSet) without(ds ...Delegate) *FeatureSet {
	c := *f
	c.delegates = maps.Clone(f.delegates)
	for _, d := range ds {
		c.delegates[d] = false
		if d == JPEG {
			c.jpeg = JPEGNone
		}
	}
	return &c
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func parseBool(name, value string) (bool, error) {
	switch strings.ToLower(value) {
	case "true", "yes", "1":
		return true, nil
	case "false", "no", "0":
		return false, nil
	}
	return false, optionErr(name, value, "want a boolean")
}

func parseJPEG(value string) (JPEGVariant, error) {
	switch JPEGVariant(value) {
	case JPEGNone, JPEGLibjpeg, JPEGLibjpegTurbo:
		return JPEGVariant(value), nil
	case "":
		return JPEGNone, nil
	}
	return "", optionErr(OptWithLibjpeg, value, "want one of None, libjpeg, libjpeg-turbo")
}

// Defaults returns the value each option of s takes when the caller omits it.
func (s *Schema) Defaults() map[string]string {
	out := map[string]string{
		OptShared:       "False",
		OptFPIC:         "True",
		OptHDRI:         "True",
		OptQuantumDepth: "16",
	}
	for _, name := range s.options {
		if _, ok := out[name]; ok {
			continue
		}
		switch name {
		case OptWithLibjpeg:
			out[name] = string(JPEGLibjpeg)
		case OptLegacyJPEG:
			if !s.legacyJPEG {
				out[name] = "True"
			}
		default:
			out[name] = "True"
		}
	}
	return out
}

// Normalize validates raw option values against schema for the target tc
// and applies defaults and the jpeg deprecation rule.
func Normalize(schema *Schema, tc Toolchain, raw map[string]string) (*FeatureSet, error) {
	if schema == nil {
		schema = Latest
	}
	for _, name := range slices.Sorted(maps.Keys(raw)) {
		if !schema.Has(name) {
			return nil, optionErr(name, raw[name], fmt.Sprintf("unknown option in schema v%d", schema.Version))
		}
	}
	if _, ok := raw[OptFPIC]; ok && tc.IsWindows() {
		return nil, optionErr(OptFPIC, raw[OptFPIC], "not applicable on Windows")
	}

	opts := schema.Defaults()
	maps.Copy(opts, raw)
	get := func(name string) (bool, error) { return parseBool(name, opts[name]) }

	fs := &FeatureSet{schema: schema, delegates: make(map[Delegate]bool)}
	var err error
	if fs.shared, err = get(OptShared); err != nil {
		return nil, err
	}
	if !tc.IsWindows() {
		fpic, err := get(OptFPIC)
		if err != nil {
			return nil, err
		}
		fs.fpic = &fpic
	}
	hdri, err := get(OptHDRI)
	if err != nil {
		return nil, err
	}
	depth, err := strconv.Atoi(opts[OptQuantumDepth])
	if err != nil {
		return nil, optionErr(OptQuantumDepth, opts[OptQuantumDepth], "want one of 8, 16, 32")
	}
	if fs.quantum, err = NewQuantumConfig(depth, hdri); err != nil {
		return nil, err
	}
	if schema.Has(OptUtilities) {
		if fs.utilities, err = get(OptUtilities); err != nil {
			return nil, err
		}
	}

	if fs.jpeg, err = normalizeJPEG(schema, raw, opts, &fs.warnings); err != nil {
		return nil, err
	}
	for _, d := range schema.Delegates() {
		if d == JPEG {
			fs.delegates[d] = fs.jpeg != JPEGNone
			continue
		}
		if fs.delegates[d], err = get(string(d)); err != nil {
			return nil, err
		}
	}
	return fs, nil
}

// normalizeJPEG folds the legacy jpeg boolean into the variant. The legacy
// value only wins when with_libjpeg was not supplied by the caller.
func normalizeJPEG(schema *Schema, raw, opts map[string]string, warnings *[]string) (JPEGVariant, error) {
	if !schema.legacyJPEG {
		if !schema.Has(OptLegacyJPEG) {
			return JPEGNone, nil
		}
		on, err := parseBool(OptLegacyJPEG, opts[OptLegacyJPEG])
		if err != nil || !on {
			return JPEGNone, err
		}
		return JPEGLibjpeg, nil
	}

	variant, err := parseJPEG(opts[OptWithLibjpeg])
	if err != nil {
		return "", err
	}
	legacy, ok := raw[OptLegacyJPEG]
	if !ok {
		return variant, nil
	}
	on, err := parseBool(OptLegacyJPEG, legacy)
	if err != nil {
		return "", err
	}
	msg := "option jpeg is deprecated, use with_libjpeg"
	if _, explicit := raw[OptWithLibjpeg]; explicit {
		msg += "; ignored because with_libjpeg is set"
	} else if on {
		variant = JPEGLibjpeg
	} else {
		variant = JPEGNone
	}
	*warnings = append(*warnings, msg)
	log.Warn(msg)
	return variant, nil
}
