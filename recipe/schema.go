package recipe

import (
	"slices"
	"strconv"
)

// Option names shared by every schema.
const (
	OptShared       = "shared"
	OptFPIC         = "fPIC"
	OptHDRI         = "hdri"
	OptQuantumDepth = "quantum_depth"
	OptUtilities    = "utilities"
	OptWithLibjpeg  = "with_libjpeg"
	OptLegacyJPEG   = "jpeg"
)

// Schema is one revision of the recipe's option set. Revisions only ever
// add options; the latest is the default.
type Schema struct {
	Version int

	options    []string
	fixedOff   []Delegate // passed to configure as --with-<d>=no, not toggleable
	legacyJPEG bool       // "jpeg" is a deprecated alias of with_libjpeg
	msvc       bool       // MSVC toolchain branch and naming available
}

var baseOptions = []string{OptShared, OptFPIC, OptHDRI, OptQuantumDepth}

var delegateOptions = []string{
	string(Zlib), string(Bzlib), string(Lzma), string(Lcms), string(OpenEXR),
	OptLegacyJPEG, string(OpenJP2), string(PNG), string(TIFF), string(WebP),
	string(XML), string(Freetype),
}

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var (
	// SchemaV1 builds the three modules with no delegate toggles; zlib is
	// always off.
	SchemaV1 = &Schema{Version: 1, options: baseOptions, fixedOff: []Delegate{Zlib}}

	// SchemaV2 makes every delegate toggleable.
	SchemaV2 = &Schema{Version: 2, options: concat(baseOptions, delegateOptions)}

	// SchemaV3 adds the command-line utilities toggle.
	SchemaV3 = &Schema{Version: 3, options: concat(baseOptions, delegateOptions, []string{OptUtilities})}

	// SchemaV4 replaces the jpeg boolean with the with_libjpeg variant.
	SchemaV4 = &Schema{
		Version:    4,
		options:    concat(baseOptions, delegateOptions, []string{OptUtilities, OptWithLibjpeg}),
		legacyJPEG: true,
	}

	// SchemaV5 adds the MSVC toolchain branch.
	SchemaV5 = &Schema{
		Version:    5,
		options:    concat(baseOptions, delegateOptions, []string{OptUtilities, OptWithLibjpeg}),
		legacyJPEG: true,
		msvc:       true,
	}

	// Latest is the schema used when none is requested.
	Latest = SchemaV5
)

var schemas = []*Schema{SchemaV1, SchemaV2, SchemaV3, SchemaV4, SchemaV5}

// SchemaFor returns the schema with the given revision number; 0 selects
// Latest.
func SchemaFor(version int) (*Schema, error) {
	if version == 0 {
		return Latest, nil
	}
	for _, s := range schemas {
		if s.Version == version {
			return s, nil
		}
	}
	return nil, lookupErr("schema", strconv.Itoa(version))
}

// Has reports whether option name exists in s.
func (s *Schema) Has(name string) bool {
	return slices.Contains(s.options, name)
}

// Options returns the option names of s in declaration order.
func (s *Schema) Options() []string {
	return slices.Clone(s.options)
}

// MSVC reports whether s supports the MSVC toolchain.
func (s *Schema) MSVC() bool { return s.msvc }

// Delegates returns the delegates s can toggle, in declaration order.
func (s *Schema) Delegates() []Delegate {
	var out []Delegate
	for _, d := range allDelegates {
		if d == JPEG {
			if s.Has(OptLegacyJPEG) || s.Has(OptWithLibjpeg) {
				out = append(out, d)
			}
			continue
		}
		if s.Has(string(d)) {
			out = append(out, d)
		}
	}
	return out
}

// configured returns every delegate that gets a --with-<d> flag: the
// toggleable ones followed by the fixed-off ones.
func (s *Schema) configured() []Delegate {
	return append(s.Delegates(), s.fixedOff...)
}
