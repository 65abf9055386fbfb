package recipe

import (
	"bytes"
	"regexp"
	"strconv"
)

// Header files of the VisualMagick tree the overlay edits.
const (
	BaseConfigHeader = "MagickCore/magick-baseconfig.h"
	ConfigHeader     = "config/config.h"
)

// PatchOp is the edit a Patch performs.
type PatchOp int

const (
	// SetDefine rewrites "#define Name ..." to "#define Name Value",
	// uncommenting it if needed, or appends it when absent.
	SetDefine PatchOp = iota + 1
	// DisableDefine comments out "#define Name".
	DisableDefine
)

// Patch is one rule of the declarative overlay applied to the source tree
// before an MSVC build: the feature it stems from and the edit to perform.
type Patch struct {
	File    string // slash separated, relative to the source root
	Feature string
	Op      PatchOp
	Name    string
	Value   string
}

// Patches returns the overlay for fs: quantum settings first, then one
// DisableDefine per configured delegate that is off.
func Patches(fs *FeatureSet) []Patch {
	q := fs.Quantum()
	hdri := "0"
	if q.HDRI {
		hdri = "1"
	}
	out := []Patch{
		{File: BaseConfigHeader, Feature: OptQuantumDepth, Op: SetDefine, Name: "MAGICKCORE_QUANTUM_DEPTH", Value: strconv.Itoa(q.Depth)},
		{File: BaseConfigHeader, Feature: OptHDRI, Op: SetDefine, Name: "MAGICKCORE_HDRI_ENABLE", Value: hdri},
	}
	for _, d := range fs.Schema().configured() {
		if !fs.Enabled(d) {
			out = append(out, Patch{File: ConfigHeader, Feature: string(d), Op: DisableDefine, Name: delegates[d].define})
		}
	}
	return out
}

// Apply returns content with p applied. Applying the same patch twice
// yields the same bytes as applying it once. Line endings are preserved,
// so CRLF headers stay CRLF.
func (p Patch) Apply(content []byte) []byte {
	name := regexp.QuoteMeta(p.Name)
	switch p.Op {
	case SetDefine:
		re := regexp.MustCompile(`(?m)^[ \t]*(?://[ \t]*)?#[ \t]*define[ \t]+` + name + `(?:[ \t][^\r\n]*)?\r?$`)
		line := []byte("#define " + p.Name + " " + p.Value)
		if re.Match(content) {
			return re.ReplaceAllFunc(content, func(m []byte) []byte {
				if bytes.HasSuffix(m, []byte("\r")) {
					return append(bytes.Clone(line), '\r')
				}
				return line
			})
		}
		eol := []byte("\n")
		if bytes.Contains(content, []byte("\r\n")) {
			eol = []byte("\r\n")
		}
		out := bytes.Clone(content)
		if len(out) > 0 && out[len(out)-1] != '\n' {
			out = append(out, eol...)
		}
		return append(append(out, line...), eol...)
	case DisableDefine:
		re := regexp.MustCompile(`(?m)^([ \t]*)(#[ \t]*define[ \t]+` + name + `(?:[ \t][^\r\n]*)?)(\r?)$`)
		return re.ReplaceAll(content, []byte("$1// $2$3"))
	}
	return content
}

func (p Patch) String() string {
	switch p.Op {
	case SetDefine:
		return p.File + ": set " + p.Name + "=" + p.Value
	case DisableDefine:
		return p.File + ": disable " + p.Name
	}
	return p.File + ": unknown op " + strconv.Itoa(int(p.Op))
}
