package internal

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/goplus/llarmagick/internal/profile"
	"github.com/goplus/llarmagick/mod/module"
	"github.com/goplus/llarmagick/recipe"
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// configFlags are the flags every resolving command accepts. Explicit
// flags override the values of a profile.
type configFlags struct {
	profile  string
	version  string
	schema   int
	settings recipe.Settings
	options  []string
}

func (c *configFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&c.profile, "profile", "p", "", "Profile file (.hcl, .json, .yaml)")
	fs.StringVar(&c.version, "version", "", "Upstream version (default "+recipe.Upstream.Version+")")
	fs.IntVar(&c.schema, "schema", 0, "Recipe schema version (default latest)")
	fs.StringVar(&c.settings.OS, "os", hostOS(), "Target operating system")
	fs.StringVar(&c.settings.Arch, "arch", hostArch(), "Target architecture")
	fs.StringVar(&c.settings.Compiler, "compiler", hostCompiler(), "Compiler")
	fs.StringVar(&c.settings.CompilerVersion, "compiler-version", "", "Compiler version")
	fs.StringVar(&c.settings.CompilerRuntime, "runtime", "", "MSVC runtime (MT, MTd, MD, MDd)")
	fs.StringVar(&c.settings.BuildType, "build-type", "Release", "Build type")
	fs.StringArrayVarP(&c.options, "option", "D", nil, "Option as name=value (repeatable)")
}

// load returns the profile named by --profile, or an empty one, with the
// explicitly set flags applied on top.
func (c *configFlags) load(cmd *cobra.Command) (*profile.Profile, error) {
	p := &profile.Profile{
		Config: recipe.RawConfig{
			Settings: c.settings,
			Options:  map[string]string{},
		},
	}
	if c.profile != "" {
		loaded, err := profile.Load(c.profile)
		if err != nil {
			return nil, err
		}
		p = loaded
		if p.Config.Options == nil {
			p.Config.Options = map[string]string{}
		}
		flags := cmd.Flags()
		override := func(name string, dst *string, v string) {
			if flags.Changed(name) {
				*dst = v
			}
		}
		s := &p.Config.Settings
		override("os", &s.OS, c.settings.OS)
		override("arch", &s.Arch, c.settings.Arch)
		override("compiler", &s.Compiler, c.settings.Compiler)
		override("compiler-version", &s.CompilerVersion, c.settings.CompilerVersion)
		override("runtime", &s.CompilerRuntime, c.settings.CompilerRuntime)
		override("build-type", &s.BuildType, c.settings.BuildType)
		if flags.Changed("schema") {
			p.Config.Schema = c.schema
		}
	} else {
		p.Config.Schema = c.schema
	}
	if c.version != "" {
		p.Config.Version = module.Version{Path: recipe.Upstream.Path, Version: c.version}
	}
	for _, kv := range c.options {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid option %q: want name=value", kv)
		}
		p.Config.Options[k] = v
	}
	log.Debugf("configuration: %+v", p.Config)
	return p, nil
}

// resolve loads the configuration and resolves it.
func (c *configFlags) resolve(cmd *cobra.Command) (*recipe.Resolution, error) {
	p, err := c.load(cmd)
	if err != nil {
		return nil, err
	}
	return recipe.Resolve(p.Config)
}

func hostOS() string {
	switch runtime.GOOS {
	case "linux":
		return "Linux"
	case "darwin":
		return "Macos"
	case "windows":
		return "Windows"
	case "freebsd":
		return "FreeBSD"
	}
	return runtime.GOOS
}

func hostArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "386":
		return "x86"
	case "arm64":
		return "armv8"
	}
	return runtime.GOARCH
}

func hostCompiler() string {
	switch runtime.GOOS {
	case "windows":
		return "Visual Studio"
	case "darwin":
		return "apple-clang"
	}
	return "gcc"
}

// parseAxis parses "name=v1,v2".
func parseAxis(s string) (string, []string, error) {
	name, values, ok := strings.Cut(s, "=")
	if !ok || name == "" || values == "" {
		return "", nil, fmt.Errorf("invalid matrix axis %q: want name=v1,v2", s)
	}
	return name, strings.Split(values, ","), nil
}
