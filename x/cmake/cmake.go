// Package cmake wraps the cmake configure/build workflow used to compile
// consumer projects against a packaged build.
package cmake

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

type defineValue struct {
	value    string
	typeName string
}

// CMake drives CMake-based builds.
type CMake struct {
	sourceDir string
	buildDir  string
	generator string
	platform  string
	buildType string
	defines   map[string]defineValue
	stdout    io.Writer
	stderr    io.Writer

	runCmd func(*exec.Cmd) error
}

// New returns a ready-to-use CMake.
func New(sourceDir, buildDir string) *CMake {
	return &CMake{
		sourceDir: sourceDir,
		buildDir:  buildDir,
		defines:   make(map[string]defineValue),
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		runCmd:    (*exec.Cmd).Run,
	}
}

// SetOutput redirects the output of spawned commands.
func (c *CMake) SetOutput(stdout, stderr io.Writer) {
	c.stdout, c.stderr = stdout, stderr
}

// Generator sets the CMake generator (e.g. "Ninja", "Visual Studio 16 2019").
func (c *CMake) Generator(name string) { c.generator = name }

// Platform sets the generator platform (-A), e.g. "x64".
func (c *CMake) Platform(name string) { c.platform = name }

// BuildType sets CMAKE_BUILD_TYPE and the --config of multi-config
// generators.
func (c *CMake) BuildType(name string) { c.buildType = name }

// Define adds a -D<key>:STRING=<value> definition.
func (c *CMake) Define(key, value string) {
	c.defines[key] = defineValue{value: value, typeName: "STRING"}
}

// DefineList adds a -D<key>:STRING=<a;b;c> list definition.
func (c *CMake) DefineList(key string, values []string) {
	c.Define(key, strings.Join(values, ";"))
}

// Configure runs "cmake -S <source> -B <build>" with all configured options.
// Extra args are appended at the end.
func (c *CMake) Configure(ctx context.Context, args ...string) error {
	if err := os.MkdirAll(c.buildDir, 0o755); err != nil {
		return err
	}
	cmakeArgs := []string{"-S", c.sourceDir, "-B", c.buildDir}
	if c.generator != "" {
		cmakeArgs = append(cmakeArgs, "-G", c.generator)
	}
	if c.platform != "" {
		cmakeArgs = append(cmakeArgs, "-A", c.platform)
	}
	if c.buildType != "" {
		c.Define("CMAKE_BUILD_TYPE", c.buildType)
	}
	cmakeArgs = append(cmakeArgs, c.definesArgs()...)
	cmakeArgs = append(cmakeArgs, args...)
	return c.run(ctx, "cmake", cmakeArgs)
}

// Build runs "cmake --build <build>" with optional extra arguments.
func (c *CMake) Build(ctx context.Context, args ...string) error {
	cmakeArgs := []string{"--build", c.buildDir}
	if c.buildType != "" {
		cmakeArgs = append(cmakeArgs, "--config", c.buildType)
	}
	cmakeArgs = append(cmakeArgs, args...)
	return c.run(ctx, "cmake", cmakeArgs)
}

func (c *CMake) run(ctx context.Context, name string, args []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = c.stdout
	cmd.Stderr = c.stderr
	return c.runCmd(cmd)
}

func (c *CMake) definesArgs() []string {
	if len(c.defines) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.defines))
	for k := range c.defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		d := c.defines[k]
		args = append(args, "-D"+k+":"+d.typeName+"="+d.value)
	}
	return args
}
