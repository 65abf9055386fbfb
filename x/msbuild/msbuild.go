// Package msbuild drives the three-stage VisualMagick build of an MSVC
// build plan.
package msbuild

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/goplus/llarmagick/recipe"
)

// MSBuild drives VisualMagick builds.
type MSBuild struct {
	sourceDir string
	tool      string
	stdout    io.Writer
	stderr    io.Writer

	runCmd func(*exec.Cmd) error
}

// New returns an MSBuild for the source tree at sourceDir.
func New(sourceDir string) *MSBuild {
	return &MSBuild{
		sourceDir: sourceDir,
		tool:      "msbuild",
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		runCmd:    (*exec.Cmd).Run,
	}
}

// Tool overrides the msbuild executable.
func (m *MSBuild) Tool(path string) { m.tool = path }

// SetOutput redirects the output of spawned commands.
func (m *MSBuild) SetOutput(stdout, stderr io.Writer) {
	m.stdout, m.stderr = stdout, stderr
}

// Run executes plan: builds the configurator, runs it, applies the patch
// overlay once and builds every module project.
func (m *MSBuild) Run(ctx context.Context, plan *recipe.MSVCPlan) error {
	if err := m.Configure(ctx, plan); err != nil {
		return err
	}
	return m.Build(ctx, plan)
}

// Configure runs the first two stages and the patch overlay: it builds the
// configurator, runs it to generate the project files and patches the
// generated headers.
func (m *MSBuild) Configure(ctx context.Context, plan *recipe.MSVCPlan) error {
	if err := m.Project(ctx, plan.Bootstrap); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	exe := m.path(plan.Configurator)
	if err := m.run(ctx, filepath.Dir(exe), exe, plan.ConfiguratorArgs); err != nil {
		return fmt.Errorf("configurator: %w", err)
	}
	return ApplyPatches(m.sourceDir, plan.Patches)
}

// Build builds every module project of plan in order.
func (m *MSBuild) Build(ctx context.Context, plan *recipe.MSVCPlan) error {
	for _, target := range plan.Targets {
		if err := m.Project(ctx, target); err != nil {
			return fmt.Errorf("%s: %w", target.Module, err)
		}
	}
	return nil
}

// Project builds a single project file.
func (m *MSBuild) Project(ctx context.Context, target recipe.ProjectTarget) error {
	args := []string{
		m.path(target.Project),
		"/p:Configuration=" + target.Configuration,
		"/p:Platform=" + target.Platform,
		"/m",
		"/nologo",
	}
	return m.run(ctx, m.sourceDir, m.tool, args)
}

func (m *MSBuild) path(rel string) string {
	return filepath.Join(m.sourceDir, filepath.FromSlash(rel))
}

func (m *MSBuild) run(ctx context.Context, dir, name string, args []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = m.stdout
	cmd.Stderr = m.stderr
	return m.runCmd(cmd)
}
