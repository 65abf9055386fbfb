package build

import (
	"context"
	"fmt"
	"io"

	"github.com/goplus/llarmagick/recipe"
	"github.com/goplus/llarmagick/x/autotools"
	"github.com/goplus/llarmagick/x/msbuild"
)

// Workspace names the directories of one build.
type Workspace struct {
	SourceDir    string // unpacked upstream tree
	BuildDir     string // out-of-tree build directory (POSIX)
	InstallDir   string // package directory
	PkgConfigDir string // staged .pc files of dependencies
}

// Executor runs the configure and build steps of a plan.
type Executor interface {
	Configure(ctx context.Context) error
	Build(ctx context.Context) error
}

// NewExecutorFunc creates the executor for a resolved configuration.
type NewExecutorFunc func(res *recipe.Resolution, ws Workspace, deps []string, stdout, stderr io.Writer) (Executor, error)

// NewExecutor returns an autotools executor for POSIX plans and an
// msbuild executor for MSVC plans.
func NewExecutor(res *recipe.Resolution, ws Workspace, deps []string, stdout, stderr io.Writer) (Executor, error) {
	plan := res.Plan
	switch {
	case plan.POSIX != nil:
		a := autotools.New(ws.SourceDir, ws.BuildDir, ws.InstallDir)
		a.SetOutput(stdout, stderr)
		for _, root := range deps {
			if err := a.Use(root); err != nil {
				return nil, err
			}
		}
		// Only the staged .pc files are visible to pkg-config.
		a.Env("PKG_CONFIG_PATH", ws.PkgConfigDir)
		return &posixExecutor{tools: a, plan: plan.POSIX}, nil
	case plan.MSVC != nil:
		m := msbuild.New(ws.SourceDir)
		m.SetOutput(stdout, stderr)
		return &msvcExecutor{tools: m, plan: plan.MSVC}, nil
	}
	return nil, fmt.Errorf("plan for %s has no strategy", res.Toolchain.Compiler)
}

type posixExecutor struct {
	tools *autotools.AutoTools
	plan  *recipe.POSIXPlan
}

func (e *posixExecutor) Configure(ctx context.Context) error {
	return e.tools.ConfigurePlan(ctx, e.plan)
}

func (e *posixExecutor) Build(ctx context.Context) error {
	if err := e.tools.Build(ctx); err != nil {
		return fmt.Errorf("make: %w", err)
	}
	if err := e.tools.Install(ctx); err != nil {
		return fmt.Errorf("make install: %w", err)
	}
	return nil
}

type msvcExecutor struct {
	tools *msbuild.MSBuild
	plan  *recipe.MSVCPlan
}

func (e *msvcExecutor) Configure(ctx context.Context) error {
	return e.tools.Configure(ctx, e.plan)
}

func (e *msvcExecutor) Build(ctx context.Context) error {
	return e.tools.Build(ctx, e.plan)
}
