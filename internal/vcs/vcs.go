// Package vcs reads release tags and checks out sources from git remotes.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ImageMagickRemote is the upstream git repository.
const ImageMagickRemote = "https://github.com/ImageMagick/ImageMagick.git"

// VCS defines the version control operations the builder needs.
type VCS interface {
	// Tags returns all tags of the remote repository.
	Tags(ctx context.Context, remote string) ([]string, error)

	// Checkout clones remote at ref into dir. dir must not exist.
	Checkout(ctx context.Context, remote, ref, dir string) error
}

// gitVCS implements VCS using git.
type gitVCS struct {
	git string
}

// GitOption configures gitVCS.
type GitOption func(*gitVCS)

// WithGitPath sets a custom git executable path.
func WithGitPath(path string) GitOption {
	return func(g *gitVCS) {
		g.git = path
	}
}

// NewGitVCS creates a new git VCS instance.
func NewGitVCS(opts ...GitOption) VCS {
	g := &gitVCS{git: "git"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gitVCS) Tags(ctx context.Context, remote string) ([]string, error) {
	out, err := g.output(ctx, "", "ls-remote", "--tags", "--refs", remote)
	if err != nil {
		return nil, err
	}
	return parseTags(out), nil
}

// parseTags extracts tag names from "git ls-remote --tags" output, one
// "<sha>\trefs/tags/<name>" per line.
func parseTags(out []byte) []string {
	var tags []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		_, ref, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		if tag, ok := strings.CutPrefix(ref, "refs/tags/"); ok {
			tags = append(tags, tag)
		}
	}
	return tags
}

func (g *gitVCS) Checkout(ctx context.Context, remote, ref, dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("checkout %s: %s already exists", ref, dir)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return err
	}
	_, err := g.output(ctx, "", "clone", "--quiet", "--depth", "1", "--branch", ref, remote, dir)
	return err
}

func (g *gitVCS) output(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, g.git, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
