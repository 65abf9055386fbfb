package internal

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goplus/llarmagick/internal/build"
	"github.com/goplus/llarmagick/internal/env"
	"github.com/goplus/llarmagick/internal/source"
	"github.com/goplus/llarmagick/internal/testpkg"
	"github.com/goplus/llarmagick/internal/vcs"
	"github.com/goplus/llarmagick/mod/module"
	"github.com/spf13/cobra"
)

var (
	buildFlags configFlags
	buildOpts  struct {
		source string
		deps   []string
		force  bool
		output string
		check  bool
		git    bool
		url    string
		sha256 string
	}
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a configuration into the workspace",
	Long: `Build resolves the configuration, fetches the source, runs the build
plan and packages the result. Identical configurations are served from the
build cache.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildFlags.register(buildCmd.Flags())
	f := buildCmd.Flags()
	f.StringVar(&buildOpts.source, "source", "", "Use an unpacked source tree instead of downloading")
	f.StringArrayVar(&buildOpts.deps, "dep", nil, "Install root of a delegate library (repeatable)")
	f.BoolVar(&buildOpts.force, "force", false, "Rebuild even if a cached build exists")
	f.StringVarP(&buildOpts.output, "output", "o", "", "Copy the package to a directory or .zip file")
	f.BoolVar(&buildOpts.check, "check", false, "Compile a consumer program and verify its delegates")
	f.BoolVar(&buildOpts.git, "git", false, "Check out the release tag with git instead of downloading the archive")
	f.StringVar(&buildOpts.url, "url", "", "Download the source archive from this URL instead of the GitHub release")
	f.StringVar(&buildOpts.sha256, "sha256", "", "Expected SHA-256 of the source archive")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	res, err := buildFlags.resolve(cmd)
	if err != nil {
		return err
	}

	// Resolve paths before the build runs tools in other directories.
	if buildOpts.output != "" {
		if buildOpts.output, err = filepath.Abs(buildOpts.output); err != nil {
			return fmt.Errorf("failed to resolve output path: %w", err)
		}
	}
	srcDir := buildOpts.source
	if srcDir != "" {
		if srcDir, err = filepath.Abs(srcDir); err != nil {
			return err
		}
	}

	workspace, err := env.BuildsDir()
	if err != nil {
		return fmt.Errorf("failed to get workspace dir: %w", err)
	}

	stdout, stderr := io.Discard, io.Discard
	if verbose {
		stdout, stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
	}
	opts := build.Options{
		WorkspaceDir: workspace,
		SourceDir:    srcDir,
		Deps:         buildOpts.deps,
		ArchiveURL:   buildOpts.url,
		SHA256:       buildOpts.sha256,
		Force:        buildOpts.force,
		Stdout:       stdout,
		Stderr:       stderr,
	}
	if buildOpts.git {
		if buildOpts.url != "" || buildOpts.sha256 != "" {
			return fmt.Errorf("--git cannot be combined with --url or --sha256")
		}
		opts.Fetch = gitFetch(vcs.NewGitVCS())
	}
	builder := build.NewBuilder(opts)
	result, err := builder.Build(ctx, res)
	if err != nil {
		return fmt.Errorf("failed to build %s: %w", res.Version, err)
	}

	w := cmd.OutOrStdout()
	status := "built"
	if result.Cached {
		status = "cached"
	}
	printSuccess(w, fmt.Sprintf("%s %s: %s", res.Version, status, result.Dir))
	printDescriptor(w, result.Descriptor)
	printList(w, "env", envLines(result.Env))

	if buildOpts.check {
		workDir, err := os.MkdirTemp("", "llarmagick-check-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(workDir)
		err = testpkg.Check(ctx, res.Plan.Features, testpkg.Options{
			PackageDir: result.Dir,
			WorkDir:    workDir,
			Toolchain:  res.Toolchain,
			Artifacts:  result.Descriptor,
			Stdout:     stdout,
			Stderr:     stderr,
		})
		if err != nil {
			return fmt.Errorf("consumer check failed: %w", err)
		}
		printSuccess(w, "consumer program links and reports every requested delegate")
	}

	if buildOpts.output != "" {
		if err := outputResult(result.Dir, buildOpts.output); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

// gitFetch checks out the release tag into the fixed-name source directory.
func gitFetch(v vcs.VCS) build.FetchFunc {
	return func(ctx context.Context, ver module.Version, dir string) (string, error) {
		src := filepath.Join(dir, source.Subfolder)
		if err := v.Checkout(ctx, vcs.ImageMagickRemote, ver.Version, src); err != nil {
			return "", err
		}
		return src, nil
	}
}

func envLines(m map[string]string) []string {
	var out []string
	for _, k := range sortedKeys(m) {
		out = append(out, fmt.Sprintf("%s+=%s", k, m[k]))
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// outputResult writes the package to dest.
// If dest ends with ".zip", creates a zip archive; otherwise copies the directory.
func outputResult(srcDir, dest string) error {
	if strings.HasSuffix(dest, ".zip") {
		return zipDir(srcDir, dest)
	}
	return os.CopyFS(dest, os.DirFS(srcDir))
}

// zipDir creates a zip archive at dest from the contents of srcDir.
func zipDir(srcDir, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if err := writeZip(f, srcDir); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeZip(out io.Writer, srcDir string) error {
	w := zip.NewWriter(out)
	err := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		writer, err := w.CreateHeader(header)
		if err != nil {
			return err
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(writer, file)
		return err
	})
	if err != nil {
		w.Close()
		return err
	}
	// Close writes the central directory.
	return w.Close()
}
