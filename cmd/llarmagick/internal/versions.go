package internal

import (
	"context"
	"fmt"

	"github.com/goplus/llarmagick/internal/vcs"
	"github.com/goplus/llarmagick/mod/module"
	"github.com/goplus/llarmagick/recipe"
	"github.com/goplus/llarmagick/x/gnu"
	"github.com/spf13/cobra"
)

var (
	versionsRemote string
	versionsMajor  int
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List upstream release tags",
	Args:  cobra.NoArgs,
	RunE:  runVersions,
}

func init() {
	versionsCmd.Flags().StringVar(&versionsRemote, "remote", vcs.ImageMagickRemote, "Upstream git repository")
	versionsCmd.Flags().IntVar(&versionsMajor, "major", 0, "Only list releases of this major version")
	rootCmd.AddCommand(versionsCmd)
}

func runVersions(cmd *cobra.Command, args []string) error {
	tags, err := vcs.NewGitVCS().Tags(context.Background(), versionsRemote)
	if err != nil {
		return fmt.Errorf("failed to list tags: %w", err)
	}
	for _, v := range releases(tags, versionsMajor) {
		fmt.Fprintln(cmd.OutOrStdout(), v)
	}
	return nil
}

// releases keeps the tags that parse as release versions, optionally of a
// single major version, in ascending order.
func releases(tags []string, major int) []string {
	var out []string
	for _, tag := range tags {
		m, err := module.Version{Path: recipe.Upstream.Path, Version: tag}.Major()
		if err != nil || (major != 0 && m != major) {
			continue
		}
		out = append(out, tag)
	}
	gnu.Sort(out)
	return out
}
