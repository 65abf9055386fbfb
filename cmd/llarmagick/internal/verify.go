package internal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/goplus/llarmagick/internal/testpkg"
	"github.com/goplus/llarmagick/recipe"
	"github.com/spf13/cobra"
)

var (
	verifyFlags  configFlags
	verifyMagick string
)

var verifyCmd = &cobra.Command{
	Use:   "verify [file|-]",
	Short: "Check that a build reports every requested delegate",
	Long: `Verify reads the output of "magick -version" or of the consumer program
from a file, standard input, or by running the magick binary given with
--magick, and checks that every delegate enabled by the configuration is
listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	verifyFlags.register(verifyCmd.Flags())
	verifyCmd.Flags().StringVar(&verifyMagick, "magick", "", "Run this magick binary with -version")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	res, err := verifyFlags.resolve(cmd)
	if err != nil {
		return err
	}
	out, err := verifyInput(cmd, args)
	if err != nil {
		return err
	}
	line, err := testpkg.Delegates(out)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	err = recipe.VerifyDelegates(res.Plan.Features, line)
	var missing *recipe.MissingDelegatesError
	if errors.As(err, &missing) {
		for _, d := range missing.Missing {
			printWarning(w, fmt.Sprintf("%s (%s) not compiled in", d, d.Token()))
		}
	}
	if err != nil {
		return err
	}
	printSuccess(w, fmt.Sprintf("all %d requested delegates present", len(res.Plan.Features.Delegates())))
	return nil
}

func verifyInput(cmd *cobra.Command, args []string) ([]byte, error) {
	switch {
	case verifyMagick != "":
		return exec.Command(verifyMagick, "-version").Output()
	case len(args) == 0 || args[0] == "-":
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}
