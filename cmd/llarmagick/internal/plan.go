package internal

import (
	"fmt"
	"io"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/goplus/llarmagick/recipe"
	"github.com/spf13/cobra"
)

var (
	planFlags configFlags
	planDump  bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Resolve a configuration and print its build plan",
	Long: `Plan normalizes the options, selects the toolchain strategy and prints
the resulting configure arguments or VisualMagick stages. Nothing is built.`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func init() {
	planFlags.register(planCmd.Flags())
	planCmd.Flags().BoolVar(&planDump, "dump", false, "Dump the full resolution")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	res, err := planFlags.resolve(cmd)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if planDump {
		spew.Fdump(w, res)
		return nil
	}
	printPlan(w, res)
	return nil
}

func printPlan(w io.Writer, res *recipe.Resolution) {
	printSection(w, fmt.Sprintf("%s (%s)", res.Version, res.Plan.Family))
	printLabelValue(w, "key", res.Key())
	m := res.Matrix()
	printLabelValue(w, "matrix", m.String())
	for _, msg := range res.Features.Warnings() {
		printWarning(w, msg)
	}
	for _, d := range res.Plan.Pruned {
		printWarning(w, fmt.Sprintf("%s is not buildable with %s and was disabled", d, res.Toolchain.Compiler))
	}

	switch {
	case res.Plan.POSIX != nil:
		p := res.Plan.POSIX
		printList(w, "configure", p.ConfigureArgs)
		var env []string
		for _, k := range sortedKeys(p.Env) {
			env = append(env, k+"="+p.Env[k])
		}
		if len(env) > 0 {
			printList(w, "env", env)
		}
		printList(w, "then", []string{"make", "make install"})
	case res.Plan.MSVC != nil:
		p := res.Plan.MSVC
		printLabelValue(w, "bootstrap", target(p.Bootstrap))
		printLabelValue(w, "configurator", p.Configurator+" "+strings.Join(p.ConfiguratorArgs, " "))
		var patches []string
		for _, pt := range p.Patches {
			patches = append(patches, pt.String())
		}
		printList(w, "patches", patches)
		var targets []string
		for _, t := range p.Targets {
			targets = append(targets, target(t))
		}
		printList(w, "projects", targets)
	}
}

func target(t recipe.ProjectTarget) string {
	return fmt.Sprintf("%s (%s|%s)", t.Project, t.Configuration, t.Platform)
}
