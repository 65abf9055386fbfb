package internal

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/goplus/llarmagick/internal/profile"
	"github.com/goplus/llarmagick/recipe"
	"github.com/spf13/cobra"
)

var (
	optionsFlags  configFlags
	optionsMatrix []string
)

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "List options, or resolve every combination of a matrix",
	Long: `Options lists the options of the selected schema with their defaults.
When the profile declares a matrix, or --matrix is given, every combination
is resolved and its configuration key or error is printed.`,
	Args: cobra.NoArgs,
	RunE: runOptions,
}

func init() {
	optionsFlags.register(optionsCmd.Flags())
	optionsCmd.Flags().StringArrayVarP(&optionsMatrix, "matrix", "m", nil, "Matrix axis as name=v1,v2 (repeatable)")
	rootCmd.AddCommand(optionsCmd)
}

func runOptions(cmd *cobra.Command, args []string) error {
	p, err := optionsFlags.load(cmd)
	if err != nil {
		return err
	}
	for _, axis := range optionsMatrix {
		name, values, err := parseAxis(axis)
		if err != nil {
			return err
		}
		if p.Matrix == nil {
			p.Matrix = map[string][]string{}
		}
		p.Matrix[name] = values
	}

	w := cmd.OutOrStdout()
	if len(p.Matrix) == 0 {
		schema, err := recipe.SchemaFor(p.Config.Schema)
		if err != nil {
			return err
		}
		printSchema(w, schema)
		return nil
	}
	return printCombinations(w, p)
}

func printSchema(w io.Writer, s *recipe.Schema) {
	printSection(w, fmt.Sprintf("schema v%d", s.Version))
	defaults := s.Defaults()
	for _, name := range s.Options() {
		def, ok := defaults[name]
		if !ok {
			def = "(deprecated)"
		}
		printLabelValue(w, name, def)
	}
	printLabelValue(w, "msvc", s.MSVC())
}

// printCombinations resolves every combination of p. It fails when any
// combination does not resolve.
func printCombinations(w io.Writer, p *profile.Profile) error {
	cfgs := p.Combinations()
	printSection(w, fmt.Sprintf("%d combinations", len(cfgs)))
	failed := 0
	for _, cfg := range cfgs {
		label := axisValues(p.Matrix, cfg.Options)
		res, err := recipe.Resolve(cfg)
		if err != nil {
			failed++
			printWarning(w, fmt.Sprintf("%s: %v", label, err))
			continue
		}
		printSuccess(w, fmt.Sprintf("%s: %s", label, res.Key()))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d combinations failed to resolve", failed, len(cfgs))
	}
	return nil
}

func axisValues(matrix map[string][]string, options map[string]string) string {
	var parts []string
	for _, k := range slices.Sorted(maps.Keys(matrix)) {
		parts = append(parts, k+"="+options[k])
	}
	return strings.Join(parts, " ")
}
