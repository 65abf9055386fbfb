package internal

import (
	"encoding/json"
	"io"

	"github.com/goplus/llarmagick/recipe"
	"github.com/spf13/cobra"
)

var (
	infoFlags configFlags
	infoJSON  bool
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the artifacts a configuration produces",
	Long: `Info prints the include directories, libraries (in link order) and
preprocessor definitions consumers of the configuration use.`,
	Args: cobra.NoArgs,
	RunE: runInfo,
}

func init() {
	infoFlags.register(infoCmd.Flags())
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "Print the descriptor as JSON")
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	res, err := infoFlags.resolve(cmd)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if infoJSON {
		return writeJSON(w, res.Artifacts)
	}
	printDescriptor(w, res.Artifacts)
	return nil
}

func printDescriptor(w io.Writer, d recipe.ArtifactDescriptor) {
	printList(w, "includedirs", d.IncludeDirs)
	printList(w, "libs", d.Libs)
	printList(w, "defines", d.Defines)
	printList(w, "bindirs", d.BinDirs)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
