package msbuild

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goplus/llarmagick/recipe"
)

// ApplyPatches applies patches to the files below root. Patches of the same
// file are applied in order and the file is written once, only if it
// changed.
func ApplyPatches(root string, patches []recipe.Patch) error {
	var order []string
	byFile := map[string][]recipe.Patch{}
	for _, p := range patches {
		if _, ok := byFile[p.File]; !ok {
			order = append(order, p.File)
		}
		byFile[p.File] = append(byFile[p.File], p)
	}
	for _, file := range order {
		path := filepath.Join(root, filepath.FromSlash(file))
		orig, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("patch %s: %w", file, err)
		}
		content := orig
		for _, p := range byFile[file] {
			content = p.Apply(content)
		}
		if bytes.Equal(content, orig) {
			continue
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return fmt.Errorf("patch %s: %w", file, err)
		}
	}
	return nil
}
