package build

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goplus/llarmagick/recipe"
	"github.com/qiniu/x/log"
)

// stagePkgConfig copies the .pc file of every enabled delegate from the
// dependency roots into dir. Delegates without a .pc file are skipped with
// a warning and left to configure's own detection.
func stagePkgConfig(dir string, fs *recipe.FeatureSet, deps []string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var staged []string
	for _, d := range fs.Delegates() {
		if d.PkgConfig() == "" {
			continue
		}
		name := d.PkgConfig() + ".pc"
		src, ok := findPC(deps, name)
		if !ok {
			log.Warnf("%s: %s not found in dependency roots, skipping", d, name)
			continue
		}
		if err := copyFile(src, filepath.Join(dir, name)); err != nil {
			return staged, fmt.Errorf("stage %s: %w", name, err)
		}
		staged = append(staged, name)
	}
	return staged, nil
}

func findPC(roots []string, name string) (string, bool) {
	for _, root := range roots {
		for _, sub := range []string{"lib/pkgconfig", "share/pkgconfig", "."} {
			p := filepath.Join(root, filepath.FromSlash(sub), name)
			if _, err := os.Stat(p); err == nil {
				return p, true
			}
		}
	}
	return "", false
}

// copyLicense copies LICENSE from the source tree into <dest>/licenses.
func copyLicense(sourceDir, dest string) error {
	dir := filepath.Join(dest, "licenses")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return copyFile(filepath.Join(sourceDir, "LICENSE"), filepath.Join(dir, "LICENSE"))
}

// packageMSVC collects the headers, libraries and DLLs that VisualMagick
// leaves in the source tree into the package layout.
func packageMSVC(sourceDir, dest string, major int) error {
	include := filepath.Join(dest, "include", fmt.Sprintf("ImageMagick-%d", major))
	groups := []struct {
		pattern string
		dst     string
	}{
		{"MagickCore/*.h", filepath.Join(include, "MagickCore")},
		{"MagickWand/*.h", filepath.Join(include, "MagickWand")},
		{"Magick++/lib/Magick++.h", include},
		{"Magick++/lib/Magick++/*.h", filepath.Join(include, "Magick++")},
		{"VisualMagick/lib/*.lib", filepath.Join(dest, "lib")},
		{"VisualMagick/bin/*.dll", filepath.Join(dest, "bin")},
	}
	for _, g := range groups {
		matches, err := filepath.Glob(filepath.Join(sourceDir, filepath.FromSlash(g.pattern)))
		if err != nil {
			return err
		}
		for _, m := range matches {
			if err := copyFile(m, filepath.Join(g.dst, filepath.Base(m))); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
