package env

import (
	"os"
	"path/filepath"
)

// WorkDirEnv overrides the default work directory when set.
const WorkDirEnv = "LLARMAGICK_WORKDIR"

// WorkDir returns the root under which builds and downloads are kept.
func WorkDir() (string, error) {
	if dir := os.Getenv(WorkDirEnv); dir != "" {
		return filepath.Abs(dir)
	}
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".llarmagick"), nil
}

// BuildsDir returns the workspace directory for per-configuration builds,
// creating it if needed.
func BuildsDir() (string, error) {
	return subdir("builds")
}

// DownloadsDir returns the directory where source archives are cached,
// creating it if needed.
func DownloadsDir() (string, error) {
	return subdir("downloads")
}

func subdir(name string) (string, error) {
	root, err := WorkDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}
