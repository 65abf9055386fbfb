// Package source downloads and unpacks upstream release archives.
package source

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goplus/llarmagick/mod/module"
	"github.com/klauspost/compress/gzip"
	"github.com/qiniu/x/log"
)

// Subfolder is the fixed name the unpacked tree is renamed to.
const Subfolder = "source_subfolder"

// ErrChecksum is returned when the downloaded archive does not match the
// expected SHA-256.
var ErrChecksum = errors.New("source: checksum mismatch")

// ArchiveURL returns the GitHub release archive for v.
func ArchiveURL(v module.Version) string {
	return fmt.Sprintf("https://github.com/%s/archive/%s.tar.gz", v.Path, v.Version)
}

// A Fetcher downloads archives with bounded retries.
type Fetcher struct {
	Client   *http.Client
	Attempts int
	Backoff  time.Duration
}

// Fetch is shorthand for a default Fetcher's Fetch.
func Fetch(ctx context.Context, url, sum, destDir string) (string, error) {
	return (&Fetcher{}).Fetch(ctx, url, sum, destDir)
}

// Fetch downloads url, checks it against sum when sum is non-empty, and
// extracts it under destDir. The single top-level directory of the archive
// is renamed to Subfolder, whose path is returned.
func (f *Fetcher) Fetch(ctx context.Context, url, sum, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	archive := filepath.Join(destDir, filepath.Base(url))
	if err := f.download(ctx, url, archive); err != nil {
		return "", err
	}
	defer os.Remove(archive)

	if sum != "" {
		if err := checkSum(archive, sum); err != nil {
			return "", err
		}
	}

	target := filepath.Join(destDir, Subfolder)
	if err := os.RemoveAll(target); err != nil {
		return "", err
	}
	tmp, err := os.MkdirTemp(destDir, ".extract-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmp)

	if err := extract(archive, tmp); err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", url, err)
	}
	top, err := topLevelDir(tmp)
	if err != nil {
		return "", err
	}
	if err := os.Rename(top, target); err != nil {
		return "", err
	}
	return target, nil
}

func (f *Fetcher) download(ctx context.Context, url, dest string) error {
	attempts := f.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := f.Backoff
	if backoff == 0 {
		backoff = time.Second
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			log.Warnf("download %s: %v, retrying", url, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff << (i - 1)):
			}
		}
		var retry bool
		retry, err = f.get(ctx, url, dest)
		if err == nil || !retry {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	return nil
}

// get performs one download attempt. It reports whether a failure is
// transient.
func (f *Fetcher) get(ctx context.Context, url, dest string) (retry bool, err error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("unexpected status %s", resp.Status)
		return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests, err
	}

	out, err := os.Create(dest)
	if err != nil {
		return false, err
	}
	if _, err = io.Copy(out, resp.Body); err != nil {
		out.Close()
		return ctx.Err() == nil, err
	}
	return false, out.Close()
}

func checkSum(path, want string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	if got := hex.EncodeToString(h.Sum(nil)); !strings.EqualFold(got, want) {
		return fmt.Errorf("%w: got %s, want %s", ErrChecksum, got, want)
	}
	return nil
}

func extract(archive, dest string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()

	root, err := filepath.EvalSymlinks(dest)
	if err != nil {
		return err
	}
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		name, err := filepath.Localize(strings.TrimSuffix(hdr.Name, "/"))
		if err != nil {
			return fmt.Errorf("unsafe entry %q: %w", hdr.Name, err)
		}
		path := filepath.Join(root, name)
		if err := checkPath(root, path); err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(path, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			target := filepath.Join(filepath.Dir(name), hdr.Linkname)
			if filepath.IsAbs(hdr.Linkname) || !filepath.IsLocal(target) {
				return fmt.Errorf("unsafe link %s -> %s", hdr.Name, hdr.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, path); err != nil {
				return err
			}
		case tar.TypeXGlobalHeader:
			// GitHub archives carry the commit id here.
		default:
			log.Debugf("skip %s: type %c", hdr.Name, hdr.Typeflag)
		}
	}
}

// checkPath fails if the parent of path, resolved through links extracted
// so far, is outside root.
func checkPath(root, path string) error {
	dir := filepath.Dir(path)
	for {
		if _, err := os.Lstat(dir); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(root, real)
	if err != nil || !filepath.IsLocal(rel) {
		return fmt.Errorf("entry %s escapes the extraction dir", path)
	}
	return nil
}

func writeFile(path string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// A later entry replaces a link of the same name instead of writing
	// through it.
	if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func topLevelDir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return "", fmt.Errorf("archive must contain exactly one top-level directory, found %d entries", len(entries))
	}
	return filepath.Join(dir, entries[0].Name()), nil
}
