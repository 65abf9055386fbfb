package build

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/goplus/llarmagick/internal/build/lockedfile"
	"github.com/goplus/llarmagick/recipe"
	"github.com/qiniu/x/log"
)

// Workspace directory layout:
//
//	workspaceDir/
//	  <escaped>/                       # upstream-level dir (cacheDir)
//	    .cache.json                    # build cache: "version-key" → buildEntry
//	    .cache.lock                    # guards read-modify-write of .cache.json
//	    <version>-<key>.lock           # per-configuration lock
//	  <escaped>@<version>-<key>/       # package dir (installDir)
//	    include/ImageMagick-<major>/
//	    lib/
//	    bin/
//	    licenses/
//	  <escaped>@<version>-<key>.work/  # scratch: source tree, build tree, staged .pc files
const (
	cacheFile     = ".cache.json"
	cacheLockFile = ".cache.lock"
)

// buildEntry records a successful build.
type buildEntry struct {
	Descriptor recipe.ArtifactDescriptor `json:"descriptor"`
	Matrix     string                    `json:"matrix"`
	BuildTime  time.Time                 `json:"build_time"`
}

// buildCache maps "version-key" to build entries.
type buildCache struct {
	Cache map[string]*buildEntry `json:"cache"`
}

func cacheKey(version, key string) string {
	return version + "-" + key
}

func (c *buildCache) get(version, key string) (*buildEntry, bool) {
	entry, ok := c.Cache[cacheKey(version, key)]
	return entry, ok
}

func (c *buildCache) set(version, key string, entry *buildEntry) {
	if c.Cache == nil {
		c.Cache = make(map[string]*buildEntry)
	}
	c.Cache[cacheKey(version, key)] = entry
}

func (c *buildCache) remove(version, key string) {
	delete(c.Cache, cacheKey(version, key))
}

// updateCache applies fn to the cache file in dir and saves it. The file is
// re-read under the upstream-level lock, so entries written meanwhile by
// builds of other configurations are kept.
func updateCache(dir string, fn func(*buildCache)) error {
	unlock, err := lockedfile.MutexAt(filepath.Join(dir, cacheLockFile)).Lock()
	if err != nil {
		return err
	}
	defer unlock()

	cache, err := loadCache(dir)
	if err != nil {
		log.Warnf("ignore unreadable build cache: %v", err)
		cache = &buildCache{}
	}
	fn(cache)
	return saveCache(dir, cache)
}

// loadCache reads the cache file in dir. A missing file is an empty cache.
func loadCache(dir string) (*buildCache, error) {
	data, err := os.ReadFile(filepath.Join(dir, cacheFile))
	if os.IsNotExist(err) {
		return &buildCache{}, nil
	}
	if err != nil {
		return nil, err
	}
	var cache buildCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

// saveCache writes cache to dir, replacing the file atomically.
func saveCache(dir string, cache *buildCache) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, cacheFile+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, cacheFile))
}
