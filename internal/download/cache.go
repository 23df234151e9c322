package download

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/go-wdl/wdlrun/internal/errs"
)

// Cache is the download cache (spec.md §4.M "a separate download cache
// keyed by URI alone, with shared flocks taken on cached entries to
// coordinate with external eviction"). Each URI gets its own directory
// under Dir, holding the fetched payload plus a sentinel lock file that
// Lookup holds with a shared lock until the caller invokes its release
// func, so an external eviction tool can safely reclaim an entry only once
// it acquires that lock exclusively.
type Cache struct {
	Dir string
}

func NewCache(dir string) (*Cache, error) {
	if dir == "" {
		return &Cache{}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.KindFilesystem, err, "create download cache directory %s", dir)
	}
	return &Cache{Dir: dir}, nil
}

func (c *Cache) entryDir(uri string) string {
	h := sha256.Sum256([]byte(uri))
	return filepath.Join(c.Dir, hex.EncodeToString(h[:])[:32])
}

// Lookup returns the cached payload path for uri, holding a shared flock
// on it until release is called. The caller must call release once done
// reading the file, even on a cache miss (where it is a no-op).
func (c *Cache) Lookup(uri, payloadName string) (path string, ok bool, release func(), err error) {
	if c.Dir == "" {
		return "", false, func() {}, nil
	}
	dir := c.entryDir(uri)
	payload := filepath.Join(dir, payloadName)
	if _, statErr := os.Stat(payload); statErr != nil {
		return "", false, func() {}, nil
	}

	lockPath := filepath.Join(dir, ".lock")
	f, openErr := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if openErr != nil {
		return "", false, func() {}, errs.Wrap(errs.KindFilesystem, openErr, "open download cache lock")
	}
	if flockErr := syscall.Flock(int(f.Fd()), syscall.LOCK_SH); flockErr != nil {
		f.Close()
		return "", false, func() {}, errs.Wrap(errs.KindFilesystem, flockErr, "lock download cache entry")
	}
	return payload, true, func() {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}

// Store adopts a freshly-downloaded file at srcPath into the cache under
// uri, returning the cached path.
func (c *Cache) Store(uri, payloadName, srcPath string) (string, error) {
	if c.Dir == "" {
		return srcPath, nil
	}
	dir := c.entryDir(uri)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errs.Wrap(errs.KindFilesystem, err, "create download cache entry")
	}
	dest := filepath.Join(dir, payloadName)
	if err := os.Rename(srcPath, dest); err != nil {
		if err := copyFile(srcPath, dest); err != nil {
			return "", errs.Wrap(errs.KindFilesystem, err, "store download cache entry")
		}
	}
	return dest, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
