package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Key identifies one version of an archive file. A new modification time yields a
// new Key, so everything cached under the old one stops matching.
type Key struct {
	Path    string
	ModTime time.Time
}

// NewKey stats filePath and returns its Key
func NewKey(filePath string) (Key, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return Key{}, err
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return Key{}, fmt.Errorf("failed to stat archive '%s': %w", absPath, err)
	}
	if info.IsDir() {
		return Key{}, fmt.Errorf("archive '%s' is a directory", absPath)
	}

	return Key{Path: absPath, ModTime: info.ModTime()}, nil
}

// ID renders the key as "path@unixnano"
func (k Key) ID() string {
	return k.Path + "@" + strconv.FormatInt(k.ModTime.UnixNano(), 10)
}

// Equal reports whether k and other name the same version of the same file
func (k Key) Equal(other Key) bool {
	return k.Path == other.Path && k.ModTime.Equal(other.ModTime)
}

func (k Key) String() string {
	return k.ID()
}
