package utils

import (
	"path"
	"strings"
)

// ResolvePath resolves a relative path against a base path.
// Archive entry names always use forward slashes, so path is used instead of filepath.
func ResolvePath(basePath, relativePath string) string {
	baseDir := path.Dir(basePath)
	if baseDir == "." {
		return relativePath
	}

	// Handle paths with fragments
	fragment := ""
	if idx := strings.LastIndex(relativePath, "#"); idx != -1 {
		fragment = relativePath[idx:]
		relativePath = relativePath[:idx]
	}

	resolved := path.Join(baseDir, relativePath)

	return resolved + fragment
}

// JoinEntry joins dir and name into a cleaned archive entry name. Leading "./" and
// "/" are dropped and ".." segments that climb above the root are discarded.
func JoinEntry(dir, name string) string {
	joined := path.Join("/", dir, name)
	return strings.TrimPrefix(joined, "/")
}

// StripFragment removes a trailing "#fragment" or "?query" from ref
func StripFragment(ref string) string {
	if idx := strings.IndexAny(ref, "#?"); idx != -1 {
		return ref[:idx]
	}
	return ref
}
