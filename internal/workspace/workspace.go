// Package workspace resolves and guards the staging directories that
// packaging runs clear and fill.
package workspace

import (
	"os"
	"path/filepath"
	"runtime"
)

// CacheDirEnv overrides the cache root.
const CacheDirEnv = "HWPACK_CACHE_DIR"

// DefaultPath returns the per-module workspace used when none is configured.
func DefaultPath(moduleName string) string {
	return filepath.Join(CacheRoot(), "workspace", moduleName)
}

// CacheRoot returns the root cache directory
func CacheRoot() string {
	return cacheRootWith(os.Getenv, runtime.GOOS)
}

func cacheRootWith(getenv func(string) string, goos string) string {
	if cacheDir := getenv(CacheDirEnv); cacheDir != "" {
		return cacheDir
	}

	switch goos {
	case "darwin":
		if home := getenv("HOME"); home != "" {
			return filepath.Join(home, "Library", "Caches", "hwpack")
		}
	case "windows":
		if localAppData := getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "hwpack", "cache")
		}
	default:
		if xdgCache := getenv("XDG_CACHE_HOME"); xdgCache != "" {
			return filepath.Join(xdgCache, "hwpack")
		}
		if home := getenv("HOME"); home != "" {
			return filepath.Join(home, ".cache", "hwpack")
		}
	}

	return filepath.Join(os.TempDir(), "hwpack", "cache")
}
