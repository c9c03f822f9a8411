package config

import (
	"os"
	"path/filepath"
	"strings"
)

// EnvHome names the directory relative runtime paths such as paths.logs resolve
// against. Unset, they resolve next to the drafts binary.
const EnvHome = "DRAFTS_HOME"

// homeDir is $DRAFTS_HOME, else the directory of the running binary, else the
// working directory.
func homeDir() string {
	if home := strings.TrimSpace(os.Getenv(EnvHome)); home != "" {
		return filepath.Clean(home)
	}
	if exe, err := os.Executable(); err == nil && exe != "" {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		return filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// resolvePath returns raw as an absolute path under homeDir. An empty raw falls
// back to the fallback subdirectory.
func resolvePath(raw, fallback string) string {
	target := strings.TrimSpace(raw)
	if target == "" {
		target = fallback
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Join(homeDir(), target)
}
