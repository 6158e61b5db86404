package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/podscribe/internal/config"
	"github.com/hpungsan/podscribe/internal/errors"
	"github.com/mitchellh/go-homedir"
)

// PathCheckMode indicates whether the path check is for reading or writing.
type PathCheckMode int

const (
	PathCheckRead  PathCheckMode = iota // import
	PathCheckWrite                      // export
)

// ValidatePath checks an import/export path:
//  1. no ".." components
//  2. .jsonl or .jsonl.zst extension
//  3. file sits DIRECTLY in ~/.podscribe/exports or an allowed_paths entry
//     (skipped when allow_unsafe_paths is set)
//  4. neither the file nor its parent directory is a symlink
//
// Disallowing subdirectories leaves only the final component open to a
// symlink swap, and that one is closed by O_NOFOLLOW at open time.
func ValidatePath(path string, mode PathCheckMode, cfg *config.Config) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if !HasExportExt(cleaned) {
		return errors.NewInvalidRequest("path must have .jsonl or .jsonl.zst extension")
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}

	if cfg == nil || !cfg.AllowUnsafePaths {
		allowedDirs, err := allowedExportDirs(cfg)
		if err != nil {
			return err
		}
		parentDir := filepath.Dir(absPath)
		if !isDirectlyInAllowedDir(parentDir, allowedDirs) {
			return errors.NewInvalidRequest(
				fmt.Sprintf("file must be directly in an allowed directory (no subdirectories); allowed: %v", allowedDirs))
		}
		if isSymlink(parentDir) {
			return errors.NewInvalidRequest("parent directory must not be a symlink")
		}
	}

	if mode == PathCheckRead {
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			return errors.NewFileNotFound(path)
		}
	}

	// Applies even with allow_unsafe_paths.
	if isSymlink(absPath) {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	return nil
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// allowedExportDirs returns the default exports dir plus absolute
// allowed_paths entries. Entries that are themselves symlinks are resolved.
func allowedExportDirs(cfg *config.Config) ([]string, error) {
	defaultDir, err := DefaultExportsDir()
	if err != nil {
		return nil, err
	}

	dirs := []string{defaultDir}
	if cfg != nil {
		for _, p := range cfg.AllowedPaths {
			if filepath.IsAbs(p) {
				dirs = append(dirs, filepath.Clean(p))
			}
		}
	}

	for i, d := range dirs {
		if isSymlink(d) {
			resolved, err := filepath.EvalSymlinks(d)
			if err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
			dirs[i] = resolved
		}
	}
	return dirs, nil
}

// isDirectlyInAllowedDir checks if parentDir exactly matches one of the allowed directories.
func isDirectlyInAllowedDir(parentDir string, allowedDirs []string) bool {
	parentDir = filepath.Clean(parentDir)
	for _, dir := range allowedDirs {
		if parentDir == filepath.Clean(dir) {
			return true
		}
	}
	return false
}

// DefaultExportsDir returns the default exports directory (~/.podscribe/exports).
func DefaultExportsDir() (string, error) {
	homeDir, err := homedir.Dir()
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("resolve home directory: %w", err))
	}
	return filepath.Join(homeDir, ".podscribe", "exports"), nil
}

// HasExportExt reports whether path ends in .jsonl or .jsonl.zst.
func HasExportExt(path string) bool {
	return strings.HasSuffix(path, ".jsonl") || IsCompressedPath(path)
}

// IsCompressedPath reports whether path names a zstd-compressed export.
func IsCompressedPath(path string) bool {
	return strings.HasSuffix(path, ".jsonl.zst")
}

// containsTraversal checks if path contains a ".." component, splitting on
// both separators so Windows paths typed with '/' are caught too.
func containsTraversal(path string) bool {
	parts := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == filepath.Separator
	})
	for _, part := range parts {
		if part == ".." {
			return true
		}
	}
	return false
}

// SanitizeForFilename makes s safe to embed in a filename: separators and
// ".." become dashes and control characters are dropped.
func SanitizeForFilename(s string) string {
	s = strings.NewReplacer("/", "-", "\\", "-", "..", "-").Replace(s)
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if s == "" {
		s = "unnamed"
	}
	return s
}
