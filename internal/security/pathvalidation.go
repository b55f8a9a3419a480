// Package security validates user-supplied output paths and file names.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// canonical returns the absolute form of path with symlinks resolved. A path
// that does not exist yet is resolved through its deepest existing ancestor,
// so a new file under a symlinked directory still lands where the link
// points.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	rest := ""
	for dir := abs; ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(resolved, rest), nil
		}
		if filepath.Dir(dir) == dir {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(dir), rest)
	}
}

// ValidatePathWithinDirectory rejects filePath unless it resolves, after
// cleaning and symlink resolution, to safeDir or somewhere below it.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	path, err := canonical(filePath)
	if err != nil {
		return err
	}
	dir, err := canonical(safeDir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", filePath, safeDir)
	}
	return nil
}

// ValidatePathWithinAllowedDirs accepts filePath if it lies within any of
// allowedDirs.
func ValidatePathWithinAllowedDirs(filePath string, allowedDirs []string) error {
	if len(allowedDirs) == 0 {
		return errors.New("no allowed directories specified")
	}
	for _, dir := range allowedDirs {
		if ValidatePathWithinDirectory(filePath, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("path must be within one of the allowed directories: %v", allowedDirs)
}

// ValidateReportPath checks that a report destination lies within the
// temp directory or the current working directory.
func ValidateReportPath(filePath string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	return ValidatePathWithinAllowedDirs(filePath, []string{os.TempDir(), cwd})
}

// maxFilenameBytes caps names built by SanitizeFilename.
const maxFilenameBytes = 128

// SanitizeFilename turns an arbitrary identifier, such as a video id, into a
// file name. Runs of characters other than ASCII letters, digits, dot,
// underscore and dash become one underscore; the result is capped at 128
// bytes, trimmed of leading and trailing dots and underscores, and never
// empty.
func SanitizeFilename(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range s {
		if b.Len() >= maxFilenameBytes {
			break
		}
		ok := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			r == '.' || r == '_' || r == '-'
		if !ok {
			if !pending {
				b.WriteByte('_')
				pending = true
			}
			continue
		}
		b.WriteRune(r)
		pending = false
	}
	if out := strings.Trim(b.String(), "._"); out != "" {
		return out
	}
	return "unknown"
}
