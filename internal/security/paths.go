// Package security guards the file paths the CLI derives from manifests
// and identifiers.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// WithinDir reports an error when path, after cleaning and resolving
// symlinks, lies outside dir. Paths that do not exist yet are checked
// through their nearest existing parent, so a symlinked parent cannot be
// used to escape.
func WithinDir(path, dir string) error {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory path: %w", err)
	}

	canonicalPath := resolveExisting(absPath)
	canonicalDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", path, dir)
	}
	return nil
}

// resolveExisting resolves symlinks in the longest existing prefix of
// abs and re-attaches the rest.
func resolveExisting(abs string) string {
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	for check := abs; ; {
		parent := filepath.Dir(check)
		if parent == check {
			return abs
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rest, _ := filepath.Rel(parent, abs)
			return filepath.Join(resolved, rest)
		}
		check = parent
	}
}

// SanitizeFilename makes a safe file name stem from an identifier such
// as a sensor name or run ID. Characters other than ASCII letters, digits,
// dot, underscore and dash become a single underscore.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
