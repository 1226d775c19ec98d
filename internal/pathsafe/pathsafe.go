// Package pathsafe turns untrusted, user-supplied relative names into paths
// confined to a designated root directory.
//
// Every filesystem path built from request or archive input goes through
// Normalize (structure) and Resolve (containment after symlink resolution)
// before any read or write.
package pathsafe

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"planstore/internal/apperr"
)

// FallbackName replaces a file name that sanitizes to nothing.
const FallbackName = "file"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Normalize validates the structure of a slash- or backslash-separated
// relative path and returns its cleaned, slash-separated form without a
// leading slash. Inputs carrying a ".." segment are rejected outright, even
// when cleaning would keep them inside the root.
func Normalize(rel string) (string, error) {
	p := strings.ReplaceAll(rel, `\`, "/")
	for _, segment := range strings.Split(p, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: %q", apperr.ErrInvalidPath, rel)
		}
	}
	p = strings.TrimLeft(path.Clean("/"+p), "/")
	if p == "" || p == "." {
		return "", fmt.Errorf("%w: %q", apperr.ErrInvalidPath, rel)
	}
	return p, nil
}

// Resolve normalizes rel, joins it onto root and resolves symlinks along the
// existing part of the result. The returned path is absolute and lies at or
// below the resolved root; anything else is ErrInvalidPath. The target does
// not have to exist.
func Resolve(root, rel string) (string, error) {
	clean, err := Normalize(rel)
	if err != nil {
		return "", err
	}
	rootReal, err := Realpath(root)
	if err != nil {
		return "", fmt.Errorf("resolve root %s: %w", root, err)
	}
	full, err := Realpath(filepath.Join(rootReal, filepath.FromSlash(clean)))
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", rel, err)
	}
	if !Within(rootReal, full) {
		return "", fmt.Errorf("%w: %q", apperr.ErrInvalidPath, rel)
	}
	return full, nil
}

// Within reports whether candidate equals root or is a descendant of it.
// Both arguments must already be resolved.
func Within(root, candidate string) bool {
	if candidate == root {
		return true
	}
	return strings.HasPrefix(candidate, strings.TrimSuffix(root, string(os.PathSeparator))+string(os.PathSeparator))
}

// Realpath returns the absolute form of p with symlinks resolved. Components
// that do not exist yet are appended unresolved to the deepest existing
// ancestor.
func Realpath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	var missing []string
	current := abs
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return abs, nil
		}
		missing = append([]string{filepath.Base(current)}, missing...)
		current = parent
	}
}

// SanitizeFileName reduces a display name to a safe base file name: the last
// path component with every run of characters outside [A-Za-z0-9._-] replaced
// by "_" and leading or trailing dots and underscores removed.
func SanitizeFileName(name string) string {
	raw := strings.TrimSpace(name)
	if raw == "" {
		return FallbackName
	}
	raw = path.Base(strings.ReplaceAll(raw, `\`, "/"))
	safe := strings.Trim(unsafeChars.ReplaceAllString(raw, "_"), "._")
	if safe == "" {
		return FallbackName
	}
	return safe
}

// SanitizeDeviceID reduces a device identifier to a single safe directory
// component.
func SanitizeDeviceID(id string) (string, error) {
	safe := strings.Trim(unsafeChars.ReplaceAllString(strings.TrimSpace(id), "_"), "._")
	if safe == "" {
		return "", fmt.Errorf("%w: missing or invalid device id", apperr.ErrInvalidInput)
	}
	return safe, nil
}
