package datastore

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"planstore/internal/apperr"
	"planstore/internal/model"
	"planstore/internal/pathsafe"
)

// DeviceFilesDir is the data directory subtree holding device attachments.
// It doubles as the path prefix of attachment entries in archives.
const DeviceFilesDir = "device-files"

const (
	defaultMimeType = "application/octet-stream"
	tempSuffix      = ".tmp"
)

// ExportEntry is one attachment to be written into an archive.
type ExportEntry struct {
	AbsPath string
	RelPath string
}

// DeviceFiles owns the per-device attachment tree under
// <dataDir>/device-files/<deviceId>/<uniqueName>.
type DeviceFiles struct {
	dataDir string
	root    string
	names   NameGenerator
	now     func() time.Time
}

// NewDeviceFiles returns a DeviceFiles rooted at dataDir/device-files.
func NewDeviceFiles(dataDir string, names NameGenerator) *DeviceFiles {
	return &DeviceFiles{
		dataDir: dataDir,
		root:    filepath.Join(dataDir, DeviceFilesDir),
		names:   names,
		now:     time.Now,
	}
}

// Root returns the attachment tree root.
func (d *DeviceFiles) Root() string { return d.root }

// Save stores data for deviceID under a generated unique name and returns its
// reference. The device directory is created on first use.
func (d *DeviceFiles) Save(deviceID, displayName, mimeType string, data []byte) (model.FileReference, error) {
	safeDevice, err := pathsafe.SanitizeDeviceID(deviceID)
	if err != nil {
		return model.FileReference{}, err
	}
	safeName := pathsafe.SanitizeFileName(displayName)
	ext := filepath.Ext(safeName)
	unique := d.names.Unique(strings.TrimSuffix(safeName, ext), ext)

	dir := filepath.Join(d.root, safeDevice)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.FileReference{}, fmt.Errorf("create device directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, unique), data, 0o644); err != nil {
		return model.FileReference{}, fmt.Errorf("write device file: %w", err)
	}

	name := baseName(displayName)
	if name == "" {
		name = safeName
	}
	rel := path.Join(DeviceFilesDir, safeDevice, unique)
	return d.reference(rel, name, ResolveMimeType(mimeType, safeName), int64(len(data))), nil
}

// ResolveForRead validates rel as a path inside the attachment tree and
// returns the resolved absolute path together with the normalized relative
// path. Paths elsewhere in the data directory are ErrInvalidPath; missing
// files are ErrNotFound.
func (d *DeviceFiles) ResolveForRead(rel string) (string, string, error) {
	clean, err := pathsafe.Normalize(rel)
	if err != nil {
		return "", "", err
	}
	if !strings.HasPrefix(clean, DeviceFilesDir+"/") {
		return "", "", fmt.Errorf("%w: %q", apperr.ErrInvalidPath, rel)
	}
	full, err := pathsafe.Resolve(d.dataDir, clean)
	if err != nil {
		return "", "", err
	}
	rootReal, err := pathsafe.Realpath(d.root)
	if err != nil {
		return "", "", fmt.Errorf("resolve device files root: %w", err)
	}
	if !pathsafe.Within(rootReal, full) {
		return "", "", fmt.Errorf("%w: %q", apperr.ErrInvalidPath, rel)
	}
	fi, err := os.Stat(full)
	if err != nil || !fi.Mode().IsRegular() {
		return "", "", fmt.Errorf("%w: %s", apperr.ErrNotFound, clean)
	}
	return full, clean, nil
}

// Rename gives the attachment at rel a new on-disk name derived from
// requestedName. The current extension is kept when the new name has none.
// A collision with another file is resolved by one disambiguated retry.
func (d *DeviceFiles) Rename(rel, requestedName string) (model.FileReference, error) {
	full, _, err := d.ResolveForRead(rel)
	if err != nil {
		return model.FileReference{}, err
	}
	requested := baseName(requestedName)
	if requested == "" {
		return model.FileReference{}, fmt.Errorf("%w: missing new file name", apperr.ErrInvalidInput)
	}

	dir := filepath.Dir(full)
	currentExt := filepath.Ext(full)
	safeBase := pathsafe.SanitizeFileName(requested)
	if filepath.Ext(safeBase) == "" && currentExt != "" {
		safeBase += currentExt
	}

	target := filepath.Join(dir, safeBase)
	if target != full && exists(target) {
		ext := filepath.Ext(safeBase)
		target = filepath.Join(dir, d.names.Disambiguate(strings.TrimSuffix(safeBase, ext), ext))
		if exists(target) {
			return model.FileReference{}, fmt.Errorf("%w: name %q is already in use", apperr.ErrInvalidInput, safeBase)
		}
	}
	if target != full {
		if err := os.Rename(full, target); err != nil {
			return model.FileReference{}, fmt.Errorf("rename device file: %w", err)
		}
	}

	fi, err := os.Stat(target)
	if err != nil {
		return model.FileReference{}, fmt.Errorf("stat renamed file: %w", err)
	}
	newRel, err := d.relative(target)
	if err != nil {
		return model.FileReference{}, err
	}
	return d.reference(newRel, requested, ResolveMimeType("", filepath.Base(target)), fi.Size()), nil
}

// Delete removes the attachment at rel, then prunes device directories left
// empty by the removal.
func (d *DeviceFiles) Delete(rel string) error {
	full, _, err := d.ResolveForRead(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("delete device file: %w", err)
	}
	d.pruneEmpty(filepath.Dir(full))
	return nil
}

// pruneEmpty walks upward from dir removing empty directories strictly
// inside the attachment root. It stops at the first non-empty directory and
// ignores I/O errors.
func (d *DeviceFiles) pruneEmpty(dir string) {
	rootReal, err := pathsafe.Realpath(d.root)
	if err != nil {
		return
	}
	for parent := dir; parent != rootReal && pathsafe.Within(rootReal, parent); parent = filepath.Dir(parent) {
		entries, err := os.ReadDir(parent)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(parent); err != nil {
			return
		}
	}
}

// ListForExport enumerates every regular attachment file, skipping ".tmp"
// artifacts, ordered case-insensitively by relative path.
func (d *DeviceFiles) ListForExport() ([]ExportEntry, error) {
	fi, err := os.Stat(d.root)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !fi.IsDir()) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat device files root: %w", err)
	}

	var entries []ExportEntry
	err = filepath.WalkDir(d.root, func(p string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !de.Type().IsRegular() || strings.HasSuffix(de.Name(), tempSuffix) {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		entries = append(entries, ExportEntry{
			AbsPath: p,
			RelPath: path.Join(DeviceFilesDir, filepath.ToSlash(rel)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk device files: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := strings.ToLower(entries[i].RelPath), strings.ToLower(entries[j].RelPath)
		if a == b {
			return entries[i].RelPath < entries[j].RelPath
		}
		return a < b
	})
	return entries, nil
}

// ReplaceFrom swaps the live attachment tree for the contents of staged.
// A missing staged directory leaves an empty root behind.
func (d *DeviceFiles) ReplaceFrom(staged string) error {
	if err := os.RemoveAll(d.root); err != nil {
		return fmt.Errorf("remove device files: %w", err)
	}
	fi, err := os.Stat(staged)
	if err == nil && fi.IsDir() {
		if err := os.CopyFS(d.root, os.DirFS(staged)); err != nil {
			return fmt.Errorf("copy staged device files: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return fmt.Errorf("create device files root: %w", err)
	}
	return nil
}

func (d *DeviceFiles) relative(full string) (string, error) {
	rootReal, err := pathsafe.Realpath(d.root)
	if err != nil {
		return "", fmt.Errorf("resolve device files root: %w", err)
	}
	rel, err := filepath.Rel(rootReal, full)
	if err != nil {
		return "", fmt.Errorf("relative device file path: %w", err)
	}
	return path.Join(DeviceFilesDir, filepath.ToSlash(rel)), nil
}

func (d *DeviceFiles) reference(rel, name, mimeType string, size int64) model.FileReference {
	return model.FileReference{
		ID:         d.names.FileID(),
		Name:       name,
		Path:       rel,
		MimeType:   mimeType,
		Size:       size,
		UploadedAt: d.now().UTC().Truncate(time.Second),
		IsImage:    strings.HasPrefix(strings.ToLower(mimeType), "image/"),
	}
}

// ResolveMimeType returns supplied when set, otherwise a guess from the
// extension of name, falling back to application/octet-stream.
func ResolveMimeType(supplied, name string) string {
	if t := strings.TrimSpace(supplied); t != "" {
		return t
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	return defaultMimeType
}

func baseName(name string) string {
	raw := strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		raw = raw[i+1:]
	}
	return strings.TrimSpace(raw)
}

func exists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}
