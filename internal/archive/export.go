package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"planstore/internal/datastore"
)

// FileLister enumerates attachments for export.
type FileLister interface {
	ListForExport() ([]datastore.ExportEntry, error)
}

// Exporter writes the canonical document and every attachment into a
// temporary tar file.
type Exporter struct {
	documentPath string
	files        FileLister
	tempDir      string
	now          func() time.Time
}

// NewExporter returns an Exporter. An empty tempDir means os.TempDir.
func NewExporter(documentPath string, files FileLister, tempDir string) *Exporter {
	return &Exporter{
		documentPath: documentPath,
		files:        files,
		tempDir:      tempDir,
		now:          time.Now,
	}
}

// Export builds the archive and returns its path and a suggested download
// name. The caller removes the file when done with it. On failure no file is
// left behind.
func (e *Exporter) Export() (archivePath string, name string, err error) {
	name = fmt.Sprintf("smart-home-planner-%s.tar", e.now().UTC().Format("2006-01-02-15-04-05"))

	f, err := os.CreateTemp(e.tempDir, "smart-home-export-*.tar")
	if err != nil {
		return "", "", fmt.Errorf("create export archive: %w", err)
	}
	tmpPath := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	tw := tar.NewWriter(f)
	if docPath, ok := regularFile(e.documentPath); ok {
		if err := addFile(tw, docPath, DocumentEntry); err != nil {
			return "", "", err
		}
	}

	entries, err := e.files.ListForExport()
	if err != nil {
		return "", "", err
	}
	for _, entry := range entries {
		if err := addFile(tw, entry.AbsPath, entry.RelPath); err != nil {
			return "", "", err
		}
	}

	if err := tw.Close(); err != nil {
		return "", "", fmt.Errorf("finish export archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", "", fmt.Errorf("close export archive: %w", err)
	}
	return tmpPath, name, nil
}

func addFile(tw *tar.Writer, src, entryName string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", entryName, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", entryName, err)
	}
	hdr, err := tar.FileInfoHeader(fi, "")
	if err != nil {
		return fmt.Errorf("header %s: %w", entryName, err)
	}
	hdr.Name = entryName

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %s: %w", entryName, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("write %s: %w", entryName, err)
	}
	return nil
}

// regularFile resolves symlinks and reports whether p names a regular file.
func regularFile(p string) (string, bool) {
	real, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", false
	}
	fi, err := os.Stat(real)
	if err != nil || !fi.Mode().IsRegular() {
		return "", false
	}
	return real, true
}
