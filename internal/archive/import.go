package archive

import (
	"archive/tar"
	"bytes"
	"compress/bzip2"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"planstore/internal/apperr"
	"planstore/internal/datastore"
	"planstore/internal/model"
	"planstore/internal/pathsafe"
)

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	zstdMagic  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	bzip2Magic = []byte("BZh")
)

// DocumentWriter persists an imported canonical document.
type DocumentWriter interface {
	Write(doc json.RawMessage) error
}

// TreeReplacer swaps the live attachment tree for a staged one.
type TreeReplacer interface {
	ReplaceFrom(staged string) error
}

// Importer validates an untrusted archive and, only if every entry passes,
// replaces the canonical document and the attachment tree with its contents.
type Importer struct {
	docs        DocumentWriter
	files       TreeReplacer
	tempDir     string
	maxExpanded int64
}

// NewImporter returns an Importer staging under tempDir (os.TempDir when
// empty). maxExpanded caps the decompressed stream size; zero disables the cap.
func NewImporter(docs DocumentWriter, files TreeReplacer, tempDir string, maxExpanded int64) *Importer {
	return &Importer{docs: docs, files: files, tempDir: tempDir, maxExpanded: maxExpanded}
}

// staged is a fully validated archive extracted to disk.
type staged struct {
	dir      string
	root     string
	document json.RawMessage
	files    int
}

func (s *staged) cleanup() { os.RemoveAll(s.dir) }

// Import stages data and commits it. Live state is untouched unless staging
// succeeds.
func (im *Importer) Import(data []byte) (model.ImportResult, error) {
	if len(data) == 0 {
		return model.ImportResult{}, fmt.Errorf("%w: missing archive payload", apperr.ErrInvalidInput)
	}

	s, err := im.stage(data)
	if err != nil {
		return model.ImportResult{}, err
	}
	defer s.cleanup()

	if err := im.docs.Write(s.document); err != nil {
		return model.ImportResult{}, fmt.Errorf("write imported document: %w", err)
	}
	if err := im.files.ReplaceFrom(filepath.Join(s.root, datastore.DeviceFilesDir)); err != nil {
		return model.ImportResult{}, fmt.Errorf("replace device files: %w", err)
	}

	return model.ImportResult{
		Devices: datastore.CountDevices(s.document),
		Files:   s.files,
	}, nil
}

func (im *Importer) stage(data []byte) (_ *staged, err error) {
	stream, closeStream, err := decompress(data)
	if err != nil {
		return nil, err
	}
	defer closeStream()

	src := &trackingReader{r: stream, limit: im.maxExpanded}

	dir, err := os.MkdirTemp(im.tempDir, "smart-home-import-")
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	s := &staged{dir: dir, root: filepath.Join(dir, "stage")}
	defer func() {
		if err != nil {
			s.cleanup()
		}
	}()
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	tr := tar.NewReader(src)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, src.classify(err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		safePath, err := pathsafe.Normalize(hdr.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid entry path %q", apperr.ErrInvalidArchive, hdr.Name)
		}

		if safePath == DocumentEntry {
			raw, err := io.ReadAll(tr)
			if err != nil {
				return nil, src.classify(err)
			}
			if !datastore.IsObject(raw) {
				return nil, fmt.Errorf("%w: data.json is not a JSON object", apperr.ErrInvalidArchive)
			}
			s.document = json.RawMessage(bytes.TrimSpace(raw))
			continue
		}

		if !strings.HasPrefix(safePath, datastore.DeviceFilesDir+"/") {
			continue
		}

		target, err := pathsafe.Resolve(s.root, safePath)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid entry path %q", apperr.ErrInvalidArchive, hdr.Name)
		}
		if err := extract(tr, src, target); err != nil {
			return nil, err
		}
		s.files++
	}

	if s.document == nil {
		return nil, fmt.Errorf("%w: archive must contain data.json", apperr.ErrInvalidArchive)
	}
	return s, nil
}

func extract(tr *tar.Reader, src *trackingReader, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create staged file: %w", err)
	}
	if _, err := io.Copy(f, tr); err != nil {
		f.Close()
		if src.err != nil {
			return src.classify(err)
		}
		return fmt.Errorf("write staged file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close staged file: %w", err)
	}
	return nil
}

// decompress sniffs the payload for a known compression format.
func decompress(data []byte) (io.Reader, func(), error) {
	r := bytes.NewReader(data)
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", apperr.ErrInvalidArchive, err)
		}
		return gz, func() { gz.Close() }, nil
	case bytes.HasPrefix(data, zstdMagic):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", apperr.ErrInvalidArchive, err)
		}
		return zr, zr.Close, nil
	case bytes.HasPrefix(data, bzip2Magic):
		return bzip2.NewReader(r), func() {}, nil
	default:
		return r, func() {}, nil
	}
}

var errExpandedTooLarge = errors.New("expanded archive too large")

// trackingReader remembers the first read error of the underlying stream so
// a failed copy can be blamed on the archive rather than the disk, and
// enforces the decompressed size cap.
type trackingReader struct {
	r     io.Reader
	limit int64
	read  int64
	err   error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	if t.err != nil {
		return 0, t.err
	}
	n, err := t.r.Read(p)
	t.read += int64(n)
	if t.limit > 0 && t.read > t.limit {
		t.err = errExpandedTooLarge
		return n, t.err
	}
	if err != nil && !errors.Is(err, io.EOF) {
		t.err = err
	}
	return n, err
}

func (t *trackingReader) classify(err error) error {
	if errors.Is(t.err, errExpandedTooLarge) {
		return fmt.Errorf("%w: expanded archive exceeds %d bytes", apperr.ErrSizeExceeded, t.limit)
	}
	return fmt.Errorf("%w: %v", apperr.ErrInvalidArchive, err)
}
