package datastore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"planstore/internal/apperr"
)

// emptyDocument is what Read yields when nothing valid is stored.
var emptyDocument = json.RawMessage(`{}`)

// DocumentStore persists the canonical planning document as a single
// pretty-printed JSON object. Writes go through a ".tmp" sibling and an
// atomic rename, so a reader sees either the previous or the new document.
//
// DocumentStore does no locking of its own; the service serializes access.
type DocumentStore struct {
	path string
}

// NewDocumentStore returns a store backed by the file at path.
func NewDocumentStore(path string) *DocumentStore {
	return &DocumentStore{path: path}
}

// Path returns the canonical document location.
func (s *DocumentStore) Path() string { return s.path }

// Exists reports whether a regular file is present at the canonical path.
func (s *DocumentStore) Exists() bool {
	fi, err := os.Stat(s.path)
	return err == nil && fi.Mode().IsRegular()
}

// Read returns the stored document and true, or an empty object and false
// when the file is missing, unreadable or not a JSON object.
func (s *DocumentStore) Read() (json.RawMessage, bool) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return emptyDocument, false
	}
	if !IsObject(raw) {
		return emptyDocument, false
	}
	return json.RawMessage(bytes.TrimSpace(raw)), true
}

// Write replaces the stored document. doc must be a JSON object.
func (s *DocumentStore) Write(doc json.RawMessage) error {
	if !IsObject(doc) {
		return fmt.Errorf("%w: document must be a JSON object", apperr.ErrInvalidInput)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, doc, "", "  "); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	pretty.WriteByte('\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create temporary document: %w", err)
	}
	if _, err := f.Write(pretty.Bytes()); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temporary document: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temporary document: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temporary document: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename document into place: %w", err)
	}

	// Make the rename durable.
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

// IsObject reports whether raw is a syntactically valid JSON object.
func IsObject(raw []byte) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false
	}
	return obj != nil
}

// CountDevices returns the length of the document's "devices" array, or 0
// when the field is absent or not an array.
func CountDevices(doc json.RawMessage) int {
	var shape struct {
		Devices json.RawMessage `json:"devices"`
	}
	if err := json.Unmarshal(doc, &shape); err != nil {
		return 0
	}
	var devices []json.RawMessage
	if err := json.Unmarshal(shape.Devices, &devices); err != nil {
		return 0
	}
	return len(devices)
}
