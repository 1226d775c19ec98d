package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"planstore/internal/apperr"
	"planstore/internal/archive"
	"planstore/internal/bridge"
	"planstore/internal/datastore"
	"planstore/internal/model"
)

// PlannerService defines the boundary operations of the planner data store.
// Every method touching the data directory runs under one process-wide lock.
type PlannerService interface {
	// GetStorage returns the canonical document, or {} when none is stored yet.
	GetStorage(ctx context.Context) (json.RawMessage, error)
	// PutStorage atomically replaces the canonical document.
	PutStorage(ctx context.Context, doc json.RawMessage) error
	// GetRegistry returns one of the areas, floors or devices registries.
	GetRegistry(ctx context.Context, name string) ([]json.RawMessage, error)

	UploadDeviceFile(ctx context.Context, deviceID, displayName, mimeType string, r io.Reader, size int64) (*model.FileReference, error)
	ReadDeviceFile(ctx context.Context, rel string, download bool) (*model.FileContent, error)
	RenameDeviceFile(ctx context.Context, rel, name string) (*model.FileReference, error)
	DeleteDeviceFile(ctx context.Context, rel string) error

	// ExportArchive builds a tar snapshot. The caller removes the returned file.
	ExportArchive(ctx context.Context) (*model.ExportedArchive, error)
	// ImportArchive validates a tar snapshot and replaces the live state with it.
	ImportArchive(ctx context.Context, r io.Reader, size int64) (*model.ImportResult, error)
	// BackupArchive exports a snapshot and pushes it to remote object storage.
	BackupArchive(ctx context.Context) (*model.BackupResult, error)

	UpdateDeviceName(ctx context.Context, id, name string) (json.RawMessage, error)
	UpdateDeviceArea(ctx context.Context, id, areaID string) (json.RawMessage, error)

	ListDataFiles(ctx context.Context) ([]model.DataFileInfo, error)
	PreviewDataFile(ctx context.Context, name string) (*model.DataFilePreview, error)
	Runtime(ctx context.Context) model.RuntimeInfo
}

// BackupUploader pushes a finished export archive somewhere off-box.
type BackupUploader interface {
	Upload(ctx context.Context, archivePath, archiveName string) (*model.BackupResult, error)
}

// Config carries the limits and runtime facts the service enforces.
type Config struct {
	DataDir        string
	MaxUploadBytes int64
	MaxImportBytes int64
	Hostname       string
	LocalRuntime   bool
}

// Deps are the collaborators the service coordinates.
type Deps struct {
	Documents  *datastore.DocumentStore
	Registries *datastore.Registries
	Files      *datastore.DeviceFiles
	Exporter   *archive.Exporter
	Importer   *archive.Importer
	Bridge     bridge.Updater
	// Backups is optional; nil disables BackupArchive.
	Backups BackupUploader
	Logger  *slog.Logger
}

type plannerService struct {
	mu sync.Mutex

	cfg        Config
	docs       *datastore.DocumentStore
	registries *datastore.Registries
	files      *datastore.DeviceFiles
	exporter   *archive.Exporter
	importer   *archive.Importer
	bridge     bridge.Updater
	backups    BackupUploader
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewPlannerService constructs a PlannerService.
func NewPlannerService(cfg Config, deps Deps) PlannerService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &plannerService{
		cfg:        cfg,
		docs:       deps.Documents,
		registries: deps.Registries,
		files:      deps.Files,
		exporter:   deps.Exporter,
		importer:   deps.Importer,
		bridge:     deps.Bridge,
		backups:    deps.Backups,
		logger:     logger.With("component", "planner"),
		tracer:     otel.Tracer("planstore/internal/service"),
	}
}

func (s *plannerService) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "PlannerService."+op, trace.WithAttributes(attrs...))
}

// end closes span, marking it failed when err is set.
func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.Code(err))
	}
	span.End()
}

func (s *plannerService) GetStorage(ctx context.Context) (json.RawMessage, error) {
	_, span := s.start(ctx, "GetStorage")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, _ := s.docs.Read()
	return doc, nil
}

func (s *plannerService) PutStorage(ctx context.Context, doc json.RawMessage) (err error) {
	_, span := s.start(ctx, "PutStorage")
	defer func() { end(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs.Write(doc)
}

func (s *plannerService) GetRegistry(ctx context.Context, name string) (_ []json.RawMessage, err error) {
	_, span := s.start(ctx, "GetRegistry", attribute.String("registry", name))
	defer func() { end(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registries.Get(name)
}

func (s *plannerService) UploadDeviceFile(ctx context.Context, deviceID, displayName, mimeType string, r io.Reader, size int64) (_ *model.FileReference, err error) {
	_, span := s.start(ctx, "UploadDeviceFile", attribute.String("device.id", deviceID), attribute.Int64("size", size))
	defer func() { end(span, err) }()

	if size <= 0 || r == nil {
		return nil, fmt.Errorf("%w: missing file payload", apperr.ErrInvalidInput)
	}
	data, err := readCapped(r, size, s.cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ref, err := s.files.Save(deviceID, displayName, mimeType, data)
	if err != nil {
		return nil, err
	}
	s.logger.Info("device_file_saved", "event", "upload", "path", ref.Path, "size", ref.Size)
	return &ref, nil
}

func (s *plannerService) ReadDeviceFile(ctx context.Context, rel string, download bool) (_ *model.FileContent, err error) {
	_, span := s.start(ctx, "ReadDeviceFile", attribute.String("path", rel))
	defer func() { end(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	full, _, err := s.files.ResolveForRead(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read device file: %w", err)
	}
	name := filepath.Base(full)
	return &model.FileContent{
		Name:        name,
		MimeType:    datastore.ResolveMimeType("", name),
		Disposition: Disposition(name, download),
		Data:        data,
	}, nil
}

// Disposition builds a Content-Disposition value for name.
func Disposition(name string, download bool) string {
	kind := "inline"
	if download {
		kind = "attachment"
	}
	return fmt.Sprintf(`%s; filename="%s"`, kind, strings.ReplaceAll(name, `"`, "_"))
}

func (s *plannerService) RenameDeviceFile(ctx context.Context, rel, name string) (_ *model.FileReference, err error) {
	_, span := s.start(ctx, "RenameDeviceFile", attribute.String("path", rel))
	defer func() { end(span, err) }()

	if strings.TrimSpace(rel) == "" {
		return nil, fmt.Errorf("%w: missing file path", apperr.ErrInvalidInput)
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: missing file name", apperr.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ref, err := s.files.Rename(rel, name)
	if err != nil {
		return nil, err
	}
	s.logger.Info("device_file_renamed", "event", "rename", "from", rel, "to", ref.Path)
	return &ref, nil
}

func (s *plannerService) DeleteDeviceFile(ctx context.Context, rel string) (err error) {
	_, span := s.start(ctx, "DeleteDeviceFile", attribute.String("path", rel))
	defer func() { end(span, err) }()

	if strings.TrimSpace(rel) == "" {
		return fmt.Errorf("%w: missing file path", apperr.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.files.Delete(rel); err != nil {
		return err
	}
	s.logger.Info("device_file_deleted", "event", "delete", "path", rel)
	return nil
}

func (s *plannerService) ExportArchive(ctx context.Context) (_ *model.ExportedArchive, err error) {
	_, span := s.start(ctx, "ExportArchive")
	defer func() { end(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exportLocked()
}

func (s *plannerService) exportLocked() (*model.ExportedArchive, error) {
	p, name, err := s.exporter.Export()
	if err != nil {
		return nil, fmt.Errorf("export archive: %w", err)
	}
	fi, err := os.Stat(p)
	if err != nil {
		os.Remove(p)
		return nil, fmt.Errorf("stat export archive: %w", err)
	}
	s.logger.Info("archive_exported", "event", "export", "name", name, "size", fi.Size())
	return &model.ExportedArchive{Path: p, Name: name, Size: fi.Size()}, nil
}

func (s *plannerService) ImportArchive(ctx context.Context, r io.Reader, size int64) (_ *model.ImportResult, err error) {
	_, span := s.start(ctx, "ImportArchive", attribute.Int64("size", size))
	defer func() { end(span, err) }()

	if size <= 0 || r == nil {
		return nil, fmt.Errorf("%w: missing archive payload", apperr.ErrInvalidInput)
	}
	data, err := readCapped(r, size, s.cfg.MaxImportBytes)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.importer.Import(data)
	if err != nil {
		s.logger.Warn("archive_import_rejected", "event", "import", "error", err.Error())
		return nil, err
	}
	s.logger.Info("archive_imported", "event", "import", "devices", res.Devices, "files", res.Files)
	return &res, nil
}

func (s *plannerService) BackupArchive(ctx context.Context) (_ *model.BackupResult, err error) {
	ctx, span := s.start(ctx, "BackupArchive")
	defer func() { end(span, err) }()

	if s.backups == nil {
		return nil, fmt.Errorf("%w: remote backup is not configured", apperr.ErrUpstreamUnavailable)
	}

	s.mu.Lock()
	exported, err := s.exportLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer os.Remove(exported.Path)

	res, err := s.backups.Upload(ctx, exported.Path, exported.Name)
	if err != nil {
		return nil, err
	}
	s.logger.Info("archive_backed_up", "event", "backup", "key", res.Key, "size", res.Size)
	return res, nil
}

func (s *plannerService) UpdateDeviceName(ctx context.Context, id, name string) (_ json.RawMessage, err error) {
	ctx, span := s.start(ctx, "UpdateDeviceName", attribute.String("device.id", id))
	defer func() { end(span, err) }()
	return s.bridge.UpdateName(ctx, id, name)
}

func (s *plannerService) UpdateDeviceArea(ctx context.Context, id, areaID string) (_ json.RawMessage, err error) {
	ctx, span := s.start(ctx, "UpdateDeviceArea", attribute.String("device.id", id))
	defer func() { end(span, err) }()
	return s.bridge.UpdateArea(ctx, id, areaID)
}

func (s *plannerService) Runtime(context.Context) model.RuntimeInfo {
	return model.RuntimeInfo{
		Hostname:       s.cfg.Hostname,
		IsLocalRuntime: s.cfg.LocalRuntime,
		IsAddonRuntime: !s.cfg.LocalRuntime,
	}
}

// readCapped reads a body whose declared size is already known. Declared or
// actual sizes above limit are ErrSizeExceeded.
func readCapped(r io.Reader, size, limit int64) ([]byte, error) {
	if limit > 0 && size > limit {
		return nil, fmt.Errorf("%w: payload is %d bytes, max allowed is %d", apperr.ErrSizeExceeded, size, limit)
	}
	if limit <= 0 {
		limit = size
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", apperr.ErrSizeExceeded, limit)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", apperr.ErrInvalidInput)
	}
	return data, nil
}
