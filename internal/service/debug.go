package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"planstore/internal/apperr"
	"planstore/internal/model"
	"planstore/internal/pathsafe"
)

// MaxPreviewBytes caps PreviewDataFile.
const MaxPreviewBytes = 2 << 20

func (s *plannerService) ListDataFiles(ctx context.Context) (_ []model.DataFileInfo, err error) {
	_, span := s.start(ctx, "ListDataFiles")
	defer func() { end(span, err) }()

	if !s.cfg.LocalRuntime {
		return nil, apperr.ErrDebugDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	files := []model.DataFileInfo{}
	walkErr := filepath.WalkDir(s.cfg.DataDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == s.cfg.DataDir {
				return fs.SkipAll
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		fi, err := os.Stat(p)
		if err != nil || !fi.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(s.cfg.DataDir, p)
		if err != nil {
			return nil
		}
		files = append(files, model.DataFileInfo{
			Name:       filepath.ToSlash(rel),
			Size:       fi.Size(),
			ModifiedAt: fi.ModTime().Unix(),
		})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("list data files: %w", walkErr)
	}
	sort.Slice(files, func(i, j int) bool {
		return strings.ToLower(files[i].Name) < strings.ToLower(files[j].Name)
	})
	return files, nil
}

func (s *plannerService) PreviewDataFile(ctx context.Context, name string) (_ *model.DataFilePreview, err error) {
	_, span := s.start(ctx, "PreviewDataFile", attribute.String("name", name))
	defer func() { end(span, err) }()

	if !s.cfg.LocalRuntime {
		return nil, apperr.ErrDebugDisabled
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: missing file name", apperr.ErrInvalidInput)
	}
	clean, err := pathsafe.Normalize(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	full, err := pathsafe.Resolve(s.cfg.DataDir, clean)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(full)
	if err != nil || !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, clean)
	}
	if fi.Size() > MaxPreviewBytes {
		return nil, fmt.Errorf("%w: file is too large (%d bytes), max allowed is %d bytes",
			apperr.ErrSizeExceeded, fi.Size(), MaxPreviewBytes)
	}
	raw, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read data file: %w", err)
	}
	content := strings.ToValidUTF8(string(raw), "\uFFFD")
	return &model.DataFilePreview{
		Name:    clean,
		Size:    fi.Size(),
		IsJSON:  json.Valid([]byte(content)),
		Content: content,
	}, nil
}
