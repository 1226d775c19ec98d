package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"planstore/internal/apperr"
	"planstore/internal/http/middleware"
	"planstore/internal/model"
	serviceMocks "planstore/internal/service/mocks"
)

func newApp(t *testing.T, svc *serviceMocks.MockPlannerService, opts RouteOptions) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(middleware.RequestID())
	RegisterRoutes(app, svc, opts)
	return app
}

func decodeError(t *testing.T, resp *http.Response) errorPayload {
	t.Helper()
	var body errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthCheck(t *testing.T) {
	app := fiber.New()
	app.Get("/health", HealthCheck(t.TempDir()))
	app.Get("/broken", HealthCheck(filepath.Join(t.TempDir(), "missing")))

	t.Run("healthy", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/broken", nil))

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, resp).Error.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStorage(t *testing.T) {
	mockSvc := new(serviceMocks.MockPlannerService)
	app := newApp(t, mockSvc, RouteOptions{})

	t.Run("get", func(t *testing.T) {
		mockSvc.On("GetStorage", mock.Anything).Return(json.RawMessage(`{"devices":[]}`), nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/api/storage", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, fiber.MIMEApplicationJSON, resp.Header.Get(fiber.HeaderContentType))
		body, _ := io.ReadAll(resp.Body)
		assert.JSONEq(t, `{"devices":[]}`, string(body))
	})

	t.Run("put", func(t *testing.T) {
		mockSvc.On("PutStorage", mock.Anything, json.RawMessage(`{"a":1}`)).Return(nil).Once()

		req := httptest.NewRequest(http.MethodPut, "/api/storage", strings.NewReader(`{"a":1}`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("put invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/storage", strings.NewReader(`{"a":`))
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, "INVALID_INPUT", body.Error.Code)
		assert.NotEmpty(t, body.RequestID)
	})

	t.Run("put non-object", func(t *testing.T) {
		mockSvc.On("PutStorage", mock.Anything, json.RawMessage(`[1]`)).
			Return(apperr.ErrInvalidInput).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPut, "/api/storage", strings.NewReader(`[1]`)))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("io failure is not leaked", func(t *testing.T) {
		mockSvc.On("GetStorage", mock.Anything).Return(nil, errors.New("open /data/data.json: permission denied")).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/api/storage", nil))

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
		assert.NotContains(t, body.Error.Message, "/data")
	})

	mockSvc.AssertExpectations(t)
}

func TestRegistriesAndRuntime(t *testing.T) {
	mockSvc := new(serviceMocks.MockPlannerService)
	app := newApp(t, mockSvc, RouteOptions{})

	mockSvc.On("GetRegistry", mock.Anything, "floors").Return([]json.RawMessage{json.RawMessage(`{"id":"f1"}`)}, nil).Once()
	mockSvc.On("Runtime", mock.Anything).Return(model.RuntimeInfo{Hostname: "local_dev", IsLocalRuntime: true})

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/api/ha/floors", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `[{"id":"f1"}]`, string(body))

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/api/runtime", nil))
	body, _ = io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"hostname":"local_dev","isLocalRuntime":true,"isAddonRuntime":false}`, string(body))

	mockSvc.AssertExpectations(t)
}

func TestUploadDeviceFile(t *testing.T) {
	mockSvc := new(serviceMocks.MockPlannerService)
	app := newApp(t, mockSvc, RouteOptions{})

	t.Run("success", func(t *testing.T) {
		ref := &model.FileReference{ID: "file-1", Name: "My Camera.jpg", Path: "device-files/front_door/My_Camera-1.jpg", MimeType: "image/jpeg", Size: 4, IsImage: true}
		mockSvc.On("UploadDeviceFile", mock.Anything, "front door!", "My Camera.jpg", "image/jpeg", mock.Anything, int64(4)).
			Return(ref, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/api/device-files/upload?deviceId=front%20door%21", strings.NewReader("jpeg"))
		req.Header.Set(FileNameHeader, "My%20Camera.jpg")
		req.Header.Set("Content-Type", "image/jpeg")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		var got model.FileReference
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, ref.Path, got.Path)
		assert.True(t, got.IsImage)
	})

	t.Run("missing name falls back", func(t *testing.T) {
		mockSvc.On("UploadDeviceFile", mock.Anything, "d", "file", mock.Anything, mock.Anything, int64(1)).
			Return(&model.FileReference{}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/api/device-files/upload?deviceId=d", strings.NewReader("x")))

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})

	t.Run("too large", func(t *testing.T) {
		mockSvc.On("UploadDeviceFile", mock.Anything, "big", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, apperr.ErrSizeExceeded).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/api/device-files/upload?deviceId=big", strings.NewReader("xx")))

		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
		assert.Equal(t, "SIZE_EXCEEDED", decodeError(t, resp).Error.Code)
	})

	mockSvc.AssertExpectations(t)
}

func TestDeviceFileContent(t *testing.T) {
	mockSvc := new(serviceMocks.MockPlannerService)
	app := newApp(t, mockSvc, RouteOptions{})

	mockSvc.On("ReadDeviceFile", mock.Anything, "device-files/a/b.txt", true).Return(&model.FileContent{
		Name:        "b.txt",
		MimeType:    "text/plain; charset=utf-8",
		Disposition: `attachment; filename="b.txt"`,
		Data:        []byte("hello"),
	}, nil).Once()
	mockSvc.On("ReadDeviceFile", mock.Anything, "device-files/../data.json", false).
		Return(nil, apperr.ErrInvalidPath).Once()
	mockSvc.On("ReadDeviceFile", mock.Anything, "device-files/a/gone.txt", false).
		Return(nil, apperr.ErrNotFound).Once()

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/api/device-files/content?path=device-files/a/b.txt&download=Yes", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get(fiber.HeaderContentType))
	assert.Equal(t, `attachment; filename="b.txt"`, resp.Header.Get(fiber.HeaderContentDisposition))
	assert.Equal(t, "no-store", resp.Header.Get(fiber.HeaderCacheControl))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "hello", string(body))

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/api/device-files/content?path=device-files/../data.json", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_PATH", decodeError(t, resp).Error.Code)

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/api/device-files/content?path=device-files/a/gone.txt&download=0", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	mockSvc.AssertExpectations(t)
}

func TestRenameAndDeleteDeviceFile(t *testing.T) {
	mockSvc := new(serviceMocks.MockPlannerService)
	app := newApp(t, mockSvc, RouteOptions{})

	mockSvc.On("RenameDeviceFile", mock.Anything, "device-files/a/b.txt", "c").
		Return(&model.FileReference{Path: "device-files/a/c.txt", Name: "c"}, nil).Once()
	mockSvc.On("DeleteDeviceFile", mock.Anything, "device-files/a/c.txt").Return(nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/api/device-files/rename", strings.NewReader(`{"path":"device-files/a/b.txt","name":"c"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var renamed struct {
		OK   bool                `json:"ok"`
		File model.FileReference `json:"file"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&renamed))
	assert.True(t, renamed.OK)
	assert.Equal(t, "device-files/a/c.txt", renamed.File.Path)

	resp, _ = app.Test(httptest.NewRequest(http.MethodPut, "/api/device-files/rename", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = app.Test(httptest.NewRequest(http.MethodDelete, "/api/device-files?path=device-files/a/c.txt", nil))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	mockSvc.AssertExpectations(t)
}

func TestExportArchive(t *testing.T) {
	mockSvc := new(serviceMocks.MockPlannerService)
	app := newApp(t, mockSvc, RouteOptions{})

	archive := filepath.Join(t.TempDir(), "export.tar")
	require.NoError(t, os.WriteFile(archive, []byte("tar-bytes"), 0o600))
	mockSvc.On("ExportArchive", mock.Anything).Return(&model.ExportedArchive{
		Path: archive,
		Name: "smart-home-planner-2024-01-02-03-04-05.tar",
		Size: 9,
	}, nil).Once()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/export", nil))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-tar", resp.Header.Get(fiber.HeaderContentType))
	assert.Equal(t, `attachment; filename="smart-home-planner-2024-01-02-03-04-05.tar"`, resp.Header.Get(fiber.HeaderContentDisposition))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "tar-bytes", string(body))

	assert.Eventually(t, func() bool {
		_, err := os.Stat(archive)
		return errors.Is(err, os.ErrNotExist)
	}, time.Second, 10*time.Millisecond, "export archive is removed after streaming")

	mockSvc.AssertExpectations(t)
}

func TestImportArchive(t *testing.T) {
	mockSvc := new(serviceMocks.MockPlannerService)
	app := newApp(t, mockSvc, RouteOptions{})

	mockSvc.On("ImportArchive", mock.Anything, mock.Anything, int64(7)).
		Return(&model.ImportResult{Devices: 2, Files: 1}, nil).Once()
	mockSvc.On("ImportArchive", mock.Anything, mock.Anything, int64(3)).
		Return(nil, apperr.ErrInvalidArchive).Once()

	resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader("tarball")))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"ok":true,"result":{"devices":2,"files":1}}`, string(body))

	resp, _ = app.Test(httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader("bad")))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_ARCHIVE", decodeError(t, resp).Error.Code)

	mockSvc.AssertExpectations(t)
}

func TestImportArchiveBodyLimit(t *testing.T) {
	mockSvc := new(serviceMocks.MockPlannerService)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(), BodyLimit: 16})
	RegisterRoutes(app, mockSvc, RouteOptions{})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/import", bytes.NewReader(make([]byte, 64))))
	require.NoError(t, err)

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	mockSvc.AssertNotCalled(t, "ImportArchive", mock.Anything, mock.Anything, mock.Anything)
}

func TestBackupArchive(t *testing.T) {
	mockSvc := new(serviceMocks.MockPlannerService)
	app := newApp(t, mockSvc, RouteOptions{})

	mockSvc.On("BackupArchive", mock.Anything).Return(&model.BackupResult{Key: "backups/x.tar.gz", Size: 10}, nil).Once()
	mockSvc.On("BackupArchive", mock.Anything).Return(nil, apperr.ErrUpstreamUnavailable).Once()

	resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/api/backup", nil))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = app.Test(httptest.NewRequest(http.MethodPost, "/api/backup", nil))
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", decodeError(t, resp).Error.Code)
}

func TestDeviceRegistryBridge(t *testing.T) {
	mockSvc := new(serviceMocks.MockPlannerService)
	app := newApp(t, mockSvc, RouteOptions{})

	mockSvc.On("UpdateDeviceName", mock.Anything, "dev1", "Lamp").Return(json.RawMessage(`{"raw":"done"}`), nil).Once()
	mockSvc.On("UpdateDeviceArea", mock.Anything, "dev1", "kitchen").Return(nil, apperr.ErrUpstreamUnavailable).Once()
	mockSvc.On("UpdateDeviceArea", mock.Anything, "", "").Return(nil, apperr.ErrInvalidInput).Once()

	resp, _ := app.Test(httptest.NewRequest(http.MethodPut, "/api/ha/device-name", strings.NewReader(`{"id":"dev1","name":"Lamp"}`)))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"ok":true,"result":{"raw":"done"}}`, string(body))

	resp, _ = app.Test(httptest.NewRequest(http.MethodPut, "/api/ha/device-area", strings.NewReader(`{"id":"dev1","areaId":"kitchen"}`)))
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp, _ = app.Test(httptest.NewRequest(http.MethodPut, "/api/ha/device-area", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	mockSvc.AssertExpectations(t)
}

func TestDebugRoutes(t *testing.T) {
	t.Run("forbidden outside local runtime", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockPlannerService)
		app := newApp(t, mockSvc, RouteOptions{LocalRuntime: false})

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/api/debug/files", nil))

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "FORBIDDEN", decodeError(t, resp).Error.Code)
		mockSvc.AssertNotCalled(t, "ListDataFiles", mock.Anything)
	})

	t.Run("local runtime", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockPlannerService)
		app := newApp(t, mockSvc, RouteOptions{LocalRuntime: true})

		mockSvc.On("ListDataFiles", mock.Anything).Return([]model.DataFileInfo{{Name: "data.json", Size: 2, ModifiedAt: 1700000000}}, nil).Once()
		mockSvc.On("PreviewDataFile", mock.Anything, "data.json").Return(&model.DataFilePreview{Name: "data.json", Size: 2, IsJSON: true, Content: "{}"}, nil).Once()
		mockSvc.On("PreviewDataFile", mock.Anything, "big.bin").Return(nil, apperr.ErrSizeExceeded).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/api/debug/files", nil))
		body, _ := io.ReadAll(resp.Body)
		assert.JSONEq(t, `{"files":[{"name":"data.json","size":2,"modifiedAt":1700000000}]}`, string(body))

		resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/api/debug/file?name=data.json", nil))
		body, _ = io.ReadAll(resp.Body)
		assert.JSONEq(t, `{"name":"data.json","size":2,"isJson":true,"content":"{}"}`, string(body))

		resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/api/debug/file?name=big.bin", nil))
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

		mockSvc.AssertExpectations(t)
	})
}

func TestPreflightAndFallbacks(t *testing.T) {
	mockSvc := new(serviceMocks.MockPlannerService)
	webRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(webRoot, "index.html"), []byte("<html>planner</html>"), 0o644))
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "planstore_test_total", Help: "test"}))
	app := newApp(t, mockSvc, RouteOptions{WebRoot: webRoot, Gatherer: reg})

	resp, _ := app.Test(httptest.NewRequest(http.MethodOptions, "/api/device-files/upload", nil))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", resp.Header.Get(fiber.HeaderAccessControlAllowMethods))
	assert.Equal(t, "Content-Type, X-File-Name", resp.Header.Get(fiber.HeaderAccessControlAllowHeaders))

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "planner")

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ = io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "planstore_test_total")

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.ErrInvalidInput, http.StatusBadRequest},
		{apperr.ErrInvalidPath, http.StatusBadRequest},
		{apperr.ErrInvalidArchive, http.StatusBadRequest},
		{apperr.ErrNotFound, http.StatusNotFound},
		{apperr.ErrDebugDisabled, http.StatusForbidden},
		{apperr.ErrSizeExceeded, http.StatusRequestEntityTooLarge},
		{apperr.ErrUpstreamUnavailable, http.StatusBadGateway},
		{fiber.ErrMethodNotAllowed, http.StatusMethodNotAllowed},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}
