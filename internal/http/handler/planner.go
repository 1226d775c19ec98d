package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"

	"planstore/internal/apperr"
	"planstore/internal/service"
)

// FileNameHeader carries the URL-encoded display name of an uploaded file.
const FileNameHeader = "X-File-Name"

// decodeBody unmarshals a JSON request body into v. An empty body is {}.
func decodeBody(c *fiber.Ctx, v any) error {
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: invalid JSON", apperr.ErrInvalidInput)
	}
	return nil
}

func ok(c *fiber.Ctx, key string, v any) error {
	return c.JSON(fiber.Map{"ok": true, key: v})
}

// GetStorage returns the canonical planner document.
func GetStorage(svc service.PlannerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		doc, err := svc.GetStorage(c.UserContext())
		if err != nil {
			return fail(c, err)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(doc)
	}
}

// PutStorage replaces the canonical planner document.
func PutStorage(svc service.PlannerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body := bytes.TrimSpace(c.Body())
		if len(body) == 0 {
			body = []byte("{}")
		}
		if !json.Valid(body) {
			return fail(c, fmt.Errorf("%w: invalid JSON", apperr.ErrInvalidInput))
		}
		if err := svc.PutStorage(c.UserContext(), json.RawMessage(body)); err != nil {
			return fail(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GetRuntime reports the runtime mode.
func GetRuntime(svc service.PlannerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(svc.Runtime(c.UserContext()))
	}
}

// GetRegistry serves one device registry as a JSON array.
func GetRegistry(svc service.PlannerService, name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		entries, err := svc.GetRegistry(c.UserContext(), name)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(entries)
	}
}

// removeOnClose deletes the export archive once the response body is sent.
type removeOnClose struct {
	*os.File
}

func (r removeOnClose) Close() error {
	err := r.File.Close()
	os.Remove(r.File.Name())
	return err
}

// ExportArchive streams a fresh tar snapshot as an attachment.
func ExportArchive(svc service.PlannerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		exported, err := svc.ExportArchive(c.UserContext())
		if err != nil {
			return fail(c, err)
		}
		f, err := os.Open(exported.Path)
		if err != nil {
			os.Remove(exported.Path)
			return fail(c, fmt.Errorf("open export archive: %w", err))
		}
		c.Set(fiber.HeaderContentType, "application/x-tar")
		c.Set(fiber.HeaderCacheControl, "no-store")
		c.Set(fiber.HeaderContentDisposition, service.Disposition(exported.Name, true))
		return c.SendStream(removeOnClose{f}, int(exported.Size))
	}
}

// ImportArchive replaces the live state with the uploaded tar snapshot.
func ImportArchive(svc service.PlannerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body := c.Body()
		res, err := svc.ImportArchive(c.UserContext(), bytes.NewReader(body), int64(len(body)))
		if err != nil {
			return fail(c, err)
		}
		return ok(c, "result", res)
	}
}

// BackupArchive pushes a snapshot to remote object storage.
func BackupArchive(svc service.PlannerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := svc.BackupArchive(c.UserContext())
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}

// UploadDeviceFile stores the raw request body as a device attachment.
func UploadDeviceFile(svc service.PlannerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get(FileNameHeader)
		name, err := url.PathUnescape(raw)
		if err != nil {
			name = raw
		}
		name = strings.TrimSpace(name)
		if name == "" {
			name = "file"
		}
		body := c.Body()
		ref, err := svc.UploadDeviceFile(c.UserContext(),
			c.Query("deviceId"),
			name,
			strings.TrimSpace(c.Get(fiber.HeaderContentType)),
			bytes.NewReader(body),
			int64(len(body)),
		)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(ref)
	}
}

// GetDeviceFileContent serves an attachment inline, or as a download when
// download is 1, true or yes.
func GetDeviceFileContent(svc service.PlannerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var download bool
		switch strings.ToLower(strings.TrimSpace(c.Query("download"))) {
		case "1", "true", "yes":
			download = true
		}
		content, err := svc.ReadDeviceFile(c.UserContext(), c.Query("path"), download)
		if err != nil {
			return fail(c, err)
		}
		c.Set(fiber.HeaderContentType, content.MimeType)
		c.Set(fiber.HeaderCacheControl, "no-store")
		c.Set(fiber.HeaderContentDisposition, content.Disposition)
		return c.Send(content.Data)
	}
}

type renameRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// RenameDeviceFile renames an attachment on disk.
func RenameDeviceFile(svc service.PlannerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req renameRequest
		if err := decodeBody(c, &req); err != nil {
			return fail(c, err)
		}
		ref, err := svc.RenameDeviceFile(c.UserContext(), req.Path, req.Name)
		if err != nil {
			return fail(c, err)
		}
		return ok(c, "file", ref)
	}
}

// DeleteDeviceFile removes an attachment.
func DeleteDeviceFile(svc service.PlannerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := svc.DeleteDeviceFile(c.UserContext(), c.Query("path")); err != nil {
			return fail(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

type deviceRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	AreaID string `json:"areaId"`
}

// UpdateDeviceName forwards a rename to the device registry bridge.
func UpdateDeviceName(svc service.PlannerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req deviceRequest
		if err := decodeBody(c, &req); err != nil {
			return fail(c, err)
		}
		res, err := svc.UpdateDeviceName(c.UserContext(), req.ID, req.Name)
		if err != nil {
			return fail(c, err)
		}
		return ok(c, "result", res)
	}
}

// UpdateDeviceArea forwards an area change to the device registry bridge.
func UpdateDeviceArea(svc service.PlannerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req deviceRequest
		if err := decodeBody(c, &req); err != nil {
			return fail(c, err)
		}
		res, err := svc.UpdateDeviceArea(c.UserContext(), req.ID, req.AreaID)
		if err != nil {
			return fail(c, err)
		}
		return ok(c, "result", res)
	}
}

// ListDataFiles lists every file in the data directory.
func ListDataFiles(svc service.PlannerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		files, err := svc.ListDataFiles(c.UserContext())
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"files": files})
	}
}

// GetDataFile previews one data directory file as text.
func GetDataFile(svc service.PlannerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		preview, err := svc.PreviewDataFile(c.UserContext(), c.Query("name"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(preview)
	}
}

// Preflight answers CORS preflight requests for the API.
func Preflight() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderAccessControlAllowMethods, "GET, POST, PUT, DELETE, OPTIONS")
		c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type, "+FileNameHeader)
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// HealthCheck reports whether the data directory is reachable.
func HealthCheck(dataDir string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if fi, err := os.Stat(dataDir); err != nil || !fi.IsDir() {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "data directory unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is a plain 200 for orchestrators.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}
