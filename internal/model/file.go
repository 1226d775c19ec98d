package model

import "time"

// FileReference describes one uploaded device attachment.
// Name is the display name supplied by the user; Path is the storage-relative
// location of the uniquely named file on disk.
type FileReference struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	MimeType   string    `json:"mimeType"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
	IsImage    bool      `json:"isImage"`
}

// FileContent is a device attachment loaded for download or inline display.
type FileContent struct {
	Name        string
	MimeType    string
	Disposition string
	Data        []byte
}
