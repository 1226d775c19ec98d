// Package model contains the transport-neutral data types exchanged between
// the service layer and its callers. No persistence or HTTP logic here.
package model

import "time"

// ImportResult summarizes a committed archive import.
type ImportResult struct {
	Devices int `json:"devices"`
	Files   int `json:"files"`
}

// ExportedArchive points at a temporary tar file built by an export.
// The caller owns Path and must remove it after streaming.
type ExportedArchive struct {
	Path string
	Name string
	Size int64
}

// BackupResult describes an archive pushed to remote object storage.
type BackupResult struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RuntimeInfo reports which runtime the process believes it is in.
type RuntimeInfo struct {
	Hostname       string `json:"hostname"`
	IsLocalRuntime bool   `json:"isLocalRuntime"`
	IsAddonRuntime bool   `json:"isAddonRuntime"`
}

// DataFileInfo is one entry of the debug listing of the data directory.
type DataFileInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	ModifiedAt int64  `json:"modifiedAt"`
}

// DataFilePreview is the capped text preview of one data directory file.
type DataFilePreview struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	IsJSON  bool   `json:"isJson"`
	Content string `json:"content"`
}
