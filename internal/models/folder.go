package models

import "time"

// Folder is a group of uploaded CSV files sharing one path segment.
// ID and Name are the same token.
type Folder struct {
	ID        string    `json:"id" msgpack:"id"`
	Name      string    `json:"name" msgpack:"name"`
	CreatedAt time.Time `json:"createdAt" msgpack:"createdAt"`
}

// FileMetadata carries the storage-reported object size.
type FileMetadata struct {
	Size int64 `json:"size" msgpack:"size"`
}

// FileInfo is a CSV object inside a folder.
type FileInfo struct {
	Name      string       `json:"name" msgpack:"name"`
	CreatedAt time.Time    `json:"createdAt" msgpack:"createdAt"`
	Metadata  FileMetadata `json:"metadata" msgpack:"metadata"`
}

// UploadResult is returned after a batch upload created a folder.
type UploadResult struct {
	Folder Folder     `json:"folder"`
	Files  []FileInfo `json:"files"`
}
