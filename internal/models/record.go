package models

import "encoding/json"

// Status is the lifecycle status of a stored file.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDeleted  Status = "deleted"
)

// Downloadable reports whether files with this status may be downloaded.
func (s Status) Downloadable() bool {
	return s == StatusActive
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusDeleted:
		return true
	}
	return false
}

// FileRecord is one entry of the file listing as sent by the storage service.
// Size, upload time and download count are hex block counters and must be
// decoded with the counter package before use.
type FileRecord struct {
	ID               string `json:"_id" yaml:"id"`
	Name             string `json:"file_name" yaml:"name"`
	SizeRaw          string `json:"file_size" yaml:"size_raw"`
	Uploader         string `json:"upload_user" yaml:"uploader"`
	UploadTimeRaw    string `json:"upload_time" yaml:"upload_time_raw"`
	Hash             string `json:"file_hash" yaml:"hash"`
	DownloadCountRaw string `json:"download_count" yaml:"download_count_raw"`
	Status           Status `json:"status" yaml:"status"`
}

// Envelope is the standard response wrapper of the storage service.
type Envelope struct {
	Status       string          `json:"status"` // "success" or "error"
	ErrorCode    int             `json:"error_code"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// OK reports whether the envelope carries a successful result.
func (e *Envelope) OK() bool {
	return e.Status == "success"
}

// FileListData is the data payload of GET /file/list.
type FileListData struct {
	FilesInfo []FileRecord `json:"files_info"`
}

// DeleteRequest is the body of POST /file/delete.
type DeleteRequest struct {
	Username string `json:"username"`
	FileUUID string `json:"file_uuid"`
}

// UploadRequest is the body of POST /file/upload.
type UploadRequest struct {
	FileName       string `json:"file_name"`
	FilePath       string `json:"file_path"`
	FileCiphertext string `json:"file_ciphertext"`
	FileHash       string `json:"file_hash"`
	FileSize       string `json:"file_size"` // wire counter
	FileKey        string `json:"file_key"`
	UploadUser     string `json:"upload_user"`
}

// UploadResult is the data payload of POST /file/upload.
type UploadResult struct {
	FileUUID string `json:"file_uuid"`
}

// FileDetail is the data payload of GET /file/detail.
type FileDetail struct {
	ID               string `json:"_id"`
	Name             string `json:"file_name"`
	SizeRaw          string `json:"file_size"`
	Hash             string `json:"file_hash"`
	Ciphertext       string `json:"file_ciphertext"`
	DownloadCountRaw string `json:"download_count"`
	Commits          any    `json:"commits,omitempty"`
}

// DownloadRequest is the body of POST /file/download.
type DownloadRequest struct {
	FileUUID     string `json:"file_uuid"`
	DownloadUser string `json:"download_user"`
}

// DownloadGrant is the data payload of POST /file/download: the key shares a
// Sealer needs to open the ciphertext.
type DownloadGrant struct {
	EncSharesList []json.RawMessage `json:"enc_shares_list"`
}
