package models

import "time"

// Document is an uploaded file owned by exactly one user. Content and
// metadata are immutable after upload; only counters change.
type Document struct {
	ID            string    `db:"id" json:"id"`
	Filename      string    `db:"filename" json:"filename"`
	FileMD5       string    `db:"file_md5" json:"file_md5"`
	FileSize      int64     `db:"file_size" json:"file_size"`
	MimeType      string    `db:"mime_type" json:"mime_type"`
	StorageKey    string    `db:"storage_key" json:"-"`
	FileUUID      string    `db:"file_uuid" json:"file_uuid"`
	UploaderID    string    `db:"uploader_id" json:"uploader_id"`
	IsPublic      bool      `db:"is_public" json:"is_public"`
	DownloadCount int64     `db:"download_count" json:"download_count"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentListItem is a document row joined with its share, if any.
type DocumentListItem struct {
	Document
	ShareToken     *string    `db:"share_token" json:"share_token,omitempty"`
	ShareType      *ShareType `db:"share_type" json:"share_type,omitempty"`
	ShareExpiresAt *time.Time `db:"share_expires_at" json:"share_expired_at,omitempty"`
}

// HasShare reports whether a share row exists for the document.
func (d DocumentListItem) HasShare() bool {
	return d.ShareToken != nil
}

// DocumentFilter narrows owner listings.
type DocumentFilter struct {
	Search   string
	Page     int
	PageSize int
}
