package models

import "time"

// ShareType selects how a share is protected.
type ShareType string

const (
	ShareTypeOpen     ShareType = "no_password"
	ShareTypePassword ShareType = "with_password"
)

// Valid reports whether t is a known share type.
func (t ShareType) Valid() bool {
	return t == ShareTypeOpen || t == ShareTypePassword
}

// RequiresCode reports whether anonymous access needs an access code.
func (t ShareType) RequiresCode() bool {
	return t == ShareTypePassword
}

// Share grants anonymous read access to one document. There is at most one
// share per document; Code is non-nil exactly when Type is ShareTypePassword.
type Share struct {
	ID          string     `db:"id" json:"id"`
	DocumentID  string     `db:"document_id" json:"document_id"`
	OwnerID     string     `db:"owner_id" json:"owner_id"`
	Token       string     `db:"token" json:"share_token"`
	Type        ShareType  `db:"share_type" json:"share_type"`
	Code        *string    `db:"share_code" json:"share_code,omitempty"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	AccessCount int64      `db:"access_count" json:"access_count"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Expired reports whether the share stopped granting access at now.
func (s *Share) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// SharedDocument is a share joined with the document it exposes.
type SharedDocument struct {
	Share
	Filename string `db:"filename" json:"filename"`
	MimeType string `db:"mime_type" json:"mime_type"`
	FileSize int64  `db:"file_size" json:"file_size"`
	// StorageKey is only populated for public resolution.
	StorageKey string `db:"storage_key" json:"-"`
}
