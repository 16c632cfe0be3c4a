package dto

import (
	"time"

	"github.com/noah-isme/docshare-api/internal/models"
)

// ShareRequest creates or updates the share of a document. ExpireDays and
// ExpiresAt are mutually exclusive; leaving both empty means the share never expires.
type ShareRequest struct {
	ShareType  models.ShareType `json:"share_type" validate:"required,oneof=no_password with_password"`
	ShareCode  *string          `json:"share_code,omitempty"`
	ExpireDays *int             `json:"expire_days,omitempty" validate:"omitempty,gt=0,lte=3650"`
	ExpiresAt  *time.Time       `json:"expires_at,omitempty"`
}

// ShareResponse is the owner's view of a share.
type ShareResponse struct {
	DocumentID  string           `json:"document_id"`
	ShareToken  string           `json:"share_token"`
	ShareURL    string           `json:"share_url"`
	ShareType   models.ShareType `json:"share_type"`
	ShareCode   *string          `json:"share_code,omitempty"`
	ExpiresAt   *time.Time       `json:"expires_at"`
	IsExpired   bool             `json:"is_expired"`
	AccessCount int64            `json:"access_count"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// ShareCheckResponse is returned by the anonymous status check.
type ShareCheckResponse struct {
	RequiresPassword bool   `json:"requires_password"`
	Filename         string `json:"filename"`
}

// SharedAccessResponse describes a resolved shared document.
type SharedAccessResponse struct {
	Filename       string     `json:"filename"`
	MimeType       string     `json:"mime_type"`
	FileSize       int64      `json:"file_size"`
	PreviewURL     string     `json:"preview_url"`
	ExpiresAt      time.Time  `json:"expires_at"`
	ShareExpiresAt *time.Time `json:"share_expires_at,omitempty"`
}

// SharedDocumentItem is a row of the owner's share listing.
type SharedDocumentItem struct {
	DocumentID  string           `json:"document_id"`
	Filename    string           `json:"filename"`
	MimeType    string           `json:"mime_type"`
	FileSize    int64            `json:"file_size"`
	ShareToken  string           `json:"share_token"`
	ShareURL    string           `json:"share_url"`
	ShareType   models.ShareType `json:"share_type"`
	ExpiresAt   *time.Time       `json:"expires_at"`
	IsExpired   bool             `json:"is_expired"`
	AccessCount int64            `json:"access_count"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// ShareExportQuery selects the report format.
type ShareExportQuery struct {
	Format string `form:"format"`
}
