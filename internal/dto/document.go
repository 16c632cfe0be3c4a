package dto

import (
	"time"

	"github.com/noah-isme/docshare-api/internal/models"
)

// DocumentResponse is returned after an upload.
type DocumentResponse struct {
	models.Document
	Deduplicated bool `json:"deduplicated"`
}

// DocumentItem is a row of the owner's document listing.
type DocumentItem struct {
	models.DocumentListItem
	IsShared bool `json:"is_shared"`
}

// DocumentListQuery captures listing query parameters.
type DocumentListQuery struct {
	Search   string `form:"search"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// PreviewResponse carries a time-limited link to the document content.
type PreviewResponse struct {
	Filename   string    `json:"filename"`
	MimeType   string    `json:"mime_type"`
	FileSize   int64     `json:"file_size"`
	PreviewURL string    `json:"preview_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}
