package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/docshare-api/internal/dto"
	"github.com/noah-isme/docshare-api/internal/middleware"
	"github.com/noah-isme/docshare-api/internal/models"
	"github.com/noah-isme/docshare-api/internal/service"
	appErrors "github.com/noah-isme/docshare-api/pkg/errors"
	"github.com/noah-isme/docshare-api/pkg/response"
)

type documentService interface {
	Upload(ctx context.Context, upload service.DocumentUpload, actor *models.JWTClaims) (*models.Document, bool, error)
	List(ctx context.Context, query dto.DocumentListQuery, actor *models.JWTClaims) ([]dto.DocumentItem, *models.Pagination, error)
	Preview(ctx context.Context, id string, actor *models.JWTClaims) (*dto.PreviewResponse, error)
	Download(ctx context.Context, id string, actor *models.JWTClaims) (*service.DocumentDownload, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
}

// DocumentHandler exposes the owner's document endpoints.
type DocumentHandler struct {
	service documentService
}

// NewDocumentHandler builds a new handler.
func NewDocumentHandler(service documentService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// Upload godoc
// @Summary Upload a document
// @Description Identical content uploaded twice by the same user returns the existing document.
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope "Deduplicated"
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Security BearerAuth
// @Router /documents/upload [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable upload"))
		return
	}
	defer file.Close()

	doc, deduplicated, err := h.service.Upload(c.Request.Context(), service.DocumentUpload{
		Filename: header.Filename,
		Size:     header.Size,
		MimeType: header.Header.Get("Content-Type"),
		Content:  file,
	}, middleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusCreated
	if deduplicated {
		status = http.StatusOK
	}
	response.JSON(c, status, dto.DocumentResponse{Document: *doc, Deduplicated: deduplicated}, nil)
}

// List godoc
// @Summary List my documents
// @Tags Documents
// @Produce json
// @Param search query string false "Filename filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /documents/my-documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	var query dto.DocumentListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}

	items, pagination, err := h.service.List(c.Request.Context(), query, middleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Preview godoc
// @Summary Preview link for a document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /documents/preview/{id} [get]
func (h *DocumentHandler) Preview(c *gin.Context) {
	preview, err := h.service.Preview(c.Request.Context(), c.Param("id"), middleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, preview)
}

// Download godoc
// @Summary Download a document
// @Tags Documents
// @Produce octet-stream
// @Param id path string true "Document ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /documents/download/{id} [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	download, err := h.service.Download(c.Request.Context(), c.Param("id"), middleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.Body.Close()

	response.Attachment(c, download.Filename, download.MimeType, download.Size, download.Body)
}

// Delete godoc
// @Summary Delete a document
// @Description Removes the stored file and any share of the document.
// @Tags Documents
// @Param id path string true "Document ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /documents/{id} [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), middleware.CurrentClaims(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
