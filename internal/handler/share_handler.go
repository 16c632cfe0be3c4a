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

type shareService interface {
	GetStatus(ctx context.Context, documentID string, actor *models.JWTClaims) (*dto.ShareResponse, error)
	CreateOrUpdate(ctx context.Context, documentID string, req dto.ShareRequest, actor *models.JWTClaims) (*dto.ShareResponse, bool, error)
	UpdateByToken(ctx context.Context, token string, req dto.ShareRequest, actor *models.JWTClaims) (*dto.ShareResponse, error)
	Revoke(ctx context.Context, documentID string, actor *models.JWTClaims) error
	ListMine(ctx context.Context, actor *models.JWTClaims) ([]dto.SharedDocumentItem, error)
	Check(ctx context.Context, token string) (*dto.ShareCheckResponse, error)
	Resolve(ctx context.Context, token, code string) (*dto.SharedAccessResponse, error)
}

type shareExporter interface {
	ExportShared(ctx context.Context, format string, actor *models.JWTClaims) (*service.ExportResult, error)
}

// ShareHandler exposes share management for owners and the anonymous share endpoints.
type ShareHandler struct {
	service  shareService
	exporter shareExporter
}

// NewShareHandler builds a new handler.
func NewShareHandler(service shareService, exporter shareExporter) *ShareHandler {
	return &ShareHandler{service: service, exporter: exporter}
}

// Status godoc
// @Summary Current share of a document
// @Tags Shares
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope "Document is not shared"
// @Security BearerAuth
// @Router /documents/{id}/share [get]
func (h *ShareHandler) Status(c *gin.Context) {
	share, err := h.service.GetStatus(c.Request.Context(), c.Param("id"), middleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, share)
}

// Upsert godoc
// @Summary Enable or update sharing
// @Description Creates the share on first call; later calls change type, code or expiry and keep the token.
// @Tags Shares
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.ShareRequest true "Share settings"
// @Success 201 {object} response.Envelope "Created"
// @Success 200 {object} response.Envelope "Updated"
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /documents/{id}/share [post]
// @Router /documents/{id}/share [put]
// @Router /documents/share/{id} [post]
func (h *ShareHandler) Upsert(c *gin.Context) {
	req, ok := bindShareRequest(c)
	if !ok {
		return
	}

	share, created, err := h.service.CreateOrUpdate(c.Request.Context(), c.Param("id"), req, middleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	if created {
		response.Created(c, share)
		return
	}
	response.OK(c, share)
}

// UpdateByToken godoc
// @Summary Update sharing by share token
// @Tags Shares
// @Accept json
// @Produce json
// @Param token path string true "Share token"
// @Param payload body dto.ShareRequest true "Share settings"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /documents/share/{token} [put]
func (h *ShareHandler) UpdateByToken(c *gin.Context) {
	req, ok := bindShareRequest(c)
	if !ok {
		return
	}

	share, err := h.service.UpdateByToken(c.Request.Context(), c.Param("token"), req, middleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, share)
}

// Revoke godoc
// @Summary Disable sharing
// @Description Idempotent; revoking an unshared document succeeds.
// @Tags Shares
// @Param id path string true "Document ID"
// @Success 204
// @Security BearerAuth
// @Router /documents/{id}/share [delete]
func (h *ShareHandler) Revoke(c *gin.Context) {
	if err := h.service.Revoke(c.Request.Context(), c.Param("id"), middleware.CurrentClaims(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListMine godoc
// @Summary List my shared documents
// @Tags Shares
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /documents/shared [get]
func (h *ShareHandler) ListMine(c *gin.Context) {
	items, err := h.service.ListMine(c.Request.Context(), middleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{"count": len(items)})
}

// Export godoc
// @Summary Export my shared documents
// @Tags Shares
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /documents/export/shared [get]
func (h *ShareHandler) Export(c *gin.Context) {
	var query dto.ShareExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}

	result, err := h.exporter.ExportShared(c.Request.Context(), query.Format, middleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

// Check godoc
// @Summary Check a share link
// @Description Tells an anonymous visitor whether an access code is needed.
// @Tags Public
// @Produce json
// @Param token path string true "Share token"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/shared/{token}/check [get]
func (h *ShareHandler) Check(c *gin.Context) {
	res, err := h.service.Check(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// Resolve godoc
// @Summary Open a shared document
// @Tags Public
// @Produce json
// @Param token path string true "Share token"
// @Param share_code query string false "Access code for protected shares"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope "Missing or wrong access code"
// @Failure 404 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /documents/shared/{token} [get]
func (h *ShareHandler) Resolve(c *gin.Context) {
	res, err := h.service.Resolve(c.Request.Context(), c.Param("token"), c.Query("share_code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

func bindShareRequest(c *gin.Context) (dto.ShareRequest, bool) {
	var req dto.ShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid share payload"))
		return req, false
	}
	return req, true
}
