package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/docshare-api/pkg/errors"
	"github.com/noah-isme/docshare-api/pkg/response"
	"github.com/noah-isme/docshare-api/pkg/storage"
)

type signedOpener interface {
	OpenSigned(ctx context.Context, token string) (*storage.Object, string, error)
}

// FileHandler serves blobs behind signed links issued by the local store.
type FileHandler struct {
	files signedOpener
}

// NewFileHandler builds a new handler.
func NewFileHandler(files signedOpener) *FileHandler {
	return &FileHandler{files: files}
}

// Serve godoc
// @Summary Fetch a file by signed link
// @Tags Public
// @Param token path string true "Signed token"
// @Param download query string false "Set to 1 to force a download"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /files/{token} [get]
func (h *FileHandler) Serve(c *gin.Context) {
	obj, filename, err := h.files.OpenSigned(c.Request.Context(), c.Param("token"))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrTokenExpired):
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "link expired"))
		case errors.Is(err, storage.ErrTokenMalformed), errors.Is(err, storage.ErrTokenSignature):
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "invalid link"))
		case errors.Is(err, storage.ErrObjectNotFound):
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "file not found"))
		default:
			response.Error(c, err)
		}
		return
	}
	defer obj.Body.Close()

	if c.Query("download") == "1" {
		response.Attachment(c, filename, obj.ContentType, obj.Size, obj.Body)
		return
	}
	response.Inline(c, filename, obj.ContentType, obj.Size, obj.Body)
}
