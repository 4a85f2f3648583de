package handler

import (
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/agromarket-api/pkg/errors"
	"github.com/noah-isme/agromarket-api/pkg/response"
)

type signedOpener interface {
	OpenSigned(token string) (*os.File, error)
}

// ImageHandler serves locally stored product pictures behind signed URLs.
type ImageHandler struct {
	store signedOpener
}

// NewImageHandler constructs an ImageHandler.
func NewImageHandler(store signedOpener) *ImageHandler {
	return &ImageHandler{store: store}
}

// Download godoc
// @Summary Download a product picture
// @Tags Products
// @Produce image/jpeg
// @Produce image/png
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /images/{token} [get]
func (h *ImageHandler) Download(c *gin.Context) {
	file, err := h.store.OpenSigned(c.Param("token"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "image not found or link expired"))
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to read image"))
		return
	}
	contentType := mime.TypeByExtension(filepath.Ext(file.Name()))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.DataFromReader(http.StatusOK, info.Size(), contentType, io.Reader(file), nil)
}
