package handler

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/fleamarket-backend/internal/reqctx"
	"github.com/shinyyama/fleamarket-backend/internal/storage"
)

type ImageHandler struct {
	store storage.ImageStore
}

func NewImageHandler(store storage.ImageStore) *ImageHandler {
	return &ImageHandler{store: store}
}

// Upload accepts a multipart "file" field and returns the hosted URL to put in
// a listing's images.
func (h *ImageHandler) Upload(c echo.Context) error {
	if actorFrom(c).ID == "" {
		return missingUID(c)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "file is required"))
	}
	if fh.Size > storage.MaxImageBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, NewErrorResponse("too_large", "image too large"))
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "unreadable file"))
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, storage.MaxImageBytes+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "unreadable file"))
	}

	u, err := h.store.Upload(c.Request().Context(), data)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, map[string]string{"url": u})
	case errors.Is(err, storage.ErrTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, NewErrorResponse("too_large", "image too large"))
	case errors.Is(err, storage.ErrUnsupportedType), errors.Is(err, storage.ErrEmpty):
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", err.Error()))
	default:
		log.Printf("[image] rid=%s stage=upload err=%v", reqctx.RID(c.Request().Context()), err)
		return c.JSON(http.StatusBadGateway, NewErrorResponse("upload_failed", "failed to store image"))
	}
}
