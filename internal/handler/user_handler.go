package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/fleamarket-backend/internal/directory"
)

type UserHandler struct {
	dir directory.Directory
}

func NewUserHandler(dir directory.Directory) *UserHandler {
	return &UserHandler{dir: dir}
}

type PublicUserResponse struct {
	UID         string  `json:"uid"`
	DisplayName string  `json:"displayName"`
	PhotoURL    *string `json:"photoURL"`
}

func (h *UserHandler) GetPublic(c echo.Context) error {
	uid := c.Param("uid")
	if uid == "" {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid uid"))
	}
	p, err := h.dir.Lookup(c.Request().Context(), uid)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "user not found"))
		}
		return c.JSON(http.StatusBadGateway, NewErrorResponse("upstream_error", "failed to fetch user"))
	}
	return c.JSON(http.StatusOK, PublicUserResponse{
		UID:         p.UID,
		DisplayName: p.DisplayName,
		PhotoURL:    strPtrOrNil(p.PhotoURL),
	})
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
