package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/fleamarket-backend/internal/middleware"
	"github.com/shinyyama/fleamarket-backend/internal/reqctx"
	"github.com/shinyyama/fleamarket-backend/internal/service"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error errorPayload `json:"error"`
}

func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Error: errorPayload{
			Code:    code,
			Message: message,
		},
	}
}

func actorFrom(c echo.Context) service.Actor {
	uid, _ := c.Get(middleware.KeyUID).(string)
	name, _ := c.Get(middleware.KeyName).(string)
	return service.Actor{ID: uid, Name: name}
}

func missingUID(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
}

// writeServiceError maps service errors to a status code and a message the
// client can act on.
func writeServiceError(c echo.Context, err error) error {
	var (
		status int
		code   string
		msg    string
	)
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status, code, msg = http.StatusBadRequest, "bad_request", err.Error()
	case errors.Is(err, service.ErrNotFound):
		status, code, msg = http.StatusNotFound, "not_found", "listing not found"
	case errors.Is(err, service.ErrLostRace):
		status, code, msg = http.StatusConflict, "lost_race", "another buyer completed the purchase first, please return to the listing page"
	case errors.Is(err, service.ErrImmutable):
		status, code, msg = http.StatusConflict, "invalid_transition", "this listing has been paid and can no longer change"
	case errors.Is(err, service.ErrAlreadyTaken):
		status, code, msg = http.StatusConflict, "invalid_transition", "this listing is no longer available, please return to the listing page"
	case errors.Is(err, service.ErrInvalidTransition):
		status, code, msg = http.StatusConflict, "invalid_transition", err.Error()
	case errors.Is(err, service.ErrUnauthorized):
		status, code, msg = http.StatusForbidden, "forbidden", "you are not allowed to change this listing"
	case errors.Is(err, service.ErrPartiallyApplied):
		status, code, msg = http.StatusInternalServerError, "partially_applied", "the update was only partly saved, please contact support before retrying"
	case errors.Is(err, service.ErrStoreUnavailable):
		status, code, msg = http.StatusServiceUnavailable, "store_unavailable", "the catalog is temporarily unavailable, please retry"
		c.Response().Header().Set("Retry-After", "5")
	default:
		status, code, msg = http.StatusInternalServerError, "internal_error", "unexpected error"
	}
	if status >= http.StatusInternalServerError {
		log.Printf("[http] rid=%s method=%s path=%s status=%d err=%v",
			reqctx.RID(c.Request().Context()), c.Request().Method, c.Path(), status, err)
	}
	return c.JSON(status, NewErrorResponse(code, msg))
}
