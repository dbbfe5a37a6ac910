package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lshigami/examcore/internal/dto"
	"github.com/lshigami/examcore/internal/middleware"
	"github.com/lshigami/examcore/internal/model"
	"github.com/lshigami/examcore/internal/service"
	"github.com/rs/zerolog/log"
)

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAttemptLimitReached), errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// WriteError logs a service failure and writes the matching error response.
// Internal errors are not echoed back to the client.
func WriteError(ctx *gin.Context, err error, message string) {
	status := StatusFor(err)
	resp := dto.ErrorResponse{Message: message}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", ctx.FullPath()).Msg(message)
	} else {
		log.Warn().Err(err).Str("path", ctx.FullPath()).Int("status", status).Msg(message)
		resp.Details = []string{err.Error()}
	}
	ctx.JSON(status, resp)
}

// Principal returns the authenticated caller, writing a 401 when absent.
func Principal(ctx *gin.Context) (model.Principal, bool) {
	p, ok := middleware.PrincipalFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Message: "Authentication required"})
	}
	return p, ok
}
