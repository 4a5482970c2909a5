package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/23skdu/field/internal/claim"
	"github.com/23skdu/field/internal/core"
	fielderrors "github.com/23skdu/field/internal/errors"
	"github.com/23skdu/field/internal/security"
)

type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

func statusFor(err error) int {
	var nf *core.ErrNotFound
	var ia *core.ErrInvalidArgument
	var oob *core.ErrOutOfBounds
	switch {
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.Is(err, claim.ErrEliminated):
		return http.StatusForbidden
	case errors.Is(err, claim.ErrRoundOver):
		return http.StatusConflict
	case errors.Is(err, security.ErrInvalidUserID), errors.As(err, &ia), errors.As(err, &oob):
		return http.StatusBadRequest
	}
	switch fielderrors.TypeOf(err) {
	case fielderrors.ErrorTypeValidation, fielderrors.ErrorTypeCodec:
		return http.StatusBadRequest
	case fielderrors.ErrorTypeState:
		return http.StatusConflict
	case fielderrors.ErrorTypeStorage, fielderrors.ErrorTypeNetwork:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.d.Logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error(), Type: string(fielderrors.TypeOf(err))})
}
