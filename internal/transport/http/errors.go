package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/practicechat/internal/messaging"
	"github.com/vovakirdan/practicechat/internal/proto"
)

const retryMessage = "something went wrong, please try again"

// writeError maps service errors onto status codes. Storage failures are
// logged and reported with a generic message.
func writeError(c *gin.Context, logger *zerolog.Logger, err error) {
	var blocked *messaging.BlockedError
	switch {
	case errors.As(err, &blocked):
		c.JSON(http.StatusBadRequest, proto.ErrorResponse{
			Message: "message blocked by content filter",
			Reason:  blocked.Reason,
		})
	case errors.Is(err, messaging.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, proto.ErrorResponse{Message: err.Error()})
	case errors.Is(err, messaging.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, proto.ErrorResponse{Message: "unauthorized"})
	case errors.Is(err, messaging.ErrNotFound):
		c.JSON(http.StatusNotFound, proto.ErrorResponse{Message: messaging.ErrNotFound.Error()})
	default:
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, proto.ErrorResponse{Message: retryMessage})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, proto.ErrorResponse{Message: msg})
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, proto.ErrorResponse{Message: msg})
}

// writePlainError writes an ErrorResponse for handlers served outside gin.
func writePlainError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(proto.ErrorResponse{Message: msg})
}
