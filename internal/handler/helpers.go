package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/edurank/gradeproof/internal/middleware"
	"github.com/edurank/gradeproof/internal/pkg/errcode"
	appErr "github.com/edurank/gradeproof/internal/pkg/errors"
	"github.com/edurank/gradeproof/internal/pkg/response"
)

func getUserID(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextUserIDKey)
	userID, _ := value.(string)
	return userID
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Warn("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrForbidden):
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, appErr.ErrCodeExpired):
		response.Error(c, errcode.ErrCodeExpired, "verification code expired, request a new one")
	case errors.Is(err, appErr.ErrCodeUsed):
		response.Error(c, errcode.ErrCodeUsed, "verification code already used, request a new one")
	case errors.Is(err, appErr.ErrNoActiveCode):
		response.Error(c, errcode.ErrNoActiveCode, "no active verification code, request one first")
	case errors.Is(err, appErr.ErrVideoTooShort), errors.Is(err, appErr.ErrVideoTooLong):
		response.Error(c, errcode.ErrVideoDuration, "video duration out of bounds")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "verification already in progress")
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, errcode.ErrTooMany, "too many requests, try again later")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
