package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kasuganosora/lifequest/server/game/apperr"
	mw "github.com/kasuganosora/lifequest/server/middleware"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindInvalid:      http.StatusBadRequest,
	apperr.KindUnauthorized: http.StatusUnauthorized,
	apperr.KindForbidden:    http.StatusForbidden,
	apperr.KindNotFound:     http.StatusNotFound,
	apperr.KindConflict:     http.StatusConflict,
	apperr.KindPayment:      http.StatusPaymentRequired,
	apperr.KindLimit:        http.StatusTooManyRequests,
	apperr.KindUnavailable:  http.StatusServiceUnavailable,
}

// fail writes err as {"error": message}. Errors without a user-facing
// message are logged and reported as a bare 500.
func fail(c *gin.Context, logger *zap.Logger, err error) {
	_ = c.Error(err)
	status, ok := statusByKind[apperr.KindOf(err)]
	if !ok {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("trace_id", mw.GetTraceID(c)),
			zap.String("user_id", mw.GetUserID(c)),
			zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.Message(err)})
}

// badRequest reports a body that could not be bound.
func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
}
