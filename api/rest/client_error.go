package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/kasuganosora/lifequest/server/middleware"
)

const maxClientStack = 8 << 10

type clientError struct {
	Message string `json:"message" binding:"required"`
	Source  string `json:"source"`
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Stack   string `json:"stack"`
	UA      string `json:"ua"`
}

// ClientError returns the handler for POST /api/client-error. Browsers report
// script errors here, possibly before sign-in, so no auth is required.
func ClientError(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body clientError
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err)
			return
		}
		if len(body.Stack) > maxClientStack {
			body.Stack = body.Stack[:maxClientStack]
		}
		logger.Warn("client error",
			zap.String("message", body.Message),
			zap.String("source", body.Source),
			zap.Int("line", body.Line),
			zap.Int("col", body.Col),
			zap.String("stack", body.Stack),
			zap.String("ua", body.UA),
			zap.String("trace_id", mw.GetTraceID(c)),
		)
		c.JSON(http.StatusOK, gin.H{"status": "received"})
	}
}
