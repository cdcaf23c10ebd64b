package rest

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kasuganosora/lifequest/server/audit"
	mw "github.com/kasuganosora/lifequest/server/middleware"
)

// Audited records the outcome of the wrapped route in the audit trail.
// Request bodies are never recorded; they may hold passwords.
func Audited(trail audit.Logger, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := audit.Entry{
			TraceID:    mw.GetTraceID(c),
			UserID:     mw.GetUserID(c),
			Action:     action,
			IP:         c.ClientIP(),
			DurationMs: int(time.Since(start).Milliseconds()),
			Response:   gin.H{"status": c.Writer.Status()},
		}
		if len(c.Params) > 0 {
			params := make(map[string]string, len(c.Params))
			for _, p := range c.Params {
				params[p.Key] = p.Value
			}
			entry.Request = params
		}
		if err := c.Errors.Last(); err != nil {
			entry.Error = err.Error()
		}
		trail.Log(entry)
	}
}
