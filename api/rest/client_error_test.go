package rest_test

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestClientError(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/client-error", "", gin.H{
		"message": "TypeError: x is undefined",
		"source":  "app.js",
		"line":    12,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/client-error", "", gin.H{"source": "app.js"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, errorOf(t, w))
}
