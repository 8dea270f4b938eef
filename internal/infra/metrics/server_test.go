package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestServerRoutes(t *testing.T) {
	s := NewServer(0, zap.NewNop())

	for _, path := range []string{"/healthz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.srv.Handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestServerHasReadHeaderTimeout(t *testing.T) {
	s := NewServer(0, zap.NewNop())
	assert.Greater(t, int64(s.srv.ReadHeaderTimeout), int64(0))
}
