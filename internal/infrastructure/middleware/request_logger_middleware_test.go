package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Relicjamin-jv/wolf/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	cl := logger.NewContextLogger(zap.New(core))

	var handlerIP interface{}
	router := gin.New()
	router.Use(RequestLoggerMiddleware(cl))
	router.GET("/apps", func(c *gin.Context) {
		handlerIP = c.Request.Context().Value(logger.ClientIPKey)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/apps", nil)
	req.RemoteAddr = "10.0.0.2:4711"
	router.ServeHTTP(w, req)

	if handlerIP != "10.0.0.2" {
		t.Errorf("expected client ip in the request context, got %v", handlerIP)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["method"] != http.MethodGet {
		t.Errorf("expected method field, got %v", fields["method"])
	}
	if fields["path"] != "/apps" {
		t.Errorf("expected path field, got %v", fields["path"])
	}
	if fields["status_code"] != int64(http.StatusNoContent) {
		t.Errorf("expected status_code field, got %v", fields["status_code"])
	}
	if fields["client_ip"] != "10.0.0.2" {
		t.Errorf("expected client_ip field, got %v", fields["client_ip"])
	}
}
