package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(t *testing.T, cfg CORSConfig, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(method, "/api/v1/search", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func prodConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"https://shop.example.com", "https://admin.example.com"},
		Environment:    "production",
	}
}

func TestCORS_DevelopmentAnswersAnyOrigin(t *testing.T) {
	rr := corsRequest(t, DefaultCORSConfig(), http.MethodPost, "https://anything.example")
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCORS_ProductionEchoesAllowedOrigin(t *testing.T) {
	for _, origin := range []string{"https://shop.example.com", "https://admin.example.com"} {
		rr := corsRequest(t, prodConfig(), http.MethodPost, origin)
		assert.Equal(t, origin, rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", rr.Header().Get("Vary"))
	}
}

func TestCORS_ProductionOmitsUnknownOrigin(t *testing.T) {
	rr := corsRequest(t, prodConfig(), http.MethodPost, "https://evil.example")
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	// The request still executes; the browser enforces the block.
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	rr := corsRequest(t, prodConfig(), http.MethodOptions, "https://shop.example.com")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "GET, POST, DELETE, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORS_AllowsChannelAndLanguageHeaders(t *testing.T) {
	rr := corsRequest(t, prodConfig(), http.MethodOptions, "https://shop.example.com")
	allowed := rr.Header().Get("Access-Control-Allow-Headers")
	assert.Contains(t, allowed, "X-Channel-ID")
	assert.Contains(t, allowed, "Accept-Language")
	assert.Contains(t, allowed, "Content-Type")
}

func TestCORS_ExposesCorrelationID(t *testing.T) {
	cfg := prodConfig()
	cfg.ExposedHeaders = []string{"X-Correlation-ID"}
	rr := corsRequest(t, cfg, http.MethodPost, "https://shop.example.com")
	assert.Equal(t, "X-Correlation-ID", rr.Header().Get("Access-Control-Expose-Headers"))
}

func TestCORS_MaxAgeAndCredentials(t *testing.T) {
	cfg := prodConfig()
	cfg.MaxAge = 600
	cfg.AllowCredentials = true
	rr := corsRequest(t, cfg, http.MethodPost, "https://shop.example.com")
	assert.Equal(t, "600", rr.Header().Get("Access-Control-Max-Age"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_WildcardEntryOverridesEnvironment(t *testing.T) {
	cfg := CORSConfig{AllowedOrigins: []string{"*"}, Environment: "production"}
	rr := corsRequest(t, cfg, http.MethodPost, "https://anywhere.example")
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
