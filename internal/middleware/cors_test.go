package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func runCORS(t *testing.T, allowlist []string, method, origin string) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, "/api/v1/verification/status", nil)
	if origin != "" {
		c.Request.Header.Set("Origin", origin)
	}
	CORS(allowlist)(c)
	return rec, c
}

func TestCORS_AllowlistedOrigin(t *testing.T) {
	rec, c := runCORS(t, []string{"https://app.example.edu"}, "GET", "https://app.example.edu")

	require.False(t, c.IsAborted())
	require.Equal(t, "https://app.example.edu", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, corsAllowMethods, rec.Header().Get("Access-Control-Allow-Methods"))
	require.Equal(t, corsAllowHeaders, rec.Header().Get("Access-Control-Allow-Headers"))
	require.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestCORS_UnknownOriginGetsNoHeaders(t *testing.T) {
	rec, c := runCORS(t, []string{"https://app.example.edu"}, "GET", "https://evil.example.com")

	require.False(t, c.IsAborted())
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_EmptyAllowlistOpensToAny(t *testing.T) {
	rec, _ := runCORS(t, nil, "GET", "https://anywhere.example.com")

	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, corsAllowMethods, rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	rec, c := runCORS(t, nil, "OPTIONS", "https://anywhere.example.com")

	require.True(t, c.IsAborted())
	require.Equal(t, 204, rec.Code)
}
