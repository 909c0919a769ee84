package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"outreach-server/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signedToken(t *testing.T, secret string, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "operator-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func protectedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(testSecret, observability.NewLogger()))
	router.GET("/protected", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func request(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	router := protectedRouter()
	rec := request(router, "Bearer "+signedToken(t, testSecret, time.Hour))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	router := protectedRouter()
	assert.Equal(t, http.StatusUnauthorized, request(router, "").Code)
	assert.Equal(t, http.StatusUnauthorized, request(router, "Basic abc").Code)
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	router := protectedRouter()
	rec := request(router, "Bearer "+signedToken(t, testSecret, -time.Hour))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareRejectsWrongSecret(t *testing.T) {
	router := protectedRouter()
	rec := request(router, "Bearer "+signedToken(t, "other-secret", time.Hour))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
