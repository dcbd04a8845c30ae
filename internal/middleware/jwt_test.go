package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func runJWT(t *testing.T, authHeader string) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := JWTAuth(testSecret)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, handler(c))
	return rec, c
}

func TestJWTAuth(t *testing.T) {
	t.Run("valid token injects identity", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{"email": "alice@example.com", "role": "USER"})
		rec, c := runJWT(t, "Bearer "+token)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "alice@example.com", c.Get("email"))
		require.Equal(t, "USER", c.Get("role"))
	})

	t.Run("missing header", func(t *testing.T) {
		rec, _ := runJWT(t, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := signToken(t, "other-secret", jwt.MapClaims{"email": "alice@example.com"})
		rec, _ := runJWT(t, "Bearer "+token)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token without email claim", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{"role": "USER"})
		rec, _ := runJWT(t, "Bearer "+token)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireRole(t *testing.T) {
	run := func(role interface{}, allowed ...string) *httptest.ResponseRecorder {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if role != nil {
			c.Set("role", role)
		}
		handler := RequireRole(allowed...)(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})
		require.NoError(t, handler(c))
		return rec
	}

	require.Equal(t, http.StatusOK, run("ADMIN", "ADMIN").Code)
	require.Equal(t, http.StatusOK, run("USER", "USER", "ADMIN").Code)
	require.Equal(t, http.StatusForbidden, run("USER", "ADMIN").Code)
	require.Equal(t, http.StatusForbidden, run(nil, "ADMIN").Code)
	require.Equal(t, http.StatusForbidden, run(42, "ADMIN").Code)
}
