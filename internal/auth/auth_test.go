package auth

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/shiramwangi/gawa/internal/testutil"
)

func newEcho() *echo.Echo {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		id, err := UserID(c)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
		}
		return c.String(http.StatusOK, strconv.FormatInt(id, 10))
	}, Middleware("secret"))
	return e
}

func TestMiddleware(t *testing.T) {
	e := newEcho()

	cases := []struct {
		name   string
		header string
		code   int
		body   string
	}{
		{"valid token", "Bearer " + testutil.GenerateJWTHS256(t, "secret", 42, "a@b.c"), http.StatusOK, "42"},
		{"wrong secret", "Bearer " + testutil.GenerateJWTHS256(t, "other", 42, "a@b.c"), http.StatusUnauthorized, ""},
		{"missing", "", http.StatusUnauthorized, ""},
		{"no user id", "Bearer " + testutil.GenerateJWTHS256(t, "secret", 0, "a@b.c"), http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tc.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tc.code, rec.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, rec.Body.String())
			}
		})
	}
}
