package auth

import (
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

// JwtCustomClaims are issued by the user service; only the subject's id is used here.
type JwtCustomClaims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

const contextKey = "user"

// Middleware validates HS256 bearer tokens signed with secret.
func Middleware(secret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: echojwt.AlgorithmHS256,
		ContextKey:    contextKey,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(JwtCustomClaims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid or missing token"})
		},
	})
}

var errNoUser = errors.New("token carries no user_id")

// UserID returns the authenticated user's id.
func UserID(c echo.Context) (int64, error) {
	token, ok := c.Get(contextKey).(*jwt.Token)
	if !ok {
		return 0, errNoUser
	}
	claims, ok := token.Claims.(*JwtCustomClaims)
	if !ok || claims.UserID == 0 {
		return 0, errNoUser
	}
	return claims.UserID, nil
}
