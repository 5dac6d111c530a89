package api

import (
	"errors"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/shiramwangi/gawa/internal/service"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "api").Logger()

// respondError maps service errors onto HTTP status codes. Anything that is
// not a known client error is logged and reported as a generic 500.
func respondError(c echo.Context, err error) error {
	var (
		ve *service.ValidationError
		nf *service.NotFoundError
		is *service.InvalidStateError
		fb *service.ForbiddenError
	)
	switch {
	case errors.As(err, &ve):
		return c.JSON(400, map[string]string{"error": ve.Msg})
	case errors.As(err, &nf):
		return c.JSON(404, map[string]string{"error": nf.Error()})
	case errors.As(err, &fb):
		return c.JSON(403, map[string]string{"error": fb.Msg})
	case errors.As(err, &is):
		return c.JSON(409, map[string]string{"error": is.Msg})
	case errors.Is(err, service.ErrDuplicateRequest):
		return c.JSON(409, map[string]string{"error": err.Error()})
	}
	logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return c.JSON(500, map[string]string{"error": "internal server error"})
}

func parseID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func queryInt(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// idempotencyKey reads the Idempotency-Key header, accepting the older Idempotent-Key spelling.
func idempotencyKey(c echo.Context) string {
	if k := c.Request().Header.Get("Idempotency-Key"); k != "" {
		return k
	}
	return c.Request().Header.Get("Idempotent-Key")
}
