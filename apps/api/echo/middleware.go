package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

const studentParam = "sid"

func adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if claims.IsAdmin {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

// selfOrAdminMiddleware lets admins through, and students on their own records only.
func selfOrAdminMiddleware(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin || (claims.IsStudent && claims.Subject == ctx.Param(param)) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
