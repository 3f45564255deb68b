package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	applogger "CoinPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover turns handler panics into plain 500 responses instead of taking
// the process down with an in-flight request.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				l.Error("handler panic",
					applogger.String("uri", c.Request().RequestURI),
					applogger.Error(panicError(r)),
					applogger.String("stack", string(debug.Stack())))
				_ = c.JSON(http.StatusInternalServerError, map[string]interface{}{
					"status":  http.StatusInternalServerError,
					"message": http.StatusText(http.StatusInternalServerError),
				})
			}()
			return next(c)
		}
	}
}

func panicError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
