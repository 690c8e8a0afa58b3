package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/centrifugal/centrifuge"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/H0onnn/InvokeAI/internal/errors"
)

func (s *Server) registerRoutes() {
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(newRateLimiter(apiRatePerSecond, apiRateBurst))
	s.echo.Use(apperrors.Middleware())

	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.registerHealthRoutes()
	s.registerLayerRoutes()
	s.registerMetaRoutes()

	if s.websocketHandler != nil {
		s.echo.GET("/connection/websocket", echo.WrapHandler(centrifugeCredentials(s.websocketHandler)))
	}
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.Info("Request", attrs...)
			return nil
		},
	})
}

// centrifugeCredentials attaches anonymous credentials so the centrifuge
// node accepts the connection. UI clients are not individually identified;
// everyone sees the same layer channels.
func centrifugeCredentials(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred := &centrifuge.Credentials{UserID: ""}
		r = r.WithContext(centrifuge.SetCredentials(r.Context(), cred))
		next.ServeHTTP(w, r)
	})
}
