package router

import (
	"github.com/labstack/echo/v4"

	"bookmarket/internal/adapter/api/handler"
	"bookmarket/internal/infrastructure/metrics"
)

func SetupHealthRouter(e *echo.Echo, healthHandler *handler.HealthHandler, m *metrics.Metrics) {
	e.GET("/health", healthHandler.CheckHealth)
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
}
