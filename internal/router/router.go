package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"bonbot/internal/middleware"
)

// Setup wires the HTTP surface: a health probe and, in webhook mode,
// the Telegram update endpoint behind IP filtering and deduplication.
func Setup(
	e *echo.Echo,
	logger *zap.Logger,
	updateDeduper middleware.UpdateDeduper,
	webhookHandler http.Handler,
) {
	e.Use(echomw.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	if webhookHandler == nil {
		logger.Info("Webhook route disabled (bot update mode is polling)")
		return
	}

	webhook := e.Group("/bot")
	webhook.Use(middleware.TelegramIPCheck())
	webhook.Use(middleware.TelegramUpdateDedup(updateDeduper))
	webhook.POST("/webhook", echo.WrapHandler(webhookHandler))
}
