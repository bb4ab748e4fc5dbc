package handlers

import (
	"chamahub/internal/adapters/http/middleware"
	"chamahub/internal/core/services"
	"chamahub/internal/pkg/pagination"
	"chamahub/internal/pkg/push"
	"chamahub/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// NotificationHandler handles the notification feed and websocket stream
type NotificationHandler struct {
	notificationService *services.NotificationService
	hub                 *push.Hub
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notificationService *services.NotificationService, hub *push.Hub) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
		hub:                 hub,
	}
}

// List returns a page of the caller's feed
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	params := pagination.GetParams(c)
	out, err := h.notificationService.List(c.Context(), &services.ListInput{
		UserID:     middleware.UserID(c),
		UnreadOnly: c.QueryBool("unread"),
		Page:       params.Page,
		Limit:      params.Limit,
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Notifications retrieved successfully", fiber.Map{
		"notifications": out.Notifications,
		"unread":        out.Unread,
		"meta":          pagination.GetMeta(params, out.Total),
	})
}

// MarkRead marks one notification read
func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	id, err := c.ParamsInt("notificationID")
	if err != nil {
		return response.BadRequest(c, "Invalid notification ID")
	}

	if err := h.notificationService.MarkRead(c.Context(), middleware.UserID(c), uint(id)); err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Notification marked read", nil)
}

// MarkAllRead marks the whole feed read
func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	if err := h.notificationService.MarkAllRead(c.Context(), middleware.UserID(c)); err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "All notifications marked read", nil)
}

// WebsocketUpgrade gates the websocket endpoint behind the upgrade check
// and carries the authenticated user ID into the connection handler.
func (h *NotificationHandler) WebsocketUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals("wsUserID", middleware.UserID(c))
	return c.Next()
}

// Websocket serves the live notification stream for one connection.
func (h *NotificationHandler) Websocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals("wsUserID").(uint)
		if userID == 0 {
			conn.Close()
			return
		}
		h.hub.Serve(userID, conn)
	})
}
