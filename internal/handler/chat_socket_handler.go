package handler

import (
	"context"
	"encoding/json"

	"repochat-be/internal/dto"
	"repochat-be/internal/pkg/logger"
	"repochat-be/internal/pkg/serverutils"
	"repochat-be/internal/service"
	internalWS "repochat-be/internal/websocket"
	"repochat-be/pkg/apperror"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const (
	FrameAnswer = "answer"
	FrameError  = "error"
)

type ChatSocketHandler struct {
	service service.IChatbotService
	hub     *internalWS.Hub
	logger  logger.ILogger
}

func NewChatSocketHandler(service service.IChatbotService, hub *internalWS.Hub, log logger.ILogger) *ChatSocketHandler {
	return &ChatSocketHandler{
		service: service,
		hub:     hub,
		logger:  log,
	}
}

func (h *ChatSocketHandler) RegisterRoutes(r fiber.Router) {
	r.Get("/chat/v1/ws/:id", h.ServeWs)
}

// ServeWs upgrades the connection for one session. Every inbound text frame is a chat turn.
func (h *ChatSocketHandler) ServeWs(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	// Reject unknown sessions before the upgrade so the client gets a plain 404.
	if _, err := h.service.GetChatHistory(c.UserContext(), sessionID); err != nil {
		return err
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.logger.Info("ChatSocketHandler", "Starting WebSocket session", map[string]interface{}{"session_id": sessionID})
			internalWS.ServeWs(context.Background(), h.hub, conn, sessionID, h.HandleFrame)
			h.logger.Info("ChatSocketHandler", "WebSocket session ended", map[string]interface{}{"session_id": sessionID})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

// HandleFrame runs one turn and returns the reply frame.
func (h *ChatSocketHandler) HandleFrame(ctx context.Context, sessionID string, data []byte) []byte {
	var req dto.WsChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return h.errorFrame(apperror.InvalidRequest("frame must be a JSON object with a query", err))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return h.errorFrame(err)
	}

	res, err := h.service.SendChat(ctx, &dto.SendChatRequest{SessionId: sessionID, Query: req.Query})
	if err != nil {
		return h.errorFrame(err)
	}

	return encodeFrame(dto.WsFrame{Type: FrameAnswer, Answer: res.Answer})
}

func (h *ChatSocketHandler) errorFrame(err error) []byte {
	return encodeFrame(dto.WsFrame{
		Type:      FrameError,
		ErrorType: string(apperror.KindOf(err)),
		Message:   serverutils.PublicMessage(err),
	})
}

func encodeFrame(frame dto.WsFrame) []byte {
	out, _ := json.Marshal(frame)
	return out
}
