package dto

type SendChatRequest struct {
	SessionId string `json:"session_id" validate:"required"`
	Query     string `json:"query" validate:"required,max=8000"`
}

type SendChatResponse struct {
	SessionId string `json:"session_id"`
	Answer    string `json:"answer"`
}

type ChatTurnResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// WsChatRequest is the frame a websocket client sends for one chat turn.
type WsChatRequest struct {
	Query string `json:"query" validate:"required,max=8000"`
}

// WsFrame is every frame the server writes on a chat websocket.
type WsFrame struct {
	Type      string      `json:"type"` // "answer" | "error"; session events reuse their own type
	Answer    string      `json:"answer,omitempty"`
	ErrorType string      `json:"error_type,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}
