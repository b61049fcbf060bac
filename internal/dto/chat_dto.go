package dto

type SendChatRequest struct {
	Message        string `json:"message" validate:"required"`
	ConversationId string `json:"conversationId" validate:"required,uuid"`
}

// TurnCompletedMessage is published on the in-process bus after each turn.
type TurnCompletedMessage struct {
	ConversationId string `json:"conversationId"`
	MessageId      string `json:"messageId,omitempty"`
	TurnIndex      int    `json:"turnIndex"`
	AdMode         string `json:"adMode"`
	Outcome        string `json:"outcome"`
	Category       string `json:"category,omitempty"`
	ProductName    string `json:"productName,omitempty"`
	FrameKind      string `json:"frameKind,omitempty"`
	TextLength     int    `json:"textLength"`
	DurationMs     int64  `json:"durationMs"`
}
