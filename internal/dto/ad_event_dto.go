package dto

type AdEventRequest struct {
	EventId    string                 `json:"eventId" validate:"omitempty,max=64"`
	SessionId  string                 `json:"sessionId" validate:"required,max=64"`
	MessageId  string                 `json:"messageId" validate:"required,max=64"`
	AdMode     string                 `json:"adMode" validate:"required,max=20"`
	EventType  string                 `json:"eventType" validate:"required,oneof=impression first_interaction click mouseover_start mouseover_end dismiss"`
	DurationMs *int64                 `json:"durationMs" validate:"omitempty,gte=0"`
	Metadata   map[string]interface{} `json:"metadata"`
}

type RecordAdEventsRequest struct {
	Events []AdEventRequest `json:"events" validate:"required,dive"`
}

type RecordAdEventsResponse struct {
	Count int `json:"count"`
}
