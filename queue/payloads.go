package queue

// ClipRequestPayload asks the clip stage to evaluate a detected match and
// request clips for it.
type ClipRequestPayload struct {
	MatchID       string `json:"matchId"`
	UserID        string `json:"userId"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// ClipMonitorPayload asks the monitor stage to check one clip's processing
// status upstream.
type ClipMonitorPayload struct {
	ClipID        string `json:"clipId"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// ClipDeliveryPayload asks the delivery stage to send one ready clip.
type ClipDeliveryPayload struct {
	ClipID        string `json:"clipId"`
	UserID        string `json:"userId"`
	CorrelationID string `json:"correlationId,omitempty"`
}
