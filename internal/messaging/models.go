package messaging

// SendMessageRequest represents a request to send a text message
type SendMessageRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}
