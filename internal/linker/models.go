package linker

// ConnectRequest represents a request to start a linking attempt
type ConnectRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Method      string `json:"method"`
}

// ClientInfo is one redacted entry in the session listing
type ClientInfo struct {
	PhoneNumber string `json:"phoneNumber"`
	SessionID   string `json:"sessionId"`
	State       string `json:"state"`
	Connected   bool   `json:"connected"`
	CreatedAt   string `json:"createdAt"`
}
