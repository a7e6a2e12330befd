package auth

import (
	"encoding/json"
	"errors"
	"strings"
)

// MessageTypeAuthSuccess is the payload type delivering a freshly issued token.
const MessageTypeAuthSuccess = "auth_success"

// ErrIgnoredMessage is returned for trusted messages that carry no usable
// auth_success payload. They change nothing.
var ErrIgnoredMessage = errors.New("message ignored")

// Message is one inbound cross-context message. Data is the raw payload and
// must not be inspected before Origin is checked.
type Message struct {
	Origin string
	Data   []byte
}

type authPayload struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// parseAuthSuccess extracts the token of a well-formed auth_success payload.
func parseAuthSuccess(data []byte) (string, error) {
	var payload authPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", ErrIgnoredMessage
	}
	if payload.Type != MessageTypeAuthSuccess {
		return "", ErrIgnoredMessage
	}
	token := strings.TrimSpace(payload.Token)
	if token == "" {
		return "", ErrIgnoredMessage
	}
	return token, nil
}
