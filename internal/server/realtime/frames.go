package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/sealchat/internal/common"
	"github.com/dmitrijs2005/sealchat/internal/server/services"
)

const (
	FrameAuthenticate = "authenticate"
	FramePing         = "ping"
	FrameChatMessage  = "chat_message"
	FrameGroupMessage = "group_message"
	FrameError        = "error"
)

// inboundFrame covers every frame a client may send.
type inboundFrame struct {
	Type       string     `json:"type"`
	Message    string     `json:"message"`
	ReceiverID receiverID `json:"receiver_id"`
}

// receiverID accepts a JSON number or a numeric string. Anything else
// decodes to 0, which the send pipeline rejects as an invalid receiver.
type receiverID int64

func (r *receiverID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}

	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil || n <= 0 {
		*r = 0
		return nil
	}
	*r = receiverID(n)
	return nil
}

type outboundFrame struct {
	Type    string `json:"type"`
	Message any    `json:"message"`
}

func parseFrame(data []byte) (inboundFrame, error) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("%w: %v", common.ErrTransportMalformed, err)
	}
	return f, nil
}

func encodeFrame(typ string, message any) []byte {
	b, err := json.Marshal(outboundFrame{Type: typ, Message: message})
	if err != nil {
		// only ever called with strings and the services message views
		panic(err)
	}
	return b
}

func pongFrame() []byte {
	return encodeFrame(FramePing, "pong")
}

func errorFrame(text string) []byte {
	return encodeFrame(FrameError, text)
}

// ChatFrame is the outbound frame carrying a delivered message.
func ChatFrame(msg *services.ChatMessage) []byte {
	return encodeFrame(FrameChatMessage, msg)
}

// GroupFrame is the outbound frame carrying a group message.
func GroupFrame(msg *services.GroupMessageView) []byte {
	return encodeFrame(FrameGroupMessage, msg)
}

// errorText maps a pipeline error to the text shown to the client.
func errorText(err error, maxLength int) string {
	switch {
	case errors.Is(err, common.ErrAuthenticationRequired):
		return "Authentication required"
	case errors.Is(err, common.ErrRateLimited):
		return "Rate limit exceeded. Please try again shortly."
	case errors.Is(err, services.ErrMessageTooLong):
		return fmt.Sprintf("Message too long (maximum %d characters)", maxLength)
	case errors.Is(err, services.ErrNotFriends):
		return "You can only message friends"
	case errors.Is(err, services.ErrInvalidReceiver):
		return "Invalid receiver"
	case errors.Is(err, common.ErrTransportMalformed):
		return "Invalid message format"
	default:
		return "Error processing message"
	}
}

// expected reports whether err is a normal rejection rather than a fault.
func expected(err error) bool {
	for _, target := range []error{
		common.ErrAuthenticationRequired,
		common.ErrAuthorizationDenied,
		common.ErrRateLimited,
		common.ErrValidationFailed,
		common.ErrTransportMalformed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
