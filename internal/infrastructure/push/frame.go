package push

import (
	"encoding/json"
	"fmt"
)

// Frame is the wire shape of every message on the socket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Server acknowledgement and error frames.
const (
	FrameJoined = "joined"
	FrameError  = "error"
)

type joinRequest struct {
	Token string `json:"token,omitempty"`
}

type joinedReply struct {
	Room string `json:"room"`
}

type errorReply struct {
	Message string `json:"message"`
}

func encodeFrame(name string, data any) ([]byte, error) {
	f := Frame{Event: name}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s data: %w", name, err)
		}
		f.Data = raw
	}
	return json.Marshal(f)
}
