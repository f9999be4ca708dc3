package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownEvent   = errors.New("unknown event")
)

// Frame is the envelope of every socket message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Encode serialises an outbound event.
func Encode(event string, payload any) ([]byte, error) {
	return json.Marshal(outFrame{Event: event, Data: payload})
}

// Decode parses and validates an inbound frame. The returned error wraps
// ErrMalformedFrame or ErrUnknownEvent; the event name is returned whenever it could be read
// so that the caller can address its error reply.
func Decode(raw []byte) (Inbound, string, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Event == "" {
		return nil, "", fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	}

	var (
		in  Inbound
		err error
	)
	switch f.Event {
	case EventRegister:
		in, err = decodeRegister(f.Data)
	case EventMessage:
		var msg SendMessage
		err = unmarshal(f.Data, &msg.Envelope)
		in = msg
	case EventCreateGroup:
		var cg CreateGroup
		if err = unmarshal(f.Data, &cg); err == nil {
			err = cg.validate()
		}
		in = cg
	case EventConnectionsUpdate:
		var cu ConnectionUpdate
		if err = unmarshal(f.Data, &cu); err == nil {
			err = cu.Validate()
		}
		in = cu
	case EventPresenceUpdate:
		var pu PresenceUpdate
		if err = unmarshal(f.Data, &pu); err == nil && !pu.Presence.Valid() {
			err = fmt.Errorf("%w: unknown presence %q", ErrMalformedFrame, pu.Presence)
		}
		in = pu
	case EventMessagesRead:
		var mr MarkRead
		if err = unmarshal(f.Data, &mr); err == nil {
			err = mr.validate()
		}
		in = mr
	default:
		return nil, f.Event, fmt.Errorf("%w: %s", ErrUnknownEvent, f.Event)
	}
	if err != nil {
		return nil, f.Event, err
	}
	return in, f.Event, nil
}

func unmarshal(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: missing payload", ErrMalformedFrame)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

// register carries a bare integer; an object form {"user_id": n} is tolerated as well.
func decodeRegister(data json.RawMessage) (Inbound, error) {
	var id int
	if err := json.Unmarshal(data, &id); err != nil {
		var obj struct {
			UserID int `json:"user_id"`
		}
		if err := unmarshal(data, &obj); err != nil {
			return nil, err
		}
		id = obj.UserID
	}
	if id <= 0 {
		return nil, fmt.Errorf("%w: user id must be positive", ErrMalformedFrame)
	}
	return Register{UserID: id}, nil
}

func (cg CreateGroup) validate() error {
	for _, id := range cg.Members {
		if id <= 0 {
			return fmt.Errorf("%w: member ids must be positive", ErrMalformedFrame)
		}
	}
	return nil
}

// Validate checks the action label and both user ids.
func (cu ConnectionUpdate) Validate() error {
	if !cu.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrMalformedFrame, cu.Action)
	}
	if cu.FromUserID <= 0 || cu.ToUserID <= 0 {
		return fmt.Errorf("%w: user ids must be positive", ErrMalformedFrame)
	}
	if cu.FromUserID == cu.ToUserID {
		return fmt.Errorf("%w: from_user_id and to_user_id must differ", ErrMalformedFrame)
	}
	return nil
}

func (mr MarkRead) validate() error {
	if (mr.ToUser == nil) == (mr.GroupID == nil) {
		return fmt.Errorf("%w: exactly one of to_user or group_id is required", ErrMalformedFrame)
	}
	if mr.MessageID <= 0 {
		return fmt.Errorf("%w: message_id must be positive", ErrMalformedFrame)
	}
	return nil
}
