// Package dispatch builds and sends reply envelopes on behalf of response
// producers that should not know transport details.
package dispatch

import (
	"github.com/rs/zerolog"

	"github.com/cr8-studio/relay/internal/endpoint"
)

// Reply is the envelope shape produced by the dispatcher.
type Reply struct {
	Command   string `json:"command"`
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// Reply status values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Dispatcher sends reply envelopes. It holds no channel state; the outbound
// endpoint is an argument on every call, so concurrent sessions never share
// mutable dispatcher state.
type Dispatcher struct {
	log zerolog.Logger
}

// New creates a Dispatcher.
func New(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{log: log}
}

// Send builds {command, status, data?, message_id?} and writes it to ep. The
// message id is taken from messageID when given, otherwise lifted out of
// data.message_id or data.data.message_id when present. Returns whether the
// reply went out; it never panics and a nil endpoint is a logged no-op.
func (d *Dispatcher) Send(ep endpoint.Endpoint, command string, succeeded bool, data map[string]any, messageID string) bool {
	if ep == nil {
		d.log.Error().Str("command", command).Msg("dispatch: no endpoint to send on")
		return false
	}

	reply := Reply{Command: command, Status: StatusFailed}
	if succeeded {
		reply.Status = StatusSuccess
	}

	if messageID == "" {
		messageID = liftMessageID(data)
	}
	reply.MessageID = messageID
	if data != nil {
		reply.Data = data
	}

	if err := ep.SendJSON(reply); err != nil {
		d.log.Error().Err(err).Str("command", command).Msg("dispatch: reply send failed")
		return false
	}
	return true
}

// liftMessageID digs the message id out of data.message_id, falling back to
// the nested data.data.message_id shape used by worker replies.
func liftMessageID(data map[string]any) string {
	if data == nil {
		return ""
	}
	if id, ok := data["message_id"].(string); ok {
		return id
	}
	if nested, ok := data["data"].(map[string]any); ok {
		if id, ok := nested["message_id"].(string); ok {
			return id
		}
	}
	return ""
}
