// Package model defines the message envelopes, command kinds and sentinel
// errors shared by the relay components.
package model

// Role identifies which side of a session an endpoint serves.
type Role string

const (
	RoleBrowser Role = "browser"
	RoleWorker  Role = "worker"
)

// Valid reports whether the role is one of the two known endpoint roles.
func (r Role) Valid() bool {
	return r == RoleBrowser || r == RoleWorker
}

// Opposite returns the other endpoint role of a session.
func (r Role) Opposite() Role {
	if r == RoleBrowser {
		return RoleWorker
	}
	return RoleBrowser
}

// Status values carried by inbound envelopes.
const (
	StatusConnected = "Connected"
	StatusCompleted = "completed"
)

// StatusSuccess marks normalized completion notices forwarded to the
// browser endpoint.
const StatusSuccess = "success"

// Envelope is the transport-agnostic message exchanged with both endpoint
// roles. Fields are optional; which ones are present depends on the command.
type Envelope struct {
	Command   string         `json:"command,omitempty"`
	Action    string         `json:"action,omitempty"`
	Status    string         `json:"status,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	MessageID string         `json:"message_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// CommandKind is the closed set of commands the router dispatches on.
type CommandKind int

const (
	CommandUnknown CommandKind = iota
	CommandStartPreviewRendering
	CommandGenerateVideo
	CommandStartBroadcast
	CommandStopBroadcast
	CommandGetTemplateControls
	CommandTemplateControls
)

// Command verbs accepted on the wire.
const (
	VerbStartPreviewRendering = "start_preview_rendering"
	VerbGenerateVideo         = "generate_video"
	VerbStartBroadcast        = "start_broadcast"
	VerbStopBroadcast         = "stop_broadcast"
	VerbGetTemplateControls   = "get_template_controls"
	VerbTemplateControls      = "template_controls"
	VerbRescanTemplate        = "rescan_template"
)

func kindOf(verb string) CommandKind {
	switch verb {
	case VerbStartPreviewRendering:
		return CommandStartPreviewRendering
	case VerbGenerateVideo:
		return CommandGenerateVideo
	case VerbStartBroadcast:
		return CommandStartBroadcast
	case VerbStopBroadcast:
		return CommandStopBroadcast
	case VerbGetTemplateControls:
		return CommandGetTemplateControls
	case VerbTemplateControls:
		return CommandTemplateControls
	}
	return CommandUnknown
}

// Kind resolves the envelope's command kind. The primary verb is checked
// first; the secondary action verb is only consulted when the command does
// not resolve.
func (e *Envelope) Kind() CommandKind {
	if k := kindOf(e.Command); k != CommandUnknown {
		return k
	}
	return kindOf(e.Action)
}

// Outbound message type discriminators.
const (
	TypeFrame             = "frame"
	TypeBroadcastComplete = "broadcast_complete"
	TypeCommandCompleted  = "command_completed"
)

// Ack is the outbound acknowledgment sent back to a requesting endpoint.
type Ack struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Ack status values.
const (
	AckOK    = "OK"
	AckError = "ERROR"
)

// FrameMessage carries one encoded frame to the browser endpoint.
type FrameMessage struct {
	Type       string `json:"type"`
	Data       string `json:"data"`
	FrameIndex int    `json:"frameIndex"`
}

// BroadcastComplete signals that a broadcast run sent every available frame.
type BroadcastComplete struct {
	Type string `json:"type"`
}

// CommandCompleted notifies the browser that a worker-side command finished.
type CommandCompleted struct {
	Type      string `json:"type"`
	Command   string `json:"command"`
	MessageID string `json:"message_id,omitempty"`
	Status    string `json:"status"`
}

// TemplateControls is the correlated reply forwarded to the requesting
// browser endpoint. Controllables is opaque to the relay.
type TemplateControls struct {
	Command       string `json:"command"`
	Controllables any    `json:"controllables"`
}
