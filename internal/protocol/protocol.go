// Package protocol defines the JSON wire contract spoken with x-shell
// terminal servers. Every frame is a single JSON text message carrying a
// "type" field; frames belonging to a request/response exchange additionally
// carry a "requestId" echoed back by the server.
package protocol

import "encoding/json"

// MessageType identifies the kind of a wire frame.
type MessageType string

const (
	// Client -> Server message types
	MessageTypeSpawn          MessageType = "spawn"
	MessageTypeJoin           MessageType = "join"
	MessageTypeLeave          MessageType = "leave"
	MessageTypeKill           MessageType = "kill"
	MessageTypeData           MessageType = "data"
	MessageTypeResize         MessageType = "resize"
	MessageTypeClose          MessageType = "close"
	MessageTypeListContainers MessageType = "listContainers"
	MessageTypeListSessions   MessageType = "listSessions"

	// Server -> Client message types
	MessageTypeServerInfo    MessageType = "serverInfo"
	MessageTypeSpawned       MessageType = "spawned"
	MessageTypeExit          MessageType = "exit"
	MessageTypeError         MessageType = "error"
	MessageTypeContainerList MessageType = "containerList"
	MessageTypeSessionList   MessageType = "sessionList"
	MessageTypeJoined        MessageType = "joined"
	MessageTypeClientJoined  MessageType = "clientJoined"
	MessageTypeClientLeft    MessageType = "clientLeft"
	MessageTypeSessionClosed MessageType = "sessionClosed"
)

// SessionType classifies how a server-side session was created.
type SessionType string

const (
	SessionTypeLocal        SessionType = "local"
	SessionTypeDockerExec   SessionType = "docker-exec"
	SessionTypeDockerAttach SessionType = "docker-attach"
)

// Envelope is the single frame shape exchanged with the server. Fields are
// populated per message type; everything else stays zero and is omitted from
// the encoded frame.
type Envelope struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"requestId,omitempty"`

	// Request payloads. Options carries SpawnOptions for spawn frames and
	// JoinOptions for join frames; use EncodeOptions / the typed decoders.
	Options json.RawMessage `json:"options,omitempty"`
	Filter  *SessionFilter  `json:"filter,omitempty"`

	// Session-scoped fields
	SessionID string `json:"sessionId,omitempty"`
	Data      string `json:"data,omitempty"`
	Cols      int    `json:"cols,omitempty"`
	Rows      int    `json:"rows,omitempty"`

	// spawned / joined response fields
	Shell     string             `json:"shell,omitempty"`
	Cwd       string             `json:"cwd,omitempty"`
	Container string             `json:"container,omitempty"`
	Session   *SharedSessionInfo `json:"session,omitempty"`
	History   string             `json:"history,omitempty"`

	// exit
	ExitCode *int `json:"exitCode,omitempty"`
	Code     *int `json:"code,omitempty"`

	// error
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`

	// serverInfo
	Info *ServerInfo `json:"info,omitempty"`

	// list responses
	Containers []ContainerInfo     `json:"containers,omitempty"`
	Sessions   []SharedSessionInfo `json:"sessions,omitempty"`

	// clientJoined / clientLeft
	ClientCount *int `json:"clientCount,omitempty"`

	// sessionClosed
	Reason string `json:"reason,omitempty"`
}

// EncodeOptions marshals a typed options payload (SpawnOptions or
// JoinOptions) into the form carried by Envelope.Options.
func EncodeOptions(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}

// SpawnOpts decodes the options payload of a spawn frame.
func (e *Envelope) SpawnOpts() (*SpawnOptions, error) {
	opts := &SpawnOptions{}
	if len(e.Options) == 0 {
		return opts, nil
	}
	if err := json.Unmarshal(e.Options, opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// JoinOpts decodes the options payload of a join frame.
func (e *Envelope) JoinOpts() (*JoinOptions, error) {
	opts := &JoinOptions{}
	if len(e.Options) == 0 {
		return opts, nil
	}
	if err := json.Unmarshal(e.Options, opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// ErrorMessage returns the server-supplied error text, whichever field the
// server used to carry it.
func (e *Envelope) ErrorMessage() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

// ExitStatus returns the exit code of an exit frame. Servers have shipped
// both "exitCode" and "code"; either is accepted.
func (e *Envelope) ExitStatus() int {
	if e.ExitCode != nil {
		return *e.ExitCode
	}
	if e.Code != nil {
		return *e.Code
	}
	return 0
}

// SpawnOptions configures a new terminal session.
type SpawnOptions struct {
	Shell string            `json:"shell,omitempty"`
	Cwd   string            `json:"cwd,omitempty"`
	Env   map[string]string `json:"env,omitempty"`
	Cols  int               `json:"cols"`
	Rows  int               `json:"rows"`

	// Docker options
	Container      string `json:"container,omitempty"`
	ContainerShell string `json:"containerShell,omitempty"`
	ContainerUser  string `json:"containerUser,omitempty"`
	ContainerCwd   string `json:"containerCwd,omitempty"`
	AttachMode     bool   `json:"attachMode,omitempty"`

	// Multiplexing options
	Label         string `json:"label,omitempty"`
	AllowJoin     *bool  `json:"allowJoin,omitempty"`
	EnableHistory *bool  `json:"enableHistory,omitempty"`
}

// JoinOptions configures attachment to an existing shared session.
type JoinOptions struct {
	SessionID      string `json:"sessionId"`
	RequestHistory bool   `json:"requestHistory,omitempty"`
	HistoryLimit   int    `json:"historyLimit,omitempty"`
}

// SessionFilter narrows a listSessions request. Fields are combined by the
// server as a conjunction.
type SessionFilter struct {
	Type      SessionType `json:"type,omitempty"`
	Container string      `json:"container,omitempty"`
	Accepting *bool       `json:"accepting,omitempty"`
}

// ServerInfo describes server capabilities, sent once immediately after
// connect.
type ServerInfo struct {
	DockerEnabled         bool     `json:"dockerEnabled"`
	AllowedShells         []string `json:"allowedShells"`
	DefaultShell          string   `json:"defaultShell"`
	DefaultContainerShell string   `json:"defaultContainerShell"`
}

// SessionInfo is the local view of a session this client created.
type SessionInfo struct {
	SessionID string `json:"sessionId"`
	Shell     string `json:"shell"`
	Cwd       string `json:"cwd"`
	Cols      int    `json:"cols"`
	Rows      int    `json:"rows"`
	Container string `json:"container,omitempty"`
}

// SharedSessionInfo describes a server-tracked multiplexed session.
type SharedSessionInfo struct {
	SessionID   string      `json:"sessionId"`
	Type        SessionType `json:"type"`
	Shell       string      `json:"shell"`
	Cwd         string      `json:"cwd"`
	Cols        int         `json:"cols"`
	Rows        int         `json:"rows"`
	ClientCount int         `json:"clientCount"`
	Owner       string      `json:"owner"`
	Label       string      `json:"label,omitempty"`
	Accepting   bool        `json:"accepting"`
	Container   string      `json:"container,omitempty"`
}

// ContainerInfo describes a Docker container usable for exec sessions.
type ContainerInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Image  string `json:"image"`
	Status string `json:"status"`
	State  string `json:"state"`
}
