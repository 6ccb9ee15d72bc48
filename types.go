package xshell

import "github.com/xshell-terminal/xshell-go/internal/protocol"

// Wire-level types are defined in internal/protocol and aliased here so the
// public surface is a single package.
type (
	// ServerInfo describes server capabilities, captured once at connect.
	ServerInfo = protocol.ServerInfo
	// SpawnOptions configures a new terminal session.
	SpawnOptions = protocol.SpawnOptions
	// JoinOptions configures attachment to an existing shared session.
	JoinOptions = protocol.JoinOptions
	// SessionFilter narrows ListSessions; fields combine as a conjunction.
	SessionFilter = protocol.SessionFilter
	// SharedSessionInfo describes a server-tracked multiplexed session.
	SharedSessionInfo = protocol.SharedSessionInfo
	// ContainerInfo describes a Docker container usable for exec sessions.
	ContainerInfo = protocol.ContainerInfo
	// SessionType classifies how a session was created.
	SessionType = protocol.SessionType
)

const (
	SessionTypeLocal        = protocol.SessionTypeLocal
	SessionTypeDockerExec   = protocol.SessionTypeDockerExec
	SessionTypeDockerAttach = protocol.SessionTypeDockerAttach
)

// ConnState is the transport lifecycle state of a Client.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the client's local view of the attached session. At most one
// session is attached per client instance.
type Session struct {
	ID          string
	Type        SessionType
	Shell       string
	Cwd         string
	Cols        int
	Rows        int
	Container   string
	Label       string
	Owner       string
	Accepting   bool
	ClientCount int
}
