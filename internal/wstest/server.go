// Package wstest provides a scriptable in-process terminal server for
// exercising the client against real WebSocket traffic.
package wstest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xshell-terminal/xshell-go/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Responder produces the frames the server sends back for one incoming
// frame. Returning nil sends nothing, which is how request timeouts are
// provoked in tests.
type Responder func(env *protocol.Envelope) []*protocol.Envelope

// Server is a fake x-shell endpoint backed by httptest. Each test
// installs responders per message type; unhandled types get the default
// behavior (spawn and join succeed, lists come back empty).
type Server struct {
	ts   *httptest.Server
	info protocol.ServerInfo

	mu         sync.Mutex
	conn       *websocket.Conn
	writeMu    sync.Mutex
	responders map[protocol.MessageType]Responder
	received   []protocol.Envelope
	conns      int
	connCh     chan struct{}
}

// NewServer starts a server and returns it ready to accept connections.
func NewServer() *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		info: protocol.ServerInfo{
			DockerEnabled: false,
			AllowedShells: []string{"bash", "sh"},
			DefaultShell:  "bash",
		},
		responders: make(map[protocol.MessageType]Responder),
		connCh:     make(chan struct{}, 16),
	}

	r := gin.New()
	r.GET("/ws", s.handleWS)
	s.ts = httptest.NewServer(r)
	return s
}

// URL returns the ws:// endpoint clients should dial.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws"
}

// Close shuts the server down.
func (s *Server) Close() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	s.ts.Close()
}

// Respond installs a responder for one message type.
func (s *Server) Respond(t protocol.MessageType, fn Responder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responders[t] = fn
}

// Silence drops all frames of the given type without replying.
func (s *Server) Silence(t protocol.MessageType) {
	s.Respond(t, func(*protocol.Envelope) []*protocol.Envelope { return nil })
}

// Push sends an unsolicited frame to the connected client.
func (s *Server) Push(env *protocol.Envelope) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return websocket.ErrCloseSent
	}
	return s.write(conn, env)
}

// PushData sends a terminal output frame for the given session.
func (s *Server) PushData(sessionID, data string) error {
	return s.Push(&protocol.Envelope{
		Type:      protocol.MessageTypeData,
		SessionID: sessionID,
		Data:      data,
	})
}

// PushExit sends a session exit frame.
func (s *Server) PushExit(sessionID string, code int) error {
	return s.Push(&protocol.Envelope{
		Type:      protocol.MessageTypeExit,
		SessionID: sessionID,
		ExitCode:  &code,
	})
}

// DropConnection closes the active socket without a close handshake, as a
// crashed server would.
func (s *Server) DropConnection() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Received returns a copy of every frame the server has read so far.
func (s *Server) Received() []protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Envelope, len(s.received))
	copy(out, s.received)
	return out
}

// ReceivedOfType filters Received by message type.
func (s *Server) ReceivedOfType(t protocol.MessageType) []protocol.Envelope {
	var out []protocol.Envelope
	for _, env := range s.Received() {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

// Connections returns how many sockets have been accepted, which is how
// reconnect tests count redials.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// WaitConnection blocks until the server accepts another socket.
func (s *Server) WaitConnection(timeout time.Duration) bool {
	select {
	case <-s.connCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conn = conn
	s.conns++
	s.mu.Unlock()
	select {
	case s.connCh <- struct{}{}:
	default:
	}

	if err := s.write(conn, &protocol.Envelope{
		Type: protocol.MessageTypeServerInfo,
		Info: &s.info,
	}); err != nil {
		conn.Close()
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}

		s.mu.Lock()
		s.received = append(s.received, env)
		fn := s.responders[env.Type]
		s.mu.Unlock()

		if fn == nil {
			fn = s.defaultResponder(env.Type)
		}
		if fn == nil {
			continue
		}
		for _, reply := range fn(&env) {
			if reply == nil {
				continue
			}
			// Event frames mixed into a responder's output (live data after
			// a join reply, say) must not inherit the correlation id.
			if reply.RequestID == "" && isResponseType(reply.Type) {
				reply.RequestID = env.RequestID
			}
			if err := s.write(conn, reply); err != nil {
				return
			}
		}
	}

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) write(conn *websocket.Conn, env *protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func isResponseType(t protocol.MessageType) bool {
	switch t {
	case protocol.MessageTypeSpawned, protocol.MessageTypeJoined,
		protocol.MessageTypeError, protocol.MessageTypeServerInfo,
		protocol.MessageTypeSessionList, protocol.MessageTypeContainerList:
		return true
	}
	return false
}

func (s *Server) defaultResponder(t protocol.MessageType) Responder {
	switch t {
	case protocol.MessageTypeSpawn:
		return func(env *protocol.Envelope) []*protocol.Envelope {
			opts, _ := env.SpawnOpts()
			shell := "bash"
			if opts != nil && opts.Shell != "" {
				shell = opts.Shell
			}
			return []*protocol.Envelope{{
				Type:      protocol.MessageTypeSpawned,
				SessionID: uuid.New().String(),
				Shell:     shell,
			}}
		}
	case protocol.MessageTypeJoin:
		return func(env *protocol.Envelope) []*protocol.Envelope {
			opts, _ := env.JoinOpts()
			id := uuid.New().String()
			if opts != nil && opts.SessionID != "" {
				id = opts.SessionID
			}
			return []*protocol.Envelope{{
				Type:      protocol.MessageTypeSpawned,
				SessionID: id,
				Session: &protocol.SharedSessionInfo{
					SessionID: id,
					Shell:     "bash",
				},
			}}
		}
	case protocol.MessageTypeListSessions:
		return func(env *protocol.Envelope) []*protocol.Envelope {
			return []*protocol.Envelope{{
				Type:     protocol.MessageTypeSessionList,
				Sessions: []protocol.SharedSessionInfo{},
			}}
		}
	case protocol.MessageTypeListContainers:
		return func(env *protocol.Envelope) []*protocol.Envelope {
			return []*protocol.Envelope{{
				Type:       protocol.MessageTypeContainerList,
				Containers: []protocol.ContainerInfo{},
			}}
		}
	default:
		return nil
	}
}
