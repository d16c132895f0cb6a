package derailed

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/derailed-org/derailed-go/event"
)

// DefaultGatewayURL is the production gateway endpoint.
const DefaultGatewayURL = "wss://derailed.one/gateway"

// MessageReader is the interface that wraps ReadMessage.
//
// ReadMessage is defined at
// https://godoc.org/github.com/gorilla/websocket#Conn.ReadMessage
//
// At a high level, it reads messages and returns:
//   - the type of message read
//   - the bytes that were read
//   - any errors encountered during reading the message
type MessageReader interface {
	ReadMessage() (messageType int, p []byte, err error)
}

// JSONWriter is the interface that wraps WriteJSON.
//
// WriteJSON is defined at
// https://godoc.org/github.com/gorilla/websocket#Conn.WriteJSON
//
// At a high level, it writes a structure to the underlying websocket and
// returns any error that was encountered during the write operation.
type JSONWriter interface {
	WriteJSON(v interface{}) error
}

// GatewayConn is a combination of MessageReader and JSONWriter. It is used
// to provide an interface to objects that can read from and write to a
// websocket connection.
type GatewayConn interface {
	MessageReader
	JSONWriter
}

// State describes where a Gateway is in its lifecycle.
type State int32

const (
	// StateDisconnected is the initial state, before Open is called.
	StateDisconnected State = iota

	// StateConnecting covers the dial.
	StateConnecting

	// StateConnected means the receive loop is running.
	StateConnected

	// StateClosed is the terminal state after a deliberate Close.
	StateClosed

	// StateFailed is the terminal state after a fatal session error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Gateway owns one persistent duplex connection to the Derailed gateway. It
// runs a background receive loop that interprets inbound frames, updates the
// session state, and forwards named events to Dispatcher.
//
// A Gateway is single-use: once it reaches StateClosed or StateFailed, a new
// Gateway must be created to connect again. Reconnection and backoff are
// deliberately left to the caller.
type Gateway struct {
	// The gateway endpoint to dial.
	URL string

	// Dispatcher receives every event forwarded by the session. It is
	// created by NewGateway but may be replaced before Open is called.
	Dispatcher *event.Dispatcher

	// An optional setting to provide a non-default TLS configuration to
	// use when connecting to the websocket.
	TLSClientConfig *tls.Config

	// Logger receives debug and error output. Defaults to a stderr logger
	// when the DEBUG environment variable is set, disabled otherwise.
	Logger zerolog.Logger

	// PingInterval is how often a keep-alive ping is sent.
	PingInterval time.Duration

	// PongTimeout is how long after a ping the connection is allowed to
	// live without a pong before it is failed. Substantially shorter than
	// PingInterval.
	PongTimeout time.Duration

	token string

	// This field holds a struct that can read messages from and write
	// JSON objects to a websocket. In practice, this is the raw websocket
	// connection that results from a successful dial.
	conn    GatewayConn
	connMux sync.Mutex

	state atomic.Int32

	// done is closed when the receive loop exits; closing signals the
	// heartbeat and receive loop that Close was called.
	done    chan struct{}
	closing chan struct{}
	pong    chan struct{}

	// openMux serializes Open against Close so a close can never observe a
	// half-established connection.
	openMux   sync.Mutex
	opened    atomic.Bool
	closeOnce sync.Once

	// Session state below is mutated only by the receive loop. stateMux
	// guards reads from other goroutines.
	stateMux   sync.Mutex
	err        error
	sessionID  string
	hasSession bool
	user       User
	settings   Settings
	ready      bool
}

// NewGateway creates a Gateway for the production endpoint using the given
// authentication token.
func NewGateway(token string) *Gateway {
	logger := defaultLogger()

	dispatcher := event.New()
	dispatcher.SetLogger(logger)

	return &Gateway{
		URL:          DefaultGatewayURL,
		Dispatcher:   dispatcher,
		Logger:       logger,
		PingInterval: 45 * time.Second,
		PongTimeout:  4 * time.Second,
		token:        token,
		done:         make(chan struct{}),
		closing:      make(chan struct{}),
		pong:         make(chan struct{}, 1),
	}
}

// SetConn changes the underlying websocket connection to the specified
// connection. This is done using a mutex to wait until existing write
// operations have completed.
func (g *Gateway) SetConn(conn GatewayConn) {
	g.connMux.Lock()
	g.conn = conn
	g.connMux.Unlock()
}

// Conn returns the underlying websocket connection.
func (g *Gateway) Conn() GatewayConn {
	g.connMux.Lock()
	defer g.connMux.Unlock()
	return g.conn
}

// State returns the current lifecycle state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// Err returns the fatal session error, if the gateway is in StateFailed.
func (g *Gateway) Err() error {
	g.stateMux.Lock()
	defer g.stateMux.Unlock()
	return g.err
}

// Done returns a channel that is closed when the receive loop exits, either
// through Close or a fatal error.
func (g *Gateway) Done() <-chan struct{} {
	return g.done
}

// SessionID returns the session identifier assigned by the server, once an
// acknowledgment frame has arrived.
func (g *Gateway) SessionID() (string, bool) {
	g.stateMux.Lock()
	defer g.stateMux.Unlock()
	return g.sessionID, g.hasSession
}

// CurrentUser returns the authenticated user, once the ready event has
// arrived.
func (g *Gateway) CurrentUser() (User, bool) {
	g.stateMux.Lock()
	defer g.stateMux.Unlock()
	return g.user, g.ready
}

// CurrentSettings returns the authenticated user's settings, once the ready
// event has arrived.
func (g *Gateway) CurrentSettings() (Settings, bool) {
	g.stateMux.Lock()
	defer g.stateMux.Unlock()
	return g.settings, g.ready
}

// Open dials the gateway and starts the receive loop and heartbeat as
// background goroutines. It returns once the loop has been scheduled, not
// once the session is ready; register a listener for "on_ready" on the
// Dispatcher to observe readiness.
func (g *Gateway) Open(ctx context.Context) error {
	g.openMux.Lock()
	defer g.openMux.Unlock()

	if !g.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return errors.Errorf("open: gateway is %s, expected disconnected", g.State())
	}

	dialer := &websocket.Dialer{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: g.TLSClientConfig,
	}

	conn, _, err := dialer.DialContext(ctx, g.URL, nil)
	if err != nil {
		g.state.Store(int32(StateFailed))
		g.setErr(err)
		close(g.done)
		return errors.Wrap(err, "gateway dial failed")
	}

	conn.SetPongHandler(func(string) error {
		select {
		case g.pong <- struct{}{}:
		default:
		}
		return nil
	})

	g.SetConn(conn)
	g.opened.Store(true)
	g.state.Store(int32(StateConnected))

	logger := g.Logger.With().Str("connection_id", uuid.NewString()).Logger()
	logger.Debug().Str("url", g.URL).Msg("connected to gateway")

	go g.heartbeat(conn, logger)
	go g.receive(conn, logger)

	return nil
}

// heartbeat sends a ping control frame every PingInterval and fails the
// connection if no pong arrives within PongTimeout. Control frames may be
// written concurrently with WriteJSON, so no connection mutex is needed
// here.
func (g *Gateway) heartbeat(conn *websocket.Conn, logger zerolog.Logger) {
	ticker := time.NewTicker(g.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.closing:
			return
		case <-ticker.C:
		}

		deadline := time.Now().Add(g.PongTimeout)
		if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			logger.Debug().Err(err).Msg("ping write failed")
			_ = conn.Close()
			return
		}

		select {
		case <-g.pong:
		case <-time.After(g.PongTimeout):
			logger.Error().Msg("pong not received in time, closing connection")
			_ = conn.Close()
			return
		case <-g.closing:
			return
		}
	}
}

// receive consumes inbound frames one at a time, in arrival order, for the
// lifetime of the connection.
func (g *Gateway) receive(conn *websocket.Conn, logger zerolog.Logger) {
	defer close(g.done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-g.closing:
				// Deliberate close; the read error is expected.
				g.state.Store(int32(StateClosed))
			default:
				g.fail(errors.Wrap(err, "gateway read failed"))
				_ = conn.Close()
			}
			return
		}

		logger.Debug().Str("frame", string(data)).Msg("received frame")

		if err := g.handleFrame(data); err != nil {
			g.fail(err)
			_ = conn.Close()
			return
		}
	}
}

// inboundFrame is the envelope of every frame the gateway pushes. The opcode
// selects which of the remaining fields are meaningful.
type inboundFrame struct {
	Op       *int            `json:"op"`
	T        string          `json:"t"`
	D        json.RawMessage `json:"d"`
	User     json.RawMessage `json:"user"`
	Settings json.RawMessage `json:"settings"`
}

// Gateway opcodes.
const (
	opDispatch     = 0
	opIdentify     = 1
	opError        = 2
	opSessionAck   = 3
	opGuildMembers = 4
)

// readyEvent is the dispatch tag of the session-ready event.
const readyEvent = "READY"

func (g *Gateway) handleFrame(data []byte) error {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.Wrap(err, "frame unmarshal failed")
	}

	if f.Op == nil {
		return errors.New("frame is missing an opcode")
	}

	switch *f.Op {
	case opDispatch:
		return g.handleDispatch(&f)

	case opError:
		var detail string
		if err := json.Unmarshal(f.D, &detail); err != nil {
			return errors.Wrap(err, "error frame unmarshal failed")
		}
		return &GatewayError{Detail: detail}

	case opSessionAck:
		ack := struct {
			SessionID string `json:"session_id"`
		}{}
		if err := json.Unmarshal(f.D, &ack); err != nil {
			return errors.Wrap(err, "session ack unmarshal failed")
		}

		g.stateMux.Lock()
		g.sessionID = ack.SessionID
		g.hasSession = true
		g.stateMux.Unlock()

	default:
		g.Logger.Debug().Int("op", *f.Op).Msg("unrecognized opcode")
	}

	return nil
}

func (g *Gateway) handleDispatch(f *inboundFrame) error {
	if f.T != readyEvent {
		g.Dispatcher.Dispatch(strings.ToLower(f.T), f.D)
		return nil
	}

	var user User
	if err := json.Unmarshal(f.User, &user); err != nil {
		return errors.Wrap(err, "ready user unmarshal failed")
	}

	var settings Settings
	if err := json.Unmarshal(f.Settings, &settings); err != nil {
		return errors.Wrap(err, "ready settings unmarshal failed")
	}

	// Session state is populated exactly once per connection, before the
	// event reaches any listener.
	g.stateMux.Lock()
	if !g.ready {
		g.user = user
		g.settings = settings
		g.ready = true
	}
	g.stateMux.Unlock()

	g.Dispatcher.Dispatch("ready", user, settings)
	return nil
}

// fail records err, transitions to StateFailed, and notifies listeners
// registered for "on_gateway_error".
func (g *Gateway) fail(err error) {
	g.setErr(err)
	g.state.Store(int32(StateFailed))
	g.Logger.Error().Err(err).Msg("gateway session failed")
	g.Dispatcher.Dispatch("gateway_error", err)
}

func (g *Gateway) setErr(err error) {
	g.stateMux.Lock()
	g.err = err
	g.stateMux.Unlock()
}

// identifyData is the payload of an outbound identify frame.
type identifyData struct {
	Token      string             `json:"token"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS                      string `json:"os"`
	Browser                 string `json:"browser"`
	Device                  string `json:"device"`
	LibraryGithubRepository string `json:"library_github_repository"`
	ClientVersion           string `json:"client_version"`
}

type guildMembersRequest struct {
	GuildID string `json:"guild_id"`
	Limit   int    `json:"limit"`
}

type outboundFrame struct {
	Op int         `json:"op"`
	D  interface{} `json:"d"`
}

// Identify authenticates the session by sending the token and static client
// metadata. It must be called after Open and before the session is usable;
// the server answers with a session acknowledgment frame.
func (g *Gateway) Identify() error {
	return g.send(outboundFrame{
		Op: opIdentify,
		D: identifyData{
			Token: g.token,
			Properties: identifyProperties{
				OS:                      runtime.GOOS,
				Browser:                 libraryName,
				Device:                  libraryName,
				LibraryGithubRepository: repositoryURL,
				ClientVersion:           Version,
			},
		},
	})
}

// RequestGuildMembers asks the server to push member information for a
// guild. A limit of 0 requests the server default.
func (g *Gateway) RequestGuildMembers(guildID string, limit int) error {
	return g.send(outboundFrame{
		Op: opGuildMembers,
		D:  guildMembersRequest{GuildID: guildID, Limit: limit},
	})
}

// send writes a frame to the websocket connection.
func (g *Gateway) send(f outboundFrame) error {
	g.connMux.Lock()
	defer g.connMux.Unlock()

	// Verify a connection has been created.
	if g.conn == nil {
		return errors.New("send: connection not set")
	}

	if err := g.conn.WriteJSON(f); err != nil {
		return errors.Wrap(err, "json write failed")
	}

	return nil
}

// Close shuts the session down deterministically: the heartbeat stops, the
// connection is closed, and Close returns once the receive loop has exited.
// A closed gateway ends in StateClosed unless it had already failed. Close
// is safe to call more than once and from any goroutine.
func (g *Gateway) Close() {
	g.closeOnce.Do(func() {
		g.openMux.Lock()

		close(g.closing)

		g.connMux.Lock()
		conn := g.conn
		g.connMux.Unlock()

		if closer, ok := conn.(interface{ Close() error }); ok {
			_ = closer.Close()
		}

		opened := g.opened.Load()
		if !opened {
			g.state.CompareAndSwap(int32(StateDisconnected), int32(StateClosed))
		}

		g.openMux.Unlock()

		if opened {
			<-g.done
		}
	})
}
