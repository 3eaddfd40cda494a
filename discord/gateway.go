package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultGatewayURL is the v10 JSON gateway.
	DefaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

	writeWait             = 10 * time.Second
	helloWait             = 20 * time.Second
	maxMsgSize            = 4 << 20 // 4MB, READY on large bots is big
	defaultReconnectDelay = 5 * time.Second
)

// ErrFatalClose is returned by Run when Discord closes the connection with a
// code that reconnecting cannot fix, such as a bad token or disallowed
// intents.
var ErrFatalClose = errors.New("discord: gateway closed permanently")

var (
	errReconnect      = errors.New("gateway requested reconnect")
	errInvalidSession = errors.New("gateway invalidated session")
)

// MessageHandler receives MESSAGE_CREATE events. Each call runs on its own
// goroutine.
type MessageHandler func(ctx context.Context, msg Message)

// Gateway keeps a bot connected to the Discord gateway and forwards created
// messages to a handler.
type Gateway struct {
	url            string
	token          string
	intents        int
	handler        MessageHandler
	dialer         *websocket.Dialer
	reconnectDelay time.Duration

	mu        sync.Mutex
	connected bool
	user      User
	sessionID string
	resumeURL string

	writeMu sync.Mutex
	seq     atomic.Int64
	acked   atomic.Bool

	handlers sync.WaitGroup
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithGatewayURL overrides the gateway address (for testing).
func WithGatewayURL(url string) GatewayOption {
	return func(g *Gateway) {
		g.url = url
	}
}

// WithIntents replaces DefaultIntents.
func WithIntents(intents int) GatewayOption {
	return func(g *Gateway) {
		g.intents = intents
	}
}

// WithDialer sets the websocket dialer.
func WithDialer(d *websocket.Dialer) GatewayOption {
	return func(g *Gateway) {
		g.dialer = d
	}
}

// WithReconnectDelay sets the pause between a dropped connection and the
// next attempt.
func WithReconnectDelay(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.reconnectDelay = d
	}
}

func NewGateway(token string, handler MessageHandler, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		url:            DefaultGatewayURL,
		token:          token,
		intents:        DefaultIntents,
		handler:        handler,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: defaultReconnectDelay,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsConnected reports whether the gateway has a live, identified session.
func (g *Gateway) IsConnected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

// UserID returns the bot's own user id once READY has been received.
func (g *Gateway) UserID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.user.ID
}

// Run connects and processes events until ctx is done, reconnecting (and
// resuming where possible) after every disconnect. It returns nil on
// cancellation and an ErrFatalClose error when Discord refuses the session.
func (g *Gateway) Run(ctx context.Context) error {
	for {
		err := g.connectAndRun(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrFatalClose) {
			return err
		}
		slog.Warn("discord: gateway disconnected", "err", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(g.reconnectDelay):
			slog.Info("discord: reconnecting")
		}
	}
}

func (g *Gateway) connectAndRun(ctx context.Context) error {
	wsURL, resuming := g.dialTarget()

	conn, _, err := g.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer g.drop(conn)
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetReadLimit(maxMsgSize)

	// Hello
	conn.SetReadDeadline(time.Now().Add(helloWait))
	var hello Payload
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	var hd helloData
	if err := json.Unmarshal(hello.D, &hd); err != nil || hd.HeartbeatInterval <= 0 {
		return fmt.Errorf("invalid hello payload: %s", hello.D)
	}
	conn.SetReadDeadline(time.Time{})

	hbCtx, hbCancel := context.WithCancel(ctx)
	defer hbCancel()
	g.acked.Store(true)
	go g.heartbeatLoop(hbCtx, conn, time.Duration(hd.HeartbeatInterval)*time.Millisecond)

	if resuming {
		err = g.resume(conn)
	} else {
		err = g.identify(conn)
	}
	if err != nil {
		return err
	}

	for {
		var p Payload
		if err := conn.ReadJSON(&p); err != nil {
			return g.readError(err)
		}
		if p.S != nil {
			g.seq.Store(*p.S)
		}

		switch p.Op {
		case opDispatch:
			g.dispatch(ctx, p)
		case opHeartbeat:
			if err := g.sendHeartbeat(conn); err != nil {
				return fmt.Errorf("heartbeat: %w", err)
			}
		case opHeartbeatAck:
			g.acked.Store(true)
		case opReconnect:
			return errReconnect
		case opInvalidSession:
			var resumable bool
			json.Unmarshal(p.D, &resumable)
			if !resumable {
				g.resetSession()
			}
			return errInvalidSession
		}
	}
}

// dialTarget picks the resume address when a session can be resumed.
func (g *Gateway) dialTarget() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sessionID == "" {
		return g.url, false
	}
	if g.resumeURL == "" {
		return g.url, true
	}

	u, err := url.Parse(g.resumeURL)
	if err != nil {
		return g.url, true
	}
	if base, err := url.Parse(g.url); err == nil {
		u.RawQuery = base.RawQuery
	}
	return u.String(), true
}

func (g *Gateway) drop(conn *websocket.Conn) {
	g.mu.Lock()
	g.connected = false
	g.mu.Unlock()
	conn.Close()
}

func (g *Gateway) resetSession() {
	g.mu.Lock()
	g.sessionID = ""
	g.resumeURL = ""
	g.mu.Unlock()
	g.seq.Store(0)
}

func (g *Gateway) readError(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 4004, 4010, 4011, 4012, 4013, 4014:
			return fmt.Errorf("%w: %d %s", ErrFatalClose, ce.Code, ce.Text)
		case 4007, 4009:
			g.resetSession()
		}
	}
	return fmt.Errorf("read: %w", err)
}

func (g *Gateway) write(conn *websocket.Conn, p Payload) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(p)
}

func (g *Gateway) identify(conn *websocket.Conn) error {
	d, err := json.Marshal(identifyData{
		Token:   g.token,
		Intents: g.intents,
		Properties: identifyProperties{
			OS:      runtime.GOOS,
			Browser: "starinfo",
			Device:  "starinfo",
		},
	})
	if err != nil {
		return fmt.Errorf("marshal identify: %w", err)
	}
	if err := g.write(conn, Payload{Op: opIdentify, D: d}); err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	return nil
}

func (g *Gateway) resume(conn *websocket.Conn) error {
	g.mu.Lock()
	sessionID := g.sessionID
	g.mu.Unlock()

	d, err := json.Marshal(resumeData{Token: g.token, SessionID: sessionID, Seq: g.seq.Load()})
	if err != nil {
		return fmt.Errorf("marshal resume: %w", err)
	}
	if err := g.write(conn, Payload{Op: opResume, D: d}); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	slog.Debug("discord: resuming session", "session", sessionID)
	return nil
}

// heartbeatLoop beats at the interval Discord asked for. A beat that was not
// acknowledged before the next one means the connection is a zombie; closing
// it makes the read loop fail and Run reconnect.
func (g *Gateway) heartbeatLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !g.acked.Swap(false) {
				slog.Warn("discord: heartbeat not acknowledged, dropping connection")
				conn.Close()
				return
			}
			if err := g.sendHeartbeat(conn); err != nil {
				slog.Debug("discord: heartbeat failed", "err", err)
				return
			}
		}
	}
}

func (g *Gateway) sendHeartbeat(conn *websocket.Conn) error {
	d := json.RawMessage("null")
	if seq := g.seq.Load(); seq > 0 {
		d = json.RawMessage(fmt.Sprintf("%d", seq))
	}
	return g.write(conn, Payload{Op: opHeartbeat, D: d})
}

func (g *Gateway) dispatch(ctx context.Context, p Payload) {
	switch p.T {
	case "READY":
		var ready readyData
		if err := json.Unmarshal(p.D, &ready); err != nil {
			slog.Warn("discord: invalid READY payload", "err", err)
			return
		}
		g.mu.Lock()
		g.connected = true
		g.user = ready.User
		g.sessionID = ready.SessionID
		g.resumeURL = ready.ResumeGatewayURL
		g.mu.Unlock()
		slog.Info("discord: connected", "user", ready.User.Username, "id", ready.User.ID)

	case "RESUMED":
		g.mu.Lock()
		g.connected = true
		g.mu.Unlock()
		slog.Info("discord: session resumed")

	case "MESSAGE_CREATE":
		var msg Message
		if err := json.Unmarshal(p.D, &msg); err != nil {
			slog.Warn("discord: invalid MESSAGE_CREATE payload", "err", err)
			return
		}
		if g.handler != nil {
			g.handlers.Add(1)
			go func() {
				defer g.handlers.Done()
				g.handler(ctx, msg)
			}()
		}
	}
}

// WaitHandlers blocks until every MESSAGE_CREATE handler started by Run has
// returned, or timeout elapses. It reports whether all of them finished.
// Call it after Run returns.
func (g *Gateway) WaitHandlers(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		g.handlers.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
