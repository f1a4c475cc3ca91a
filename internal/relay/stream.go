package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/insightdelivered/bank-sms-notifier/internal/clock"
	"github.com/insightdelivered/bank-sms-notifier/internal/models"
	"github.com/insightdelivered/bank-sms-notifier/internal/parser"
)

const (
	DefaultStreamURL     = "wss://stream.pushbullet.com/websocket/"
	DefaultAPIURL        = "https://api.pushbullet.com/v2"
	MaxReconnectAttempts = 5
	BaseReconnectDelay   = 5 * time.Second
	HistoryLimit         = 5
	HistoryWindow        = 300 * time.Second

	duplicateWindow = 10 * time.Minute
	dialTimeout     = 15 * time.Second
)

var (
	// ErrMissingAPIKey is returned by NewStreamClient without a token.
	ErrMissingAPIKey = errors.New("pushbullet api key is required")
	// ErrRetriesExhausted is reported once reconnection gives up.
	ErrRetriesExhausted = errors.New("max reconnection attempts reached")
)

// State is the connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Closing
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return "disconnected"
	}
}

// EventKind tells the owner what happened.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventError
	EventReceived
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	default:
		return "received"
	}
}

// Event is delivered to the owner's handler on the client's loop goroutine.
type Event struct {
	Kind        EventKind
	Transaction models.Transaction
	Err         error
}

// Handler receives events. It must not call back into the StreamClient
// synchronously.
type Handler func(Event)

// Conn is the read side of a websocket connection.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens stream connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct {
	d *websocket.Dialer
}

// WebsocketDialer dials with gorilla/websocket.
func WebsocketDialer() Dialer {
	return wsDialer{d: &websocket.Dialer{HandshakeTimeout: dialTimeout}}
}

func (w wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := w.d.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return conn, nil
}

// Status is a snapshot for display.
type Status struct {
	Connected         bool   `json:"connected"`
	State             string `json:"state"`
	ReconnectAttempts int    `json:"reconnectAttempts"`
	Exhausted         bool   `json:"exhausted"`
	ReconnectPending  bool   `json:"reconnectPending"`
	APIKey            string `json:"apiKey"`
}

// TestResult is the outcome of TestConnection.
type TestResult struct {
	Success bool   `json:"success"`
	User    *User  `json:"user,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Option customises a StreamClient.
type Option func(*StreamClient)

func WithDialer(d Dialer) Option             { return func(c *StreamClient) { c.dialer = d } }
func WithAPI(api API) Option                 { return func(c *StreamClient) { c.api = api } }
func WithScheduler(s clock.Scheduler) Option { return func(c *StreamClient) { c.sched = s } }
func WithLogger(l zerolog.Logger) Option     { return func(c *StreamClient) { c.log = l } }
func WithStreamURL(u string) Option          { return func(c *StreamClient) { c.streamURL = u } }

// WithHistoryLimiter overrides the limiter guarding history fetches.
func WithHistoryLimiter(l *rate.Limiter) Option {
	return func(c *StreamClient) { c.limiter = l }
}

// StreamClient keeps one subscription to the Pushbullet event stream,
// turning bank SMS into Transactions. All state lives on one loop goroutine.
type StreamClient struct {
	apiKey    string
	streamURL string
	handler   Handler
	dialer    Dialer
	api       API
	sched     clock.Scheduler
	limiter   *rate.Limiter
	seen      *gocache.Cache
	log       zerolog.Logger

	cmds    chan func()
	stopped chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc

	// Loop-owned state.
	state     State
	attempts  int
	exhausted bool
	gen       int
	conn      Conn
	timer     clock.Timer
	exit      bool
}

// NewStreamClient validates the credential and starts the client's loop.
// It does not connect.
func NewStreamClient(apiKey string, handler Handler, opts ...Option) (*StreamClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if handler == nil {
		handler = func(Event) {}
	}

	c := &StreamClient{
		apiKey:    apiKey,
		streamURL: DefaultStreamURL,
		handler:   handler,
		dialer:    WebsocketDialer(),
		sched:     clock.Real(),
		limiter:   rate.NewLimiter(rate.Every(2*time.Second), 3),
		seen:      gocache.New(duplicateWindow, 2*duplicateWindow),
		log:       zerolog.Nop(),
		cmds:      make(chan func()),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.api == nil {
		c.api = NewClient(DefaultAPIURL, apiKey)
	}
	c.log = c.log.With().Str("component", "relay").Logger()
	c.ctx, c.cancel = context.WithCancel(context.Background())

	go c.run()
	return c, nil
}

func (c *StreamClient) run() {
	for fn := range c.cmds {
		fn()
		if c.exit {
			close(c.stopped)
			return
		}
	}
}

// do runs fn on the loop and waits for it.
func (c *StreamClient) do(fn func()) bool {
	done := make(chan struct{})
	select {
	case c.cmds <- func() { fn(); close(done) }:
		<-done
		return true
	case <-c.stopped:
		return false
	}
}

// Connect starts streaming. It is a no-op while connecting or open. After
// retries were exhausted it starts over with a fresh attempt counter.
func (c *StreamClient) Connect() {
	c.do(func() {
		if c.state != Disconnected {
			c.log.Debug().Str("state", c.state.String()).Msg("connect ignored")
			return
		}
		if c.exhausted {
			c.exhausted = false
			c.attempts = 0
		}
		c.cancelTimer()
		c.dial()
	})
}

// Disconnect closes the stream and cancels any pending reconnect. Calling
// it again is a no-op.
func (c *StreamClient) Disconnect() {
	c.do(c.disconnect)
}

// Close disconnects and stops the client. The client cannot be reused.
func (c *StreamClient) Close() {
	c.do(func() {
		c.disconnect()
		c.cancel()
		c.exit = true
	})
}

// Status reports the connection state with the token masked.
func (c *StreamClient) Status() Status {
	st := Status{State: Disconnected.String(), APIKey: MaskKey(c.apiKey)}
	c.do(func() {
		st.Connected = c.state == Open
		st.State = c.state.String()
		st.ReconnectAttempts = c.attempts
		st.Exhausted = c.exhausted
		st.ReconnectPending = c.timer != nil
	})
	return st
}

// TestConnection checks the credential against the identity endpoint. It
// does not touch the stream.
func (c *StreamClient) TestConnection(ctx context.Context) TestResult {
	return ProbeIdentity(ctx, c.api)
}

// ProbeIdentity calls Me and wraps the outcome.
func ProbeIdentity(ctx context.Context, api API) TestResult {
	u, err := api.Me(ctx)
	if err != nil {
		return TestResult{Error: err.Error()}
	}
	return TestResult{Success: true, User: u}
}

// post queues fn on the loop without waiting. It is used by goroutines the
// client owns and by timers. It reports false once the loop has stopped.
func (c *StreamClient) post(fn func()) bool {
	select {
	case c.cmds <- fn:
		return true
	case <-c.stopped:
		return false
	}
}

func (c *StreamClient) dial() {
	c.state = Connecting
	c.gen++
	gen := c.gen
	url := c.streamURL + c.apiKey

	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, dialTimeout)
		defer cancel()
		conn, err := c.dialer.Dial(ctx, url)
		if !c.post(func() { c.dialed(gen, conn, err) }) && conn != nil {
			conn.Close()
		}
	}()
}

func (c *StreamClient) dialed(gen int, conn Conn, err error) {
	if gen != c.gen || c.state != Connecting {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.state = Disconnected
		c.log.Warn().Err(err).Int("attempt", c.attempts).Msg("stream connection failed")
		c.emit(Event{Kind: EventError, Err: fmt.Errorf("connect: %w", err)})
		c.scheduleReconnect()
		return
	}

	c.conn = conn
	c.state = Open
	c.attempts = 0
	c.cancelTimer()
	c.log.Info().Msg("connected to pushbullet")
	c.emit(Event{Kind: EventConnected})

	go c.read(gen, conn)
}

func (c *StreamClient) read(gen int, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.post(func() { c.closed(gen, err) })
			return
		}
		c.post(func() { c.frame(gen, data) })
	}
}

func (c *StreamClient) closed(gen int, err error) {
	if gen != c.gen || c.state != Open {
		return
	}
	c.conn.Close()
	c.conn = nil
	c.state = Disconnected
	c.log.Warn().Err(err).Msg("stream closed")
	c.emit(Event{Kind: EventDisconnected, Err: err})
	c.scheduleReconnect()
}

func (c *StreamClient) disconnect() {
	c.cancelTimer()
	c.gen++
	wasOpen := c.state == Open
	if c.conn != nil {
		c.state = Closing
		if err := c.conn.Close(); err != nil {
			c.log.Debug().Err(err).Msg("closing stream")
		}
		c.conn = nil
	}
	c.state = Disconnected
	if wasOpen {
		c.log.Info().Msg("pushbullet listener disconnected")
		c.emit(Event{Kind: EventDisconnected})
	}
}

// ReconnectDelay is the wait before the given 1-based attempt.
func ReconnectDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return BaseReconnectDelay * time.Duration(1<<(attempt-1))
}

func (c *StreamClient) scheduleReconnect() {
	if c.attempts >= MaxReconnectAttempts {
		c.exhausted = true
		c.log.Error().Int("attempts", c.attempts).Msg("giving up on pushbullet stream")
		c.emit(Event{Kind: EventError, Err: ErrRetriesExhausted})
		return
	}
	c.attempts++
	delay := ReconnectDelay(c.attempts)
	c.log.Info().Int("attempt", c.attempts).Int("max", MaxReconnectAttempts).Dur("delay", delay).Msg("scheduling reconnect")

	gen := c.gen
	c.timer = c.sched.AfterFunc(delay, func() {
		c.post(func() {
			if gen != c.gen || c.state != Disconnected {
				return
			}
			c.timer = nil
			c.dial()
		})
	})
}

func (c *StreamClient) cancelTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *StreamClient) emit(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("event", ev.Kind.String()).Msg("event handler panicked")
		}
	}()
	c.handler(ev)
}

func (c *StreamClient) frame(gen int, data []byte) {
	if gen != c.gen {
		return
	}
	var msg StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Debug().Err(err).Msg("ignoring malformed frame")
		return
	}

	switch msg.Type {
	case MessagePush:
		if msg.Push != nil {
			c.handlePush(*msg.Push)
		}
	case MessageTickle:
		c.fetchHistory()
	}
}

func (c *StreamClient) handlePush(p Push) {
	for _, m := range Messages(p, c.sched.Now()) {
		c.process(m)
	}
}

func (c *StreamClient) fetchHistory() {
	if !c.limiter.Allow() {
		c.log.Debug().Msg("history fetch rate limited")
		return
	}
	since := c.sched.Now().Add(-HistoryWindow)
	gen := c.gen

	go func() {
		pushes, err := c.api.History(c.ctx, HistoryLimit, since)
		c.post(func() {
			if err != nil {
				c.log.Warn().Err(err).Msg("fetching recent pushes")
				return
			}
			if gen != c.gen {
				return
			}
			for _, p := range pushes {
				c.handlePush(p)
			}
		})
	}()
}

// process parses one candidate SMS. Unrelated traffic is dropped quietly.
func (c *StreamClient) process(m Message) {
	if strings.TrimSpace(m.Body) == "" {
		return
	}
	key := m.key()
	if _, dup := c.seen.Get(key); dup {
		return
	}
	c.seen.SetDefault(key, struct{}{})

	tx := parser.Parse(m.Body, m.Sender)
	if !tx.IsValid || tx.Bank == models.BankUnknown {
		c.log.Debug().Str("sender", m.Sender).Str("reason", tx.Error).Msg("dropping message")
		return
	}

	tx = tx.WithMetadata(m.Sender, m.PhoneNumber, m.Timestamp)
	c.log.Info().Str("bank", string(tx.Bank)).Int64("amount", tx.Amount).Str("type", string(tx.Type)).Msg("bank sms received")
	c.emit(Event{Kind: EventReceived, Transaction: tx})
}
