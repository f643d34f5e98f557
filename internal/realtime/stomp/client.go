package stomp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/upiwallet/internal/realtime"
	"golang.org/x/net/websocket"
)

// DefaultReconnectDelay is the fixed wait between reconnect attempts.
const DefaultReconnectDelay = 5 * time.Second

var (
	ErrAlreadyActive = errors.New("stomp client already active")
	ErrNotConnected  = errors.New("stomp client not connected")
)

// ServerError is an ERROR frame from the broker.
type ServerError struct {
	Message string
	Detail  string
}

func (e *ServerError) Error() string {
	if e.Detail == "" {
		return "stomp error: " + e.Message
	}
	return fmt.Sprintf("stomp error: %s: %s", e.Message, e.Detail)
}

// Config describes a broker endpoint.
type Config struct {
	// URL is the raw WebSocket endpoint, for a Spring SockJS endpoint
	// mounted at /ws that is ws://host/ws/websocket.
	URL            string
	Origin         string
	Token          string
	ReconnectDelay time.Duration
	ConnectTimeout time.Duration
	Logger         *zerolog.Logger
}

// Client is a realtime.Transport speaking STOMP over WebSocket. Once
// activated it keeps reconnecting until deactivated.
type Client struct {
	cfg    Config
	host   string
	logger zerolog.Logger

	mu       sync.Mutex
	active   bool
	cancel   context.CancelFunc
	done     chan struct{}
	handlers realtime.Handlers
	conn     *conn
	subs     map[string]*subscription
	nextID   int
}

var _ realtime.Transport = (*Client)(nil)

// New creates an inactive client.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid stream url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid stream url %q: scheme must be ws or wss", cfg.URL)
	}

	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.Origin == "" {
		scheme := "http"
		if u.Scheme == "wss" {
			scheme = "https"
		}
		cfg.Origin = scheme + "://" + u.Host
	}

	l := log.Logger
	if cfg.Logger != nil {
		l = *cfg.Logger
	}

	return &Client{
		cfg:    cfg,
		host:   u.Hostname(),
		logger: l.With().Str("component", "stomp").Logger(),
		subs:   make(map[string]*subscription),
	}, nil
}

// NewDialer returns a realtime.Dialer building clients from cfg with the
// token filled in.
func NewDialer(cfg Config) realtime.Dialer {
	return realtime.DialerFunc(func(token string) (realtime.Transport, error) {
		c := cfg
		c.Token = token
		return New(c)
	})
}

// Activate starts connecting in the background.
func (c *Client) Activate(h realtime.Handlers) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return ErrAlreadyActive
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.active = true
	c.cancel = cancel
	c.done = make(chan struct{})
	c.handlers = h

	go c.run(ctx, c.done)

	return nil
}

// Deactivate disconnects and stops reconnecting.
func (c *Client) Deactivate() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	c.active = false
	c.cancel()

	var err error
	if c.conn != nil {
		err = c.conn.send(frame.New(frame.DISCONNECT))
		_ = c.conn.close()
		c.conn = nil
	}
	clear(c.subs)
	c.mu.Unlock()

	return err
}

// Active reports whether the client is activated, connected or not.
func (c *Client) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Done is closed once the connect loop has exited after Deactivate.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Subscribe subscribes on the current connection. The subscription does
// not survive a reconnect.
func (c *Client) Subscribe(destination string, handler func(realtime.Message)) (realtime.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, ErrNotConnected
	}

	id := "sub-" + strconv.Itoa(c.nextID)
	c.nextID++

	err := c.conn.send(frame.New(frame.SUBSCRIBE,
		frame.Id, id,
		frame.Destination, destination,
		frame.Ack, "auto",
	))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", destination, err)
	}

	s := &subscription{client: c, id: id, conn: c.conn, handler: handler}
	c.subs[id] = s
	return s, nil
}

type subscription struct {
	client  *Client
	id      string
	conn    *conn
	handler func(realtime.Message)
}

// Unsubscribe drops the handler, and tells the broker if the connection
// the subscription was made on is still the live one.
func (s *subscription) Unsubscribe() error {
	c := s.client
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subs[s.id]; !ok {
		return nil
	}
	delete(c.subs, s.id)

	if c.conn == nil || c.conn != s.conn {
		return nil
	}
	return c.conn.send(frame.New(frame.UNSUBSCRIBE, frame.Id, s.id))
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	operation := func() (struct{}, error) {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(ctx.Err())
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.cfg.ReconnectDelay)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn().Err(err).Dur("retry_in", next).Msg("stomp connection lost")
		}),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error().Err(err).Msg("stomp connect loop stopped")
	}
}

// session runs one connection from dial to close. It always returns an
// error, since a healthy session only ends when the connection does.
func (c *Client) session(ctx context.Context) error {
	cn, err := c.dial(ctx)
	if err != nil {
		c.emitError(err)
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = cn.close() })
	defer stop()

	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		_ = cn.close()
		return backoff.Permanent(context.Canceled)
	}
	c.conn = cn
	clear(c.subs)
	h := c.handlers
	c.mu.Unlock()

	c.logger.Debug().Str("url", c.cfg.URL).Msg("stomp connected")
	if h.OnConnect != nil {
		h.OnConnect()
	}

	err = c.readLoop(cn)

	c.mu.Lock()
	if c.conn == cn {
		c.conn = nil
		clear(c.subs)
	}
	c.mu.Unlock()
	_ = cn.close()

	if ctx.Err() == nil && h.OnDisconnect != nil {
		h.OnDisconnect(err)
	}
	return err
}

func (c *Client) dial(ctx context.Context) (*conn, error) {
	wsCfg, err := websocket.NewConfig(c.cfg.URL, c.cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket config: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	ws, err := wsCfg.DialContext(dialCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.cfg.URL, err)
	}
	cn := newConn(ws)

	connect := frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.2",
		frame.Host, c.host,
		frame.HeartBeat, "0,0",
	)
	if c.cfg.Token != "" {
		connect.Header.Add("Authorization", "Bearer "+c.cfg.Token)
	}
	if err := cn.send(connect); err != nil {
		_ = cn.close()
		return nil, fmt.Errorf("failed to send CONNECT: %w", err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(c.cfg.ConnectTimeout))
	defer func() { _ = ws.SetReadDeadline(time.Time{}) }()

	for {
		f, err := cn.receive()
		if err != nil {
			_ = cn.close()
			return nil, fmt.Errorf("failed waiting for CONNECTED: %w", err)
		}
		switch f.Command {
		case frame.CONNECTED:
			return cn, nil
		case frame.ERROR:
			_ = cn.close()
			return nil, serverError(f)
		}
	}
}

func (c *Client) readLoop(cn *conn) error {
	for {
		f, err := cn.receive()
		if err != nil {
			return err
		}

		switch f.Command {
		case frame.MESSAGE:
			c.dispatch(f)
		case frame.ERROR:
			// The broker closes the connection after an ERROR frame.
			c.emitError(serverError(f))
		case frame.RECEIPT:
		default:
			c.logger.Debug().Str("command", f.Command).Msg("ignoring stomp frame")
		}
	}
}

func (c *Client) dispatch(f *frame.Frame) {
	id := f.Header.Get(frame.Subscription)
	destination := f.Header.Get(frame.Destination)

	c.mu.Lock()
	s, ok := c.subs[id]
	c.mu.Unlock()

	if !ok {
		c.logger.Debug().Str("subscription", id).Msg("message for unknown subscription")
		return
	}
	s.handler(realtime.Message{Destination: destination, Body: f.Body})
}

func (c *Client) emitError(err error) {
	c.mu.Lock()
	h := c.handlers
	c.mu.Unlock()
	if h.OnError != nil {
		h.OnError(err)
	}
}

func serverError(f *frame.Frame) error {
	return &ServerError{Message: f.Header.Get(frame.Message), Detail: string(f.Body)}
}
