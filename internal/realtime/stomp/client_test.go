package stomp

import (
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/upiwallet/internal/realtime"
	"golang.org/x/net/websocket"
)

// broker is a single-topic STOMP server good enough for the client.
type broker struct {
	t *testing.T

	mu          sync.Mutex
	connects    []*frame.Frame
	subscribes  []*frame.Frame
	unsubs      []string
	conns       []*conn
	rejectToken string
}

func (b *broker) serve(ws *websocket.Conn) {
	cn := newConn(ws)
	for {
		f, err := cn.receive()
		if err != nil {
			return
		}
		if !b.handle(cn, f) {
			_ = cn.close()
			return
		}
	}
}

func (b *broker) handle(cn *conn, f *frame.Frame) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch f.Command {
	case frame.CONNECT:
		b.connects = append(b.connects, f)
		if auth := f.Header.Get("Authorization"); b.rejectToken != "" && auth == "Bearer "+b.rejectToken {
			_ = cn.send(frame.New(frame.ERROR, frame.Message, "Invalid token"))
			return false
		}
		b.conns = append(b.conns, cn)
		_ = cn.send(frame.New(frame.CONNECTED, frame.Version, "1.2"))
	case frame.SUBSCRIBE:
		b.subscribes = append(b.subscribes, f)
	case frame.UNSUBSCRIBE:
		b.unsubs = append(b.unsubs, f.Header.Get(frame.Id))
	case frame.DISCONNECT:
		return false
	}
	return true
}

// publish sends body to the last subscription on the newest connection.
func (b *broker) publish(body string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cn := b.conns[len(b.conns)-1]
	sub := b.subscribes[len(b.subscribes)-1]

	f := frame.New(frame.MESSAGE,
		frame.Destination, sub.Header.Get(frame.Destination),
		frame.Subscription, sub.Header.Get(frame.Id),
		frame.MessageId, "m-1",
		frame.ContentLength, strconv.Itoa(len(body)),
	)
	f.Body = []byte(body)
	_ = cn.send(f)
}

// kick drops the newest connection.
func (b *broker) kick() {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.conns[len(b.conns)-1].close()
}

func (b *broker) counts() (connects, subscribes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.connects), len(b.subscribes)
}

func startBroker(t *testing.T) (*broker, string) {
	t.Helper()

	b := &broker{t: t}
	srv := httptest.NewServer(websocket.Server{Handler: b.serve})
	t.Cleanup(srv.Close)

	return b, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/websocket"
}

func newTestClient(t *testing.T, url, token string) *Client {
	t.Helper()

	l := zerolog.Nop()
	c, err := New(Config{
		URL:            url,
		Token:          token,
		ReconnectDelay: 20 * time.Millisecond,
		ConnectTimeout: 2 * time.Second,
		Logger:         &l,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Deactivate() })
	return c
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(Config{URL: "http://localhost/ws"})
	require.Error(t, err)
}

func TestClient_ConnectSubscribeReceive(t *testing.T) {
	b, url := startBroker(t)
	c := newTestClient(t, url, "tok-1")

	connected := make(chan struct{}, 4)
	require.NoError(t, c.Activate(realtime.Handlers{OnConnect: func() { connected <- struct{}{} }}))
	require.ErrorIs(t, c.Activate(realtime.Handlers{}), ErrAlreadyActive)

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("never connected")
	}

	b.mu.Lock()
	auth := b.connects[0].Header.Get("Authorization")
	version := b.connects[0].Header.Get(frame.AcceptVersion)
	b.mu.Unlock()
	assert.Equal(t, "Bearer tok-1", auth)
	assert.Equal(t, "1.2", version)

	got := make(chan realtime.Message, 1)
	sub, err := c.Subscribe("/topic/wallet/7", func(m realtime.Message) { got <- m })
	require.NoError(t, err)

	require.Eventually(t, func() bool { _, n := b.counts(); return n == 1 }, 5*time.Second, 10*time.Millisecond)
	b.publish("1500.25")

	select {
	case m := <-got:
		assert.Equal(t, "/topic/wallet/7", m.Destination)
		assert.Equal(t, "1500.25", string(m.Body))
	case <-time.After(5 * time.Second):
		t.Fatal("no message")
	}

	require.NoError(t, sub.Unsubscribe())
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.unsubs) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Deactivate())
	assert.False(t, c.Active())
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("connect loop did not stop")
	}
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	b, url := startBroker(t)
	c := newTestClient(t, url, "tok-1")

	connected := make(chan struct{}, 4)
	dropped := make(chan error, 4)
	require.NoError(t, c.Activate(realtime.Handlers{
		OnConnect:    func() { connected <- struct{}{} },
		OnDisconnect: func(err error) { dropped <- err },
	}))

	<-connected
	old, err := c.Subscribe("/topic/wallet/7", func(realtime.Message) {})
	require.NoError(t, err)

	b.kick()

	select {
	case <-dropped:
	case <-time.After(5 * time.Second):
		t.Fatal("drop not reported")
	}
	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("never reconnected")
	}

	connects, _ := b.counts()
	assert.Equal(t, 2, connects)

	// The old handle belongs to the dead connection; dropping it sends nothing.
	require.NoError(t, old.Unsubscribe())
	b.mu.Lock()
	assert.Empty(t, b.unsubs)
	b.mu.Unlock()
}

func TestClient_ErrorFrameReported(t *testing.T) {
	b, url := startBroker(t)
	b.mu.Lock()
	b.rejectToken = "expired"
	b.mu.Unlock()
	c := newTestClient(t, url, "expired")

	errs := make(chan error, 4)
	require.NoError(t, c.Activate(realtime.Handlers{OnError: func(err error) {
		select {
		case errs <- err:
		default:
		}
	}}))

	select {
	case err := <-errs:
		var serverErr *ServerError
		require.ErrorAs(t, err, &serverErr)
		assert.Equal(t, "Invalid token", serverErr.Message)
	case <-time.After(5 * time.Second):
		t.Fatal("error not reported")
	}
}

func TestClient_SubscribeBeforeConnect(t *testing.T) {
	_, url := startBroker(t)
	c := newTestClient(t, url, "tok-1")

	_, err := c.Subscribe("/topic/wallet/7", func(realtime.Message) {})
	require.ErrorIs(t, err, ErrNotConnected)
}
