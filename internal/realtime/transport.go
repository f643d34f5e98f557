package realtime

// Message is a frame delivered to a subscription.
type Message struct {
	Destination string
	Body        []byte
}

// Handlers are the transport lifecycle callbacks. OnConnect fires after
// every successful connect, including each reconnect.
type Handlers struct {
	OnConnect    func()
	OnDisconnect func(err error)
	OnError      func(err error)
}

// Subscription is a live topic subscription.
type Subscription interface {
	Unsubscribe() error
}

// Transport is a message broker connection that reconnects on its own
// after unexpected closure.
type Transport interface {
	Activate(h Handlers) error
	Deactivate() error
	Active() bool
	Subscribe(destination string, handler func(Message)) (Subscription, error)
}

// Dialer builds a transport authenticated with token. The transport is
// not connected until Activate.
type Dialer interface {
	Dial(token string) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(token string) (Transport, error)

func (f DialerFunc) Dial(token string) (Transport, error) { return f(token) }
