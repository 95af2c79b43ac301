//go:build linux

package ouroboros

import (
	"syscall"
	"unsafe"
)

// Listener owns the listening socket and keeps exactly one accept
// operation outstanding at all times: each completion both hands off a
// new Session and re-arms the next accept.
type Listener struct {
	engine     *Engine
	router     *Router
	fd         FD
	handle     uint64
	bufferSize int

	addr    syscall.RawSockaddrAny
	addrLen uint32

	onAccept func(*Session)
}

// ListenerOption configures a Listener at construction.
type ListenerOption func(*Listener)

// WithOnAccept registers a callback invoked with every newly accepted
// Session, after Start has been called on it. Useful for connection
// bookkeeping (e.g. a live-connection counter) in tests and in the server
// wrapper.
func WithOnAccept(fn func(*Session)) ListenerOption {
	return func(l *Listener) { l.onAccept = fn }
}

// NewListener creates, configures, binds, and listens on a TCP socket
// bound to addr (host:port resolved by the caller into a 4-byte IPv4
// address and port — see Config/Server for the string-address path).
func NewListener(engine *Engine, router *Router, ip [4]byte, port uint16, backlog int, bufferSize int, opts ...ListenerOption) (*Listener, error) {
	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM|syscall.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, &Error{Kind: "socket", Op: "socket", Err: err}
	}

	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		syscall.Close(fd)
		return nil, &Error{Kind: "setsockopt", Op: "setsockopt(SO_REUSEADDR)", Err: err}
	}
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEPORT, 1); err != nil {
		syscall.Close(fd)
		return nil, &Error{Kind: "setsockopt", Op: "setsockopt(SO_REUSEPORT)", Err: err}
	}

	sa := &syscall.SockaddrInet4{Port: int(port), Addr: ip}
	if err := syscall.Bind(fd, sa); err != nil {
		syscall.Close(fd)
		return nil, &Error{Kind: "bind", Op: "bind", Err: err}
	}

	if backlog <= 0 {
		backlog = syscall.SOMAXCONN
	}
	if err := syscall.Listen(fd, backlog); err != nil {
		syscall.Close(fd)
		return nil, &Error{Kind: "listen", Op: "listen", Err: err}
	}

	l := &Listener{
		engine:     engine,
		router:     router,
		fd:         NewFD(fd),
		bufferSize: bufferSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.handle = engine.Register(l)
	return l, nil
}

// Start posts the listener's first accept operation.
func (l *Listener) Start() error {
	return l.submitAccept()
}

func (l *Listener) submitAccept() error {
	l.addrLen = uint32(unsafe.Sizeof(l.addr))
	return l.engine.PrepAccept(l.fd.Int(), unsafe.Pointer(&l.addr), &l.addrLen, l.handle)
}

// OnComplete implements CompletionTarget. A non-negative result is an
// accepted connection's fd; the listener hands it to a new Session and
// immediately re-arms the next accept, matching the spec's fire-and-forget
// session ownership model.
func (l *Listener) OnComplete(res int32, flags uint32) {
	if res >= 0 {
		sess := NewSession(l.engine, NewFD(int(res)), l.router, l.bufferSize)
		sess.Start()
		if l.onAccept != nil {
			l.onAccept(sess)
		}
	}
	l.submitAccept()
}

// Close closes the listening socket and unregisters the listener.
func (l *Listener) Close() error {
	l.engine.Unregister(l.handle)
	return l.fd.Close()
}
