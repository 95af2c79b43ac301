//go:build linux

package ouroboros

// sessionState tracks which operation a Session is currently waiting on.
type sessionState uint8

const (
	stateReading sessionState = iota
	stateWriting
	stateClosed
)

// Session drives one accepted connection through recv -> parse -> dispatch
// -> send, and back to recv if the connection is kept alive. It implements
// CompletionTarget: the engine notifies it once per completion, identified
// by the handle it was registered under.
//
// pendingOps counts operations submitted but not yet completed. close
// releases the socket at once (an operation still outstanding on it then
// completes with an error), but the session is only unregistered from the
// engine once pendingOps reaches zero, so every outstanding completion
// still finds its target.
type Session struct {
	engine *Engine
	router *Router
	fd     FD
	handle uint64

	buf   []byte
	state sessionState

	pendingOps int
	keepAlive  bool
	closing    bool
}

// NewSession wraps an accepted connection fd for servicing by engine,
// dispatching matched requests through router. bufferSize bounds the
// single recv buffer reused across this session's requests.
func NewSession(engine *Engine, fd FD, router *Router, bufferSize int) *Session {
	s := &Session{
		engine: engine,
		router: router,
		fd:     fd,
		buf:    make([]byte, bufferSize),
	}
	s.handle = engine.Register(s)
	return s
}

// Start posts the session's first recv.
func (s *Session) Start() {
	s.submitRecv()
}

func (s *Session) submitRecv() {
	s.state = stateReading
	s.pendingOps++
	if err := s.engine.PrepRecv(s.fd.Int(), s.buf, s.handle); err != nil {
		s.pendingOps--
		s.close()
	}
}

func (s *Session) submitSend(resp []byte) {
	s.state = stateWriting
	s.pendingOps++
	if err := s.engine.PrepSend(s.fd.Int(), resp, s.handle); err != nil {
		s.pendingOps--
		s.close()
	}
}

// OnComplete implements CompletionTarget. It is invoked once per
// completion this session submitted, via the engine's drain loop.
func (s *Session) OnComplete(res int32, flags uint32) {
	s.pendingOps--

	if res <= 0 {
		s.close()
		return
	}

	switch s.state {
	case stateReading:
		s.handleRecv(res)
	case stateWriting:
		s.handleSendComplete()
	}
}

func (s *Session) handleRecv(n int32) {
	req, _, err := ParseRequest(s.buf[:n])

	w := NewResponseWriter()
	keepAlive := false

	switch {
	case err == nil && req.Method != MethodGET && req.Method != MethodPOST:
		// Only GET and POST are served; every other method is rejected
		// without a router lookup and the connection does not persist.
		w.WriteStatus(501)
		w.SetHeader("Content-Type", "text/plain")
		w.Write([]byte("Not Implemented"))
	case err == nil:
		keepAlive = req.KeepAlive()
		s.dispatch(req, w)
	case err == ErrIncomplete, err == ErrMalformedRequest:
		w.WriteStatus(400)
		w.SetHeader("Content-Type", "text/plain")
		w.Write([]byte("400 Bad Request"))
	default:
		w.WriteStatus(500)
		w.SetHeader("Content-Type", "text/plain")
		w.Write([]byte("500 Internal Server Error"))
	}

	s.keepAlive = keepAlive
	s.submitSend(w.Serialize(keepAlive))
}

// dispatch looks up and invokes the matched handler, recovering a panic
// into a 500 response so one misbehaving handler can't take down the
// event loop.
func (s *Session) dispatch(req *Request, w *ResponseWriter) {
	handler, ok := s.router.Lookup(req.Method, req.Path)
	if !ok {
		NotFound(w)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			// Discard anything the handler wrote before panicking and
			// replace it with a clean 500.
			*w = *NewResponseWriter()
			w.WriteStatus(500)
			w.SetHeader("Content-Type", "text/plain")
			w.Write([]byte("Internal Server Error"))
		}
	}()
	handler(req, w)
}

func (s *Session) handleSendComplete() {
	if s.keepAlive && !s.closing {
		s.submitRecv()
		return
	}
	s.close()
}

// close releases the socket and, once no operations remain outstanding,
// unregisters the session from the engine. Idempotent.
func (s *Session) close() {
	s.closing = true
	s.state = stateClosed
	s.fd.Close()
	s.teardownIfIdle()
}

func (s *Session) teardownIfIdle() {
	if s.pendingOps == 0 {
		s.engine.Unregister(s.handle)
	}
}
