//go:build linux

package ouroboros

import (
	"strings"
	"syscall"
	"testing"
)

func TestSessionRequestResponseRoundTrip(t *testing.T) {
	skipIfNoIOURing(t)

	e, err := New(64)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer e.Close()

	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair error = %v", err)
	}
	testFd, sessionFd := fds[0], fds[1]
	defer syscall.Close(testFd)

	router := NewRouter()
	router.HandleFunc("GET", "/ping", func(req *Request, w *ResponseWriter) {
		w.SetHeader("Content-Type", "text/plain")
		w.Write([]byte("pong"))
	})

	sess := NewSession(e, NewFD(sessionFd), router, 4096)
	sess.Start()

	request := "GET /ping HTTP/1.1\r\nHost: test\r\nConnection: close\r\n\r\n"
	if _, err := syscall.Write(testFd, []byte(request)); err != nil {
		t.Fatalf("write request error = %v", err)
	}

	// Drive the recv completion, which parses the request and submits the
	// response send.
	if _, err := e.SubmitAndWait(1); err != nil {
		t.Fatalf("SubmitAndWait (recv) error = %v", err)
	}
	e.DrainCompletions()

	// Drive the send completion. Connection: close means the session
	// closes afterward rather than posting another recv.
	if _, err := e.SubmitAndWait(1); err != nil {
		t.Fatalf("SubmitAndWait (send) error = %v", err)
	}
	e.DrainCompletions()

	buf := make([]byte, 4096)
	n, err := syscall.Read(testFd, buf)
	if err != nil {
		t.Fatalf("read response error = %v", err)
	}
	resp := string(buf[:n])

	if !strings.HasPrefix(resp, "HTTP/1.1 200 OK\r\n") {
		t.Errorf("response status line wrong: %q", resp[:strings.Index(resp, "\r\n")+2])
	}
	if !strings.Contains(resp, "Connection: close\r\n") {
		t.Errorf("expected Connection: close in response, got %q", resp)
	}
	if !strings.HasSuffix(resp, "pong") {
		t.Errorf("expected body 'pong', got %q", resp)
	}
}

func TestSessionNotFoundRoute(t *testing.T) {
	skipIfNoIOURing(t)

	e, err := New(64)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer e.Close()

	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair error = %v", err)
	}
	testFd, sessionFd := fds[0], fds[1]
	defer syscall.Close(testFd)

	router := NewRouter()
	sess := NewSession(e, NewFD(sessionFd), router, 4096)
	sess.Start()

	request := "GET /missing HTTP/1.1\r\nHost: test\r\nConnection: close\r\n\r\n"
	if _, err := syscall.Write(testFd, []byte(request)); err != nil {
		t.Fatalf("write request error = %v", err)
	}

	e.SubmitAndWait(1)
	e.DrainCompletions()
	e.SubmitAndWait(1)
	e.DrainCompletions()

	buf := make([]byte, 4096)
	n, err := syscall.Read(testFd, buf)
	if err != nil {
		t.Fatalf("read response error = %v", err)
	}
	resp := string(buf[:n])

	if !strings.HasPrefix(resp, "HTTP/1.1 404 Not Found\r\n") {
		t.Errorf("expected 404, got %q", resp[:strings.Index(resp, "\r\n")+2])
	}
	if !strings.HasSuffix(resp, "Not Found") {
		t.Errorf("expected body 'Not Found', got %q", resp)
	}
}

func TestSessionMethodNotImplemented(t *testing.T) {
	skipIfNoIOURing(t)

	e, err := New(64)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer e.Close()

	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair error = %v", err)
	}
	testFd, sessionFd := fds[0], fds[1]
	defer syscall.Close(testFd)

	router := NewRouter()
	// Registering a DELETE route doesn't matter: only GET/POST are ever
	// dispatched, so this must still come back 501.
	router.HandleFunc("DELETE", "/", func(req *Request, w *ResponseWriter) {
		w.Write([]byte("should not run"))
	})
	sess := NewSession(e, NewFD(sessionFd), router, 4096)
	sess.Start()

	request := "DELETE / HTTP/1.1\r\nHost: test\r\n\r\n"
	if _, err := syscall.Write(testFd, []byte(request)); err != nil {
		t.Fatalf("write request error = %v", err)
	}

	e.SubmitAndWait(1)
	e.DrainCompletions()
	e.SubmitAndWait(1)
	e.DrainCompletions()

	buf := make([]byte, 4096)
	n, err := syscall.Read(testFd, buf)
	if err != nil {
		t.Fatalf("read response error = %v", err)
	}
	resp := string(buf[:n])

	if !strings.HasPrefix(resp, "HTTP/1.1 501 Not Implemented\r\n") {
		t.Errorf("expected 501, got %q", resp[:strings.Index(resp, "\r\n")+2])
	}
	if !strings.Contains(resp, "Connection: close\r\n") {
		t.Errorf("expected Connection: close for unsupported method, got %q", resp)
	}
}

func TestSessionHandlerPanicRecovers(t *testing.T) {
	skipIfNoIOURing(t)

	e, err := New(64)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer e.Close()

	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair error = %v", err)
	}
	testFd, sessionFd := fds[0], fds[1]
	defer syscall.Close(testFd)

	router := NewRouter()
	router.HandleFunc("GET", "/boom", func(req *Request, w *ResponseWriter) {
		w.Write([]byte("partial"))
		panic("handler exploded")
	})
	sess := NewSession(e, NewFD(sessionFd), router, 4096)
	sess.Start()

	request := "GET /boom HTTP/1.1\r\nHost: test\r\nConnection: close\r\n\r\n"
	if _, err := syscall.Write(testFd, []byte(request)); err != nil {
		t.Fatalf("write request error = %v", err)
	}

	e.SubmitAndWait(1)
	e.DrainCompletions()
	e.SubmitAndWait(1)
	e.DrainCompletions()

	buf := make([]byte, 4096)
	n, err := syscall.Read(testFd, buf)
	if err != nil {
		t.Fatalf("read response error = %v", err)
	}
	resp := string(buf[:n])

	if !strings.HasPrefix(resp, "HTTP/1.1 500 Internal Server Error\r\n") {
		t.Errorf("expected 500, got %q", resp[:strings.Index(resp, "\r\n")+2])
	}
	if !strings.HasSuffix(resp, "Internal Server Error") {
		t.Errorf("expected recovered body 'Internal Server Error', got %q", resp)
	}
	if strings.Contains(resp, "partial") {
		t.Errorf("expected partial handler output discarded, got %q", resp)
	}
}
