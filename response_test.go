//go:build linux

package ouroboros

import (
	"strconv"
	"strings"
	"testing"
)

func TestSerializeDefaultsTo200(t *testing.T) {
	w := NewResponseWriter()
	w.Write([]byte("hello"))
	out := string(w.Serialize(true))

	if !strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n") {
		t.Errorf("status line = %q", out[:strings.Index(out, "\r\n")+2])
	}
	if !strings.Contains(out, "Content-Length: 5\r\n") {
		t.Errorf("missing correct Content-Length, got %q", out)
	}
	if !strings.Contains(out, "Connection: keep-alive\r\n") {
		t.Errorf("missing Connection: keep-alive, got %q", out)
	}
	if !strings.HasSuffix(out, "hello") {
		t.Errorf("body not appended, got %q", out)
	}
}

func TestSerializeConnectionClose(t *testing.T) {
	w := NewResponseWriter()
	out := string(w.Serialize(false))
	if !strings.Contains(out, "Connection: close\r\n") {
		t.Errorf("missing Connection: close, got %q", out)
	}
}

func TestSerializeCustomStatusAndHeaders(t *testing.T) {
	w := NewResponseWriter()
	w.WriteStatus(404)
	w.SetHeader("X-Custom", "value")
	out := string(w.Serialize(false))

	if !strings.HasPrefix(out, "HTTP/1.1 404 Not Found\r\n") {
		t.Errorf("status line wrong: %q", out[:strings.Index(out, "\r\n")+2])
	}
	if !strings.Contains(out, "X-Custom: value\r\n") {
		t.Errorf("missing custom header, got %q", out)
	}
}

func TestSerializeHandlerCannotOverrideContentLengthOrConnection(t *testing.T) {
	w := NewResponseWriter()
	w.SetHeader("Content-Length", "999")
	w.SetHeader("Connection", "bogus")
	w.Write([]byte("abc"))
	out := string(w.Serialize(true))

	if !strings.Contains(out, "Content-Length: "+strconv.Itoa(len("abc"))+"\r\n") {
		t.Errorf("Content-Length was overridden by handler: %q", out)
	}
	if strings.Contains(out, "Connection: bogus") {
		t.Errorf("Connection header was overridden by handler: %q", out)
	}
}

func TestReasonPhraseFallback(t *testing.T) {
	if got := ReasonPhrase(599); got != "OK" {
		t.Errorf("ReasonPhrase(599) = %q, want OK", got)
	}
	if got := ReasonPhrase(404); got != "Not Found" {
		t.Errorf("ReasonPhrase(404) = %q, want Not Found", got)
	}
}
