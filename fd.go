//go:build linux

package ouroboros

import "syscall"

// noFD is the sentinel value meaning "this handle owns nothing".
const noFD = -1

// FD is a single-owner file descriptor handle: exactly one FD value is
// ever responsible for closing a given descriptor. Copying an FD copies
// the value but callers must not let two live FDs reference the same
// descriptor — Take or Close it to transfer or end ownership, the way the
// session and listener types in this package do.
type FD struct {
	fd int
}

// NewFD wraps an already-open descriptor, taking ownership of it.
func NewFD(fd int) FD {
	return FD{fd: fd}
}

// Valid reports whether the handle currently owns an open descriptor.
func (h *FD) Valid() bool {
	return h.fd >= 0
}

// Int returns the raw descriptor, or a negative sentinel if the handle is
// empty. The caller must not close it directly.
func (h *FD) Int() int {
	return h.fd
}

// Take transfers ownership out of h, returning the raw descriptor and
// leaving h empty. The caller becomes responsible for eventually closing
// it (typically by wrapping it in a new FD).
func (h *FD) Take() int {
	fd := h.fd
	h.fd = noFD
	return fd
}

// Close closes the owned descriptor, if any, and empties the handle.
// Idempotent: closing an already-empty handle is a no-op.
func (h *FD) Close() error {
	if h.fd < 0 {
		return nil
	}
	fd := h.fd
	h.fd = noFD
	return syscall.Close(fd)
}
