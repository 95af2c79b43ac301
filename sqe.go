//go:build linux

package ouroboros

import (
	"sync/atomic"
	"unsafe"

	"github.com/arajko/ouroboros/internal/sys"
)

// acquireSQE returns the next available SQE slot, zeroed, or nil if the
// ring has no room. This is the spec's acquire_sqe: it loads the
// kernel-visible head, and if the locally cached tail has caught all the
// way up to it, it flushes first and checks again before giving up.
func (e *Engine) acquireSQE() *sys.SQE {
	head := atomic.LoadUint32(e.sqHead)
	tail := atomic.LoadUint32(e.sqTail) + e.sqPending

	if tail-head >= e.sqEntries {
		if _, err := e.Submit(); err != nil {
			return nil
		}
		head = atomic.LoadUint32(e.sqHead)
		tail = atomic.LoadUint32(e.sqTail) + e.sqPending
		if tail-head >= e.sqEntries {
			return nil
		}
	}

	idx := tail & e.sqMask
	sqe := &e.sqes[idx]
	sqe.Reset()
	e.sqPending++
	return sqe
}

// PrepNop prepares a no-op. Useful for tests and for waking a blocked
// Run loop.
func (e *Engine) PrepNop(handle uint64) error {
	sqe := e.acquireSQE()
	if sqe == nil {
		return ErrSQFull
	}
	sqe.Opcode = uint8(sys.IORING_OP_NOP)
	sqe.UserData = handle
	return nil
}

// PrepAccept prepares an accept operation on the listening socket fd.
// addr/addrLen point at the caller's stable sockaddr buffer — they must
// remain valid and unmoved until the completion is drained.
func (e *Engine) PrepAccept(fd int, addr unsafe.Pointer, addrLen *uint32, handle uint64) error {
	sqe := e.acquireSQE()
	if sqe == nil {
		return ErrSQFull
	}
	sqe.Opcode = uint8(sys.IORING_OP_ACCEPT)
	sqe.Fd = int32(fd)
	sqe.Addr = uint64(uintptr(addr))
	sqe.Off = uint64(uintptr(unsafe.Pointer(addrLen)))
	sqe.UserData = handle
	return nil
}

// PrepRecv prepares a recv into buf. buf must remain valid and unmoved
// until the completion is drained — the session owns it and does not
// touch it while the op is outstanding.
func (e *Engine) PrepRecv(fd int, buf []byte, handle uint64) error {
	if len(buf) == 0 {
		return nil
	}
	sqe := e.acquireSQE()
	if sqe == nil {
		return ErrSQFull
	}
	sqe.Opcode = uint8(sys.IORING_OP_RECV)
	sqe.Fd = int32(fd)
	sqe.Addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	sqe.Len = uint32(len(buf))
	sqe.UserData = handle
	return nil
}

// PrepSend prepares a send of buf. buf must remain valid and unmoved
// until the completion is drained.
func (e *Engine) PrepSend(fd int, buf []byte, handle uint64) error {
	if len(buf) == 0 {
		return nil
	}
	sqe := e.acquireSQE()
	if sqe == nil {
		return ErrSQFull
	}
	sqe.Opcode = uint8(sys.IORING_OP_SEND)
	sqe.Fd = int32(fd)
	sqe.Addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	sqe.Len = uint32(len(buf))
	sqe.UserData = handle
	return nil
}

// PrepTimeout prepares a kernel timeout op: ts specifies the duration,
// count the number of other completions to wait for before it fires (0
// fires purely on the clock). Not currently invoked anywhere in the
// session state machine — see the package's design notes on session
// timeouts — but kept available as a primitive for a caller that wants
// one.
func (e *Engine) PrepTimeout(ts *Timespec, count uint64, flags uint32, handle uint64) error {
	sqe := e.acquireSQE()
	if sqe == nil {
		return ErrSQFull
	}
	sqe.Opcode = uint8(sys.IORING_OP_TIMEOUT)
	sqe.Fd = -1
	sqe.Addr = uint64(uintptr(unsafe.Pointer(ts)))
	sqe.Len = 1
	sqe.Off = count
	sqe.OpFlags = flags
	sqe.UserData = handle
	return nil
}

// PrepTimeoutRemove cancels a previously prepared timeout identified by
// its handle.
func (e *Engine) PrepTimeoutRemove(targetHandle uint64, handle uint64) error {
	sqe := e.acquireSQE()
	if sqe == nil {
		return ErrSQFull
	}
	sqe.Opcode = uint8(sys.IORING_OP_TIMEOUT_REMOVE)
	sqe.Fd = -1
	sqe.Addr = targetHandle
	sqe.UserData = handle
	return nil
}
