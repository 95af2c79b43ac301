//go:build linux

package ouroboros

import (
	"sync/atomic"
	"syscall"
)

// PeekCQE returns the next completion without blocking and without
// advancing the CQ head — call SeenCQE once it has been processed.
func (e *Engine) PeekCQE() (handle uint64, res int32, flags uint32, ok bool) {
	head := atomic.LoadUint32(e.cqHead)
	tail := atomic.LoadUint32(e.cqTail)
	if head == tail {
		return 0, 0, 0, false
	}
	cqe := &e.cqes[head&e.cqMask]
	return cqe.UserData, cqe.Res, cqe.Flags, true
}

// SeenCQE advances the CQ head by one, marking the current entry consumed.
func (e *Engine) SeenCQE() {
	head := atomic.LoadUint32(e.cqHead)
	atomic.StoreUint32(e.cqHead, head+1)
}

// WaitCQE returns the next completion, blocking (and flushing any queued
// SQEs) if none is immediately available.
func (e *Engine) WaitCQE() (handle uint64, res int32, flags uint32, err error) {
	if e.closed {
		return 0, 0, 0, ErrRingClosed
	}
	if handle, res, flags, ok := e.PeekCQE(); ok {
		return handle, res, flags, nil
	}
	if _, err := e.SubmitAndWait(1); err != nil {
		return 0, 0, 0, err
	}
	if handle, res, flags, ok := e.PeekCQE(); ok {
		return handle, res, flags, nil
	}
	return 0, 0, 0, syscall.EAGAIN
}

// ForEachCQE walks every completion currently available without blocking,
// invoking fn for each and advancing the CQ head once as it finishes (or
// as soon as fn returns false). Returns the number processed.
func (e *Engine) ForEachCQE(fn func(handle uint64, res int32, flags uint32) bool) int {
	head := atomic.LoadUint32(e.cqHead)
	tail := atomic.LoadUint32(e.cqTail)
	count := 0

	for head != tail {
		cqe := &e.cqes[head&e.cqMask]
		if !fn(cqe.UserData, cqe.Res, cqe.Flags) {
			break
		}
		head++
		count++
	}

	if count > 0 {
		atomic.StoreUint32(e.cqHead, head)
	}
	return count
}

// DrainCompletions processes every completion currently available: for
// each with a non-zero user_data, it looks up the registered
// CompletionTarget by handle and invokes OnComplete. A target may submit
// new operations from within that call; those become visible on the next
// Submit and are not drained in this pass. Returns the number drained.
func (e *Engine) DrainCompletions() int {
	head := atomic.LoadUint32(e.cqHead)
	tail := atomic.LoadUint32(e.cqTail)
	count := 0

	for head != tail {
		cqe := &e.cqes[head&e.cqMask]
		if cqe.UserData != 0 {
			if target := e.targets.lookup(cqe.UserData); target != nil {
				target.OnComplete(cqe.Res, cqe.Flags)
			}
		}
		head++
		count++
	}

	atomic.StoreUint32(e.cqHead, head)
	return count
}

// ResultError converts a CQE result to an error if negative (the kernel
// encodes a failed op as -errno), or nil if the op succeeded.
func ResultError(res int32) error {
	if res >= 0 {
		return nil
	}
	return syscall.Errno(-res)
}
