//go:build linux

package ouroboros

// CompletionTarget is notified exactly once per submitted operation, when
// its completion is drained from the CQ. The submitter promises that the
// target, and any kernel-referenced memory the operation touched, remain
// valid until that call.
type CompletionTarget interface {
	// OnComplete is invoked with the CQE's result (bytes transferred, or
	// a negated errno) and flags.
	OnComplete(res int32, flags uint32)
}

// targetArena maps a small integer handle to a registered
// CompletionTarget. A raw Go pointer cannot be stashed in an SQE's
// user_data field and handed to the kernel: Go's garbage collector may
// move or scan a value from another goroutine concurrently with an
// outstanding kernel operation referencing it. The handle — an opaque
// uint64, never dereferenced as a pointer — satisfies the same "opaque
// 64-bit token" contract without that hazard.
//
// Handle 0 is reserved to mean "no target" (the drain loop only dispatches
// non-zero user_data, matching the spec's CQE drain step).
type targetArena struct {
	slots []CompletionTarget
	free  []uint32
}

// register adds t to the arena and returns its handle. Handles are reused
// after release, so the arena never grows unbounded across a long-running
// server's connection churn.
func (a *targetArena) register(t CompletionTarget) uint64 {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[idx] = t
		return uint64(idx) + 1
	}
	a.slots = append(a.slots, t)
	return uint64(len(a.slots))
}

// release frees handle for reuse. Safe to call once a target will submit
// no further operations. Releasing a handle that is already free is a
// no-op.
func (a *targetArena) release(handle uint64) {
	if handle == 0 {
		return
	}
	idx := uint32(handle - 1)
	if int(idx) >= len(a.slots) {
		return
	}
	if a.slots[idx] == nil {
		return
	}
	a.slots[idx] = nil
	a.free = append(a.free, idx)
}

// lookup returns the target registered under handle, or nil if handle is
// zero, stale, or out of range.
func (a *targetArena) lookup(handle uint64) CompletionTarget {
	if handle == 0 {
		return nil
	}
	idx := uint32(handle - 1)
	if int(idx) >= len(a.slots) {
		return nil
	}
	return a.slots[idx]
}

// Register attaches target to the engine and returns the handle to use as
// an SQE's UserData for every operation that target submits over its
// lifetime.
func (e *Engine) Register(target CompletionTarget) uint64 {
	return e.targets.register(target)
}

// Unregister detaches a handle once its target will never submit, or be
// completed against, again.
func (e *Engine) Unregister(handle uint64) {
	e.targets.release(handle)
}
