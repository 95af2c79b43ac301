//go:build linux

// Package ouroboros is an HTTP/1.1 server built directly on the Linux
// io_uring interface. It owns the submission/completion ring pair, the
// connection state machine driving each session through recv -> parse ->
// dispatch -> send, and the plumbing needed to route requests to
// user-registered handlers — all from a single-threaded event loop that
// talks to the kernel through shared memory.
package ouroboros

import (
	"errors"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/arajko/ouroboros/internal/sys"
)

// Common errors.
var (
	ErrRingClosed   = errors.New("ouroboros: ring closed")
	ErrSQFull       = errors.New("ouroboros: submission queue full")
	ErrNotSupported = errors.New("ouroboros: operation not supported on this kernel")
)

// Timespec is a time specification for timeout operations.
type Timespec = sys.Timespec

// DefaultEntries is the submission queue size used when a caller doesn't
// specify one.
const DefaultEntries = 4096

// Engine owns the io_uring instance: the shared-memory SQ/CQ ring pair,
// their head/tail indices, and the dispatch of completions back to the
// CompletionTarget that submitted each operation.
//
// An Engine is driven by exactly one goroutine. It queues SQEs, flushes
// them to the kernel in batches, and blocks in Run waiting for at least
// one completion. Nothing here is safe for concurrent use — by design,
// per the single-threaded event loop model this type implements.
type Engine struct {
	fd       int
	params   sys.Params
	features uint32

	// Submission queue
	sqRing    []byte
	sqEntries uint32
	sqMask    uint32
	sqHead    *uint32
	sqTail    *uint32
	sqArray   []uint32
	sqes      []sys.SQE
	sqesMmap  []byte

	// Completion queue
	cqRing    []byte
	cqEntries uint32
	cqMask    uint32
	cqHead    *uint32
	cqTail    *uint32
	cqes      []sys.CQE

	sqPending uint32 // number of SQEs acquired since the last flush

	targets targetArena
	closed  bool
}

// Option configures engine construction.
type Option func(*sys.Params)

// WithSingleIssuer tells the kernel only one task will ever submit to
// this ring, which is always true of an Engine — it is driven by exactly
// one goroutine for its entire lifetime.
func WithSingleIssuer() Option {
	return func(p *sys.Params) {
		p.Flags |= sys.IORING_SETUP_SINGLE_ISSUER
	}
}

// WithCoopTaskrun enables cooperative task running, a throughput
// optimization with no effect on observable behavior.
func WithCoopTaskrun() Option {
	return func(p *sys.Params) {
		p.Flags |= sys.IORING_SETUP_COOP_TASKRUN
	}
}

// WithFlags ORs arbitrary raw setup flags into the request. Exposed as an
// escape hatch for callers who need a kernel feature this package doesn't
// wrap directly.
func WithFlags(flags uint32) Option {
	return func(p *sys.Params) {
		p.Flags |= flags
	}
}

// New creates an Engine with a ring of at least entries submission slots
// (the kernel rounds up to a power of two). entries of 0 uses
// DefaultEntries.
func New(entries uint32, opts ...Option) (*Engine, error) {
	if entries == 0 {
		entries = DefaultEntries
	}

	params := sys.Params{}
	for _, opt := range opts {
		opt(&params)
	}

	fd, err := sys.Setup(entries, &params)
	if err != nil {
		return nil, &Error{Kind: "setup", Op: "io_uring_setup", Err: err}
	}

	e := &Engine{
		fd:       fd,
		params:   params,
		features: params.Features,
	}

	if err := e.mapRings(); err != nil {
		syscall.Close(fd)
		return nil, &Error{Kind: "mmap", Op: "mmap", Err: err}
	}

	return e, nil
}

// mapRings maps the SQ, CQ, and SQE arrays into memory shared with the
// kernel. On any failure it unwinds everything it mapped so far.
func (e *Engine) mapRings() error {
	p := &e.params

	sqRingSize := p.SQOff.Array + p.SQEntries*4
	cqRingSize := p.CQOff.CQEs + p.CQEntries*uint32(unsafe.Sizeof(sys.CQE{}))

	singleMmap := p.Features&sys.IORING_FEAT_SINGLE_MMAP != 0
	if singleMmap && cqRingSize > sqRingSize {
		sqRingSize = cqRingSize
	}

	var err error
	e.sqRing, err = sys.Mmap(e.fd, sys.IORING_OFF_SQ_RING, int(sqRingSize),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED|syscall.MAP_POPULATE)
	if err != nil {
		return err
	}

	if singleMmap {
		e.cqRing = e.sqRing
	} else {
		e.cqRing, err = sys.Mmap(e.fd, sys.IORING_OFF_CQ_RING, int(cqRingSize),
			syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED|syscall.MAP_POPULATE)
		if err != nil {
			sys.Munmap(e.sqRing)
			return err
		}
	}

	sqeSize := p.SQEntries * uint32(unsafe.Sizeof(sys.SQE{}))
	e.sqesMmap, err = sys.Mmap(e.fd, sys.IORING_OFF_SQES, int(sqeSize),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED|syscall.MAP_POPULATE)
	if err != nil {
		if !singleMmap {
			sys.Munmap(e.cqRing)
		}
		sys.Munmap(e.sqRing)
		return err
	}

	e.sqEntries = *(*uint32)(unsafe.Pointer(&e.sqRing[p.SQOff.RingEntries]))
	e.sqMask = *(*uint32)(unsafe.Pointer(&e.sqRing[p.SQOff.RingMask]))
	e.sqHead = (*uint32)(unsafe.Pointer(&e.sqRing[p.SQOff.Head]))
	e.sqTail = (*uint32)(unsafe.Pointer(&e.sqRing[p.SQOff.Tail]))

	sqArrayPtr := unsafe.Pointer(&e.sqRing[p.SQOff.Array])
	e.sqArray = unsafe.Slice((*uint32)(sqArrayPtr), e.sqEntries)

	sqesPtr := unsafe.Pointer(&e.sqesMmap[0])
	e.sqes = unsafe.Slice((*sys.SQE)(sqesPtr), p.SQEntries)

	e.cqEntries = *(*uint32)(unsafe.Pointer(&e.cqRing[p.CQOff.RingEntries]))
	e.cqMask = *(*uint32)(unsafe.Pointer(&e.cqRing[p.CQOff.RingMask]))
	e.cqHead = (*uint32)(unsafe.Pointer(&e.cqRing[p.CQOff.Head]))
	e.cqTail = (*uint32)(unsafe.Pointer(&e.cqRing[p.CQOff.Tail]))

	cqesPtr := unsafe.Pointer(&e.cqRing[p.CQOff.CQEs])
	e.cqes = unsafe.Slice((*sys.CQE)(cqesPtr), e.cqEntries)

	return nil
}

// Close unmaps the rings and closes the ring file descriptor. Idempotent.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	if e.params.Features&sys.IORING_FEAT_SINGLE_MMAP == 0 && e.cqRing != nil {
		sys.Munmap(e.cqRing)
	}
	if e.sqRing != nil {
		sys.Munmap(e.sqRing)
	}
	if e.sqesMmap != nil {
		sys.Munmap(e.sqesMmap)
	}
	return syscall.Close(e.fd)
}

// Fd returns the ring's own file descriptor.
func (e *Engine) Fd() int { return e.fd }

// Features returns the io_uring_params feature bits reported at setup.
func (e *Engine) Features() uint32 { return e.features }

// HasFeature reports whether a specific IORING_FEAT_* bit is set.
func (e *Engine) HasFeature(feat uint32) bool { return e.features&feat != 0 }

// SQEntries returns the number of submission queue slots.
func (e *Engine) SQEntries() uint32 { return e.sqEntries }

// CQEntries returns the number of completion queue slots.
func (e *Engine) CQEntries() uint32 { return e.cqEntries }

// SQReady returns the number of SQEs queued locally but not yet flushed.
func (e *Engine) SQReady() uint32 { return e.sqPending }

// CQReady returns the number of completions available to be drained.
func (e *Engine) CQReady() uint32 {
	return atomic.LoadUint32(e.cqTail) - atomic.LoadUint32(e.cqHead)
}

// Submit flushes all locally queued SQEs to the kernel: it writes the
// identity index mapping for each newly queued slot, publishes the new
// tail with release ordering, then invokes the enter syscall. This is the
// spec's "flush" step. Returns the number of SQEs the kernel accepted.
func (e *Engine) Submit() (int, error) {
	if e.closed {
		return 0, ErrRingClosed
	}

	submitted := e.sqPending
	if submitted == 0 {
		return 0, nil
	}

	tail := atomic.LoadUint32(e.sqTail)
	for i := uint32(0); i < submitted; i++ {
		idx := (tail + i) & e.sqMask
		e.sqArray[idx] = idx
	}
	atomic.StoreUint32(e.sqTail, tail+submitted)
	e.sqPending = 0

	n, err := sys.Enter(e.fd, submitted, 0, 0, nil)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// SubmitAndWait flushes pending SQEs and blocks until at least n
// completions are available.
func (e *Engine) SubmitAndWait(n uint32) (int, error) {
	if e.closed {
		return 0, ErrRingClosed
	}

	submitted := e.sqPending
	if submitted > 0 {
		tail := atomic.LoadUint32(e.sqTail)
		for i := uint32(0); i < submitted; i++ {
			idx := (tail + i) & e.sqMask
			e.sqArray[idx] = idx
		}
		atomic.StoreUint32(e.sqTail, tail+submitted)
		e.sqPending = 0
	}

	result, err := sys.Enter(e.fd, submitted, n, sys.IORING_ENTER_GETEVENTS, nil)
	if err != nil {
		return 0, err
	}
	return result, nil
}

// Run blocks forever, waiting for completions and dispatching each to
// its registered CompletionTarget. It only returns on a non-interrupt
// error from the kernel, which it reports through the returned error —
// callers normally treat that as fatal and exit.
func (e *Engine) Run() error {
	for {
		_, err := e.SubmitAndWait(1)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			return err
		}
		e.DrainCompletions()
	}
}
