//go:build linux

package ouroboros

import (
	"github.com/arajko/ouroboros/internal/sys"
)

// Probe reports which io_uring operations and features the running kernel
// actually supports. Each Engine.Probe call queries the kernel afresh;
// NewServer does so once, right after creating the engine.
type Probe struct {
	probe    sys.Probe
	features uint32
}

// Probe queries the kernel for supported operations via
// IORING_REGISTER_PROBE.
func (e *Engine) Probe() (*Probe, error) {
	p := &Probe{features: e.features}
	if err := sys.RegisterProbe(e.fd, &p.probe); err != nil {
		return nil, err
	}
	return p, nil
}

// SupportsOp reports whether the kernel supports op.
func (p *Probe) SupportsOp(op sys.Op) bool {
	if uint8(op) > p.probe.LastOp {
		return false
	}
	return p.probe.Ops[op].Flags&sys.IO_URING_OP_SUPPORTED != 0
}

// LastOp returns the highest operation code the kernel reported.
func (p *Probe) LastOp() sys.Op {
	return sys.Op(p.probe.LastOp)
}

// SupportsServerOps reports whether every opcode this server relies on —
// accept, recv, send, close — is supported by the running kernel. The
// engine does not refuse to start when this is false; the first real use
// of an unsupported op surfaces as an ordinary completion error on the
// session that issued it.
func (p *Probe) SupportsServerOps() bool {
	return p.SupportsOp(sys.IORING_OP_ACCEPT) &&
		p.SupportsOp(sys.IORING_OP_RECV) &&
		p.SupportsOp(sys.IORING_OP_SEND) &&
		p.SupportsOp(sys.IORING_OP_CLOSE)
}

// Features returns the feature flags reported at ring setup.
func (p *Probe) Features() uint32 { return p.features }

// HasFeature reports whether a specific IORING_FEAT_* bit is set.
func (p *Probe) HasFeature(feature uint32) bool {
	return p.features&feature != 0
}

// Engine feature checks, used by startup logging and by tests that need
// to skip kernel-dependent behavior.

// HasSingleMmap reports whether SQ and CQ share a single mmap region.
func (e *Engine) HasSingleMmap() bool {
	return e.features&sys.IORING_FEAT_SINGLE_MMAP != 0
}

// HasNoDrop reports whether CQ overflow blocks rather than silently drops
// completions.
func (e *Engine) HasNoDrop() bool {
	return e.features&sys.IORING_FEAT_NODROP != 0
}

// HasSubmitStable reports whether the kernel has consumed an SQE's own
// data by the time the submitting enter call returns. Memory an operation
// reads or writes (a recv or send buffer) must still stay valid until its
// completion is drained.
func (e *Engine) HasSubmitStable() bool {
	return e.features&sys.IORING_FEAT_SUBMIT_STABLE != 0
}

// HasFastPoll reports whether the kernel uses internal poll to avoid
// blocking a worker thread on recv/send/accept.
func (e *Engine) HasFastPoll() bool {
	return e.features&sys.IORING_FEAT_FAST_POLL != 0
}

// HasExtArg reports whether IORING_ENTER_EXT_ARG is supported.
func (e *Engine) HasExtArg() bool {
	return e.features&sys.IORING_FEAT_EXT_ARG != 0
}

// HasNativeWorkers reports whether the kernel backs async ops with native
// workers rather than io-wq.
func (e *Engine) HasNativeWorkers() bool {
	return e.features&sys.IORING_FEAT_NATIVE_WORKERS != 0
}

// HasCQESkip reports whether IOSQE_CQE_SKIP_SUCCESS is honored.
func (e *Engine) HasCQESkip() bool {
	return e.features&sys.IORING_FEAT_CQE_SKIP != 0
}
