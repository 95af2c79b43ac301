//go:build linux

package sys

import (
	"syscall"
	"unsafe"
)

// Setup creates a new io_uring instance.
// Returns the ring file descriptor on success, or an error.
func Setup(entries uint32, params *Params) (int, error) {
	fd, _, errno := syscall.Syscall(
		SYS_IO_URING_SETUP,
		uintptr(entries),
		uintptr(unsafe.Pointer(params)),
		0,
	)
	if errno != 0 {
		return 0, errno
	}
	return int(fd), nil
}

// Enter submits SQEs and/or waits for CQEs.
// toSubmit: number of SQEs to submit
// minComplete: minimum CQEs to wait for (if flags includes IORING_ENTER_GETEVENTS)
// flags: IORING_ENTER_* flags
// sig: optional signal mask (can be nil, pass unsafe.Pointer to sigset_t)
//
// Uses Syscall6 (not RawSyscall) to properly integrate with Go scheduler.
func Enter(fd int, toSubmit, minComplete, flags uint32, sig unsafe.Pointer) (int, error) {
	var sigPtr uintptr
	var sigSz uintptr
	if sig != nil {
		sigPtr = uintptr(sig)
		sigSz = 8 // the kernel's sigset_t is _NSIG/8 = 8 bytes (not glibc's 128-byte sigset_t)
	}

	n, _, errno := syscall.Syscall6(
		SYS_IO_URING_ENTER,
		uintptr(fd),
		uintptr(toSubmit),
		uintptr(minComplete),
		uintptr(flags),
		sigPtr,
		sigSz,
	)
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}

// Register performs ring registration operations.
// opcode: IORING_REGISTER_* or IORING_UNREGISTER_*
// arg: operation-specific argument (can be nil)
// nrArgs: number of arguments
func Register(fd int, opcode uint32, arg unsafe.Pointer, nrArgs uint32) error {
	_, _, errno := syscall.Syscall6(
		SYS_IO_URING_REGISTER,
		uintptr(fd),
		uintptr(opcode),
		uintptr(arg),
		uintptr(nrArgs),
		0,
		0,
	)
	if errno != 0 {
		return errno
	}
	return nil
}

// RegisterProbe queries supported operations.
func RegisterProbe(fd int, probe *Probe) error {
	return Register(fd, IORING_REGISTER_PROBE,
		unsafe.Pointer(probe), uint32(IORING_OP_LAST))
}

// Mmap wraps the mmap syscall for mapping ring buffers.
func Mmap(fd int, offset uint64, length int, prot, flags int) ([]byte, error) {
	data, err := syscall.Mmap(fd, int64(offset), length, prot, flags)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Munmap unmaps a previously mapped region.
func Munmap(data []byte) error {
	return syscall.Munmap(data)
}
