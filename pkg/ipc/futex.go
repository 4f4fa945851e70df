package ipc

import (
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// futexWait blocks until the word at addr no longer holds val, the timeout
// elapses, or a wake is posted. A zero timeout waits indefinitely.
func futexWait(addr *uint32, val uint32, timeout time.Duration) error {
	var tsPtr unsafe.Pointer
	if timeout > 0 {
		ts := unix.NsecToTimespec(timeout.Nanoseconds())
		tsPtr = unsafe.Pointer(&ts)
	}
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(unix.FUTEX_WAIT),
		uintptr(val),
		uintptr(tsPtr),
		0, 0,
	)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	case unix.ETIMEDOUT:
		return errTimeout
	}
	return errno
}

// futexWake wakes up to n waiters parked on addr.
func futexWake(addr *uint32, n int) {
	unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(unix.FUTEX_WAKE),
		uintptr(n),
		0, 0, 0,
	)
}

// semaphore is a counting semaphore on one shared futex word. The word
// lives in a shared-memory region, so both the server and client processes
// block and wake through the same kernel queue.
type semaphore struct {
	word *uint32
}

// post releases one unit and wakes a waiter.
func (s semaphore) post() {
	atomic.AddUint32(s.word, 1)
	futexWake(s.word, 1)
}

// tryAcquire claims one unit without blocking.
func (s semaphore) tryAcquire() bool {
	for {
		v := atomic.LoadUint32(s.word)
		if v == 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(s.word, v, v-1) {
			return true
		}
	}
}

// acquire claims one unit, blocking until one is available.
func (s semaphore) acquire() {
	for {
		if s.tryAcquire() {
			return
		}
		_ = futexWait(s.word, 0, 0)
	}
}

// acquireTimeout claims one unit, giving up after d. It reports whether a
// unit was claimed.
func (s semaphore) acquireTimeout(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if s.tryAcquire() {
			return true
		}
		remain := time.Until(deadline)
		if remain <= 0 {
			return false
		}
		_ = futexWait(s.word, 0, remain)
	}
}
