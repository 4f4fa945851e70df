package ipc

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// RejectedSessionID is returned by Wait when the server rejected the
// connection request.
const RejectedSessionID = ^uint64(0)

var (
	// ErrResourceLimit reports that every slot of the requested class is
	// outstanding.
	ErrResourceLimit = errors.New("ipc: connection resource limit reached")
	// ErrTerminated reports that the container is shutting down.
	ErrTerminated = errors.New("ipc: connection container terminated")
)

// The connection ring layout is part of the ABI shared with clients: a
// 64-byte header followed by 32-byte slots. Changing any of these offsets
// breaks existing clients.
const (
	containerMagic = 0x42555257 // "BURW"

	headerSize = 64
	slotSize   = 32

	offMagic          = 0
	offCapacity       = 4
	offAdminCapacity  = 8
	offTerminated     = 12
	offConfirmed      = 16
	offRequestSem     = 20
	offSessionCounter = 24

	offSlotState     = 0
	offSlotSessionID = 8
)

// Slot states. The state word doubles as the futex clients block on while
// waiting for accept or reject.
const (
	slotFree uint32 = iota
	slotRequested
	slotListened
	slotAccepted
	slotRejected
	slotInUse
)

// Ticket identifies a claimed connection slot on the client side.
type Ticket struct {
	index uint32
}

// Index returns the slot index the ticket refers to.
func (t Ticket) Index() uint32 {
	return t.index
}

// Container is the shared-memory bounded admission queue. The server
// process creates it; client processes attach to it by database name. All
// shared state lives in the mapped region, so both sides observe the same
// ring; only the slot of the most recent Listen is kept locally.
type Container struct {
	name     string
	mem      []byte
	owner    bool
	lastSlot uint32
}

// NewContainer creates the named container with capacity for threads
// normal sessions plus adminSlots reserved admin sessions.
func NewContainer(name string, threads, adminSlots uint32) (*Container, error) {
	size := headerSize + int(threads+adminSlots)*slotSize
	mem, err := createRegion(name, size)
	if err != nil {
		return nil, err
	}
	c := &Container{name: name, mem: mem, owner: true}
	atomic.StoreUint32(c.u32(offCapacity), threads)
	atomic.StoreUint32(c.u32(offAdminCapacity), adminSlots)
	atomic.StoreUint32(c.u32(offTerminated), 0)
	atomic.StoreUint32(c.u32(offConfirmed), 0)
	atomic.StoreUint32(c.u32(offRequestSem), 0)
	atomic.StoreUint64(c.u64(offSessionCounter), 0)
	atomic.StoreUint32(c.u32(offMagic), containerMagic)
	return c, nil
}

// Open attaches to an existing container created by the server.
func Open(name string) (*Container, error) {
	mem, err := openRegion(name)
	if err != nil {
		return nil, err
	}
	c := &Container{name: name, mem: mem}
	if atomic.LoadUint32(c.u32(offMagic)) != containerMagic {
		unmapRegion(mem)
		return nil, fmt.Errorf("ipc: %s is not a connection container", name)
	}
	return c, nil
}

// Capacity returns the number of normal session slots.
func (c *Container) Capacity() uint32 {
	return atomic.LoadUint32(c.u32(offCapacity))
}

// AdminCapacity returns the number of reserved admin slots.
func (c *Container) AdminCapacity() uint32 {
	return atomic.LoadUint32(c.u32(offAdminCapacity))
}

// Request claims one normal slot. It fails with ErrResourceLimit when all
// normal slots are outstanding; it never claims an admin slot.
func (c *Container) Request() (Ticket, error) {
	return c.claim(0, c.Capacity())
}

// RequestAdmin claims one slot from the admin reservation only.
func (c *Container) RequestAdmin() (Ticket, error) {
	return c.claim(c.Capacity(), c.Capacity()+c.AdminCapacity())
}

func (c *Container) claim(lo, hi uint32) (Ticket, error) {
	if c.IsTerminated() {
		return Ticket{}, ErrTerminated
	}
	for i := lo; i < hi; i++ {
		if atomic.CompareAndSwapUint32(c.slotState(i), slotFree, slotRequested) {
			c.sem().post()
			return Ticket{index: i}, nil
		}
	}
	return Ticket{}, ErrResourceLimit
}

// Wait blocks until the server accepts or rejects the slot the ticket
// refers to. It returns the assigned session id on accept and
// RejectedSessionID on reject.
func (c *Container) Wait(t Ticket) uint64 {
	state := c.slotState(t.index)
	for {
		v := atomic.LoadUint32(state)
		switch v {
		case slotAccepted:
			id := atomic.LoadUint64(c.slotSessionID(t.index))
			atomic.StoreUint32(state, slotInUse)
			return id
		case slotRejected:
			atomic.StoreUint32(state, slotFree)
			return RejectedSessionID
		default:
			_ = futexWait(state, v, 0)
		}
	}
}

// Listen blocks until a connection request is pending and returns a freshly
// assigned session id. Session ids are monotonic, start at one, and are
// never reused within the container's lifetime. When termination has been
// requested Listen returns ErrTerminated.
func (c *Container) Listen() (uint64, error) {
	for {
		c.sem().acquire()
		if c.IsTerminated() {
			// hand the wakeup to any other listener draining the queue
			c.sem().post()
			return 0, ErrTerminated
		}
		if id, ok := c.popRequested(); ok {
			return id, nil
		}
	}
}

// ListenNonblock is Listen without blocking; ok reports whether a request
// was pending.
func (c *Container) ListenNonblock() (uint64, bool, error) {
	if c.IsTerminated() {
		return 0, false, ErrTerminated
	}
	if !c.sem().tryAcquire() {
		return 0, false, nil
	}
	if c.IsTerminated() {
		c.sem().post()
		return 0, false, ErrTerminated
	}
	id, ok := c.popRequested()
	return id, ok, nil
}

func (c *Container) popRequested() (uint64, bool) {
	total := c.Capacity() + c.AdminCapacity()
	for i := uint32(0); i < total; i++ {
		if atomic.CompareAndSwapUint32(c.slotState(i), slotRequested, slotListened) {
			c.lastSlot = i
			id := atomic.AddUint64(c.u64(offSessionCounter), 1)
			return id, true
		}
	}
	return 0, false
}

// Slot returns the slot index associated with the most recent Listen.
func (c *Container) Slot() uint32 {
	return c.lastSlot
}

// IsAdminSlot reports whether index belongs to the admin reservation.
func (c *Container) IsAdminSlot(index uint32) bool {
	return index >= c.Capacity()
}

// Accept completes the handshake with the client waiting on index.
func (c *Container) Accept(index uint32, sessionID uint64) {
	atomic.StoreUint64(c.slotSessionID(index), sessionID)
	atomic.StoreUint32(c.slotState(index), slotAccepted)
	futexWake(c.slotState(index), 1)
}

// Reject signals rejection to the client waiting on index; its Wait returns
// RejectedSessionID.
func (c *Container) Reject(index uint32) {
	atomic.StoreUint32(c.slotState(index), slotRejected)
	futexWake(c.slotState(index), 1)
}

// Release returns the slot to the pool once the session it carried ended.
func (c *Container) Release(index uint32) {
	atomic.StoreUint64(c.slotSessionID(index), 0)
	atomic.StoreUint32(c.slotState(index), slotFree)
	futexWake(c.slotState(index), 1)
}

// RequestTerminate announces cooperative teardown and wakes the listener.
func (c *Container) RequestTerminate() {
	atomic.StoreUint32(c.u32(offTerminated), 1)
	c.sem().post()
}

// IsTerminated reports whether termination has been requested.
func (c *Container) IsTerminated() bool {
	return atomic.LoadUint32(c.u32(offTerminated)) != 0
}

// ConfirmTerminated acknowledges that the listener has drained; after this
// the region may be unlinked.
func (c *Container) ConfirmTerminated() {
	atomic.StoreUint32(c.u32(offConfirmed), 1)
	futexWake(c.u32(offConfirmed), 1)
}

// IsConfirmed reports whether the listener acknowledged termination.
func (c *Container) IsConfirmed() bool {
	return atomic.LoadUint32(c.u32(offConfirmed)) != 0
}

// SessionCounter returns the last assigned session id.
func (c *Container) SessionCounter() uint64 {
	return atomic.LoadUint64(c.u64(offSessionCounter))
}

// Close unmaps the region. The creating side also unlinks it, which is safe
// once termination has been confirmed.
func (c *Container) Close() {
	unmapRegion(c.mem)
	c.mem = nil
	if c.owner {
		unlinkRegion(c.name)
	}
}

func (c *Container) u32(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&c.mem[off]))
}

func (c *Container) u64(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&c.mem[off]))
}

func (c *Container) slotState(index uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(&c.mem[headerSize+int(index)*slotSize+offSlotState]))
}

func (c *Container) slotSessionID(index uint32) *uint64 {
	return (*uint64)(unsafe.Pointer(&c.mem[headerSize+int(index)*slotSize+offSlotSessionID]))
}

func (c *Container) sem() semaphore {
	return semaphore{word: c.u32(offRequestSem)}
}
