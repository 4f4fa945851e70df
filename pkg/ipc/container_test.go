package ipc

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testThreads       = 104
	testAdminSessions = 1
)

// testListener mirrors the server's listener loop: pop pending requests and
// accept (or reject) each one.
type testListener struct {
	container *Container
	mu        sync.Mutex
	reject    bool
	done      chan struct{}
}

func newTestListener(c *Container) *testListener {
	return &testListener{container: c, done: make(chan struct{})}
}

func (l *testListener) run() {
	defer close(l.done)
	for {
		id, err := l.container.Listen()
		if err != nil {
			l.container.ConfirmTerminated()
			return
		}
		index := l.container.Slot()
		l.mu.Lock()
		reject := l.reject
		l.mu.Unlock()
		if reject {
			l.container.Reject(index)
		} else {
			l.container.Accept(index, id)
		}
	}
}

func (l *testListener) setRejectMode() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reject = true
}

type containerFixture struct {
	container *Container
	listener  *testListener
}

func newContainerFixture(t *testing.T) *containerFixture {
	t.Helper()
	name := fmt.Sprintf("connection_queue_test-%d", time.Now().UnixNano())
	container, err := NewContainer(name, testThreads, testAdminSessions)
	require.NoError(t, err)
	l := newTestListener(container)
	go l.run()
	t.Cleanup(func() {
		container.RequestTerminate()
		select {
		case <-l.done:
		case <-time.After(5 * time.Second):
			t.Fatal("listener did not terminate")
		}
		container.Close()
	})
	return &containerFixture{container: container, listener: l}
}

func (f *containerFixture) connect() (uint64, error) {
	ticket, err := f.container.Request()
	if err != nil {
		return 0, err
	}
	return f.container.Wait(ticket), nil
}

func (f *containerFixture) connectAdmin() (uint64, error) {
	ticket, err := f.container.RequestAdmin()
	if err != nil {
		return 0, err
	}
	return f.container.Wait(ticket), nil
}

func TestNormalSessionLimit(t *testing.T) {
	f := newContainerFixture(t)

	var sessionIDs []uint64
	for i := 0; i < testThreads; i++ {
		id, err := f.connect()
		require.NoError(t, err)
		sessionIDs = append(sessionIDs, id)
	}

	_, err := f.connect()
	assert.ErrorIs(t, err, ErrResourceLimit)

	// every issued id is unique and nonzero
	seen := make(map[uint64]struct{})
	for _, id := range sessionIDs {
		assert.NotZero(t, id)
		_, dup := seen[id]
		assert.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestAdminSession(t *testing.T) {
	f := newContainerFixture(t)

	for i := 0; i < testThreads; i++ {
		_, err := f.connect()
		require.NoError(t, err)
	}

	id, err := f.connectAdmin()
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.NotEqual(t, RejectedSessionID, id)

	_, err = f.connect()
	assert.ErrorIs(t, err, ErrResourceLimit)
	_, err = f.connectAdmin()
	assert.ErrorIs(t, err, ErrResourceLimit)
}

func TestAdminDoesNotConsumeNormalSlots(t *testing.T) {
	f := newContainerFixture(t)

	_, err := f.connectAdmin()
	require.NoError(t, err)

	// all normal slots are still available
	for i := 0; i < testThreads; i++ {
		_, err := f.connect()
		require.NoError(t, err)
	}
	_, err = f.connect()
	assert.ErrorIs(t, err, ErrResourceLimit)
}

func TestReject(t *testing.T) {
	f := newContainerFixture(t)
	f.listener.setRejectMode()

	id, err := f.connect()
	require.NoError(t, err)
	assert.Equal(t, RejectedSessionID, id)

	id, err = f.connectAdmin()
	require.NoError(t, err)
	assert.Equal(t, RejectedSessionID, id)
}

func TestRejectedSlotIsReusable(t *testing.T) {
	f := newContainerFixture(t)
	f.listener.setRejectMode()

	// a rejected slot returns to the pool, so rejection never exhausts it
	for i := 0; i < testThreads*2; i++ {
		id, err := f.connect()
		require.NoError(t, err)
		require.Equal(t, RejectedSessionID, id)
	}
}

func TestSessionIDsAreMonotonic(t *testing.T) {
	f := newContainerFixture(t)

	var last uint64
	for i := 0; i < 10; i++ {
		id, err := f.connect()
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}
}

func TestReleaseReturnsSlotToPool(t *testing.T) {
	name := fmt.Sprintf("release_test-%d", time.Now().UnixNano())
	container, err := NewContainer(name, 1, 0)
	require.NoError(t, err)
	defer container.Close()

	ticket, err := container.Request()
	require.NoError(t, err)

	id, err := container.Listen()
	require.NoError(t, err)
	slot := container.Slot()
	container.Accept(slot, id)
	assert.Equal(t, id, container.Wait(ticket))

	// the single slot is outstanding
	_, err = container.Request()
	assert.ErrorIs(t, err, ErrResourceLimit)

	container.Release(slot)
	_, err = container.Request()
	assert.NoError(t, err)
}

func TestTerminateWakesListener(t *testing.T) {
	name := fmt.Sprintf("terminate_test-%d", time.Now().UnixNano())
	container, err := NewContainer(name, 2, 0)
	require.NoError(t, err)
	defer container.Close()

	done := make(chan error, 1)
	go func() {
		_, err := container.Listen()
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	container.RequestTerminate()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTerminated)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not wake on terminate")
	}
	assert.True(t, container.IsTerminated())
	container.ConfirmTerminated()
	assert.True(t, container.IsConfirmed())
}
