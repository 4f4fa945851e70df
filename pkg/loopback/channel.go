package loopback

import (
	"errors"
	"sync"

	"github.com/cuemby/burrow/pkg/api"
)

// dataChannel buffers committed chunks in memory. Writers may run
// concurrently; each writer's commits keep their order, the interleaving
// between writers is whatever the commit order happens to be.
type dataChannel struct {
	name string

	mu      sync.Mutex
	data    [][]byte
	writers map[*channelWriter]struct{}
}

func newDataChannel(name string) *dataChannel {
	return &dataChannel{name: name, writers: make(map[*channelWriter]struct{})}
}

// Name implements api.DataChannel.
func (c *dataChannel) Name() string {
	return c.name
}

// AcquireWriter implements api.DataChannel.
func (c *dataChannel) AcquireWriter() (api.Writer, error) {
	w := &channelWriter{ch: c}
	c.mu.Lock()
	c.writers[w] = struct{}{}
	c.mu.Unlock()
	return w, nil
}

// ReleaseWriter implements api.DataChannel. Uncommitted data is discarded.
func (c *dataChannel) ReleaseWriter(w api.Writer) error {
	cw, ok := w.(*channelWriter)
	if !ok {
		return errors.New("writer does not belong to this channel")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.writers[cw]; !ok {
		return errors.New("writer is already released")
	}
	delete(c.writers, cw)
	return nil
}

func (c *dataChannel) commit(chunk []byte) {
	c.mu.Lock()
	c.data = append(c.data, chunk)
	c.mu.Unlock()
}

// committed returns the chunks committed so far, releasing every remaining
// writer.
func (c *dataChannel) committed() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	for w := range c.writers {
		delete(c.writers, w)
	}
	return c.data
}

// channelWriter accumulates bytes until Commit seals them into one chunk.
type channelWriter struct {
	ch  *dataChannel
	buf []byte
}

func (w *channelWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *channelWriter) Commit() error {
	chunk := make([]byte, len(w.buf))
	copy(chunk, w.buf)
	w.ch.commit(chunk)
	w.buf = w.buf[:0]
	return nil
}
