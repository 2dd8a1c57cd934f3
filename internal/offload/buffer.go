package offload

import "sync"

// Access declares whether backend writes to a Buffer reach host memory.
type Access int

const (
	ReadOnly Access = iota
	ReadWrite
)

// Buffer shares a host slice with a queue's backend. The backend works on
// its own copy; Release synchronizes with the queue and, for ReadWrite
// buffers, copies that memory back into the host slice. Callers defer
// Release right after NewBuffer.
type Buffer struct {
	q      *Queue
	host   []float64
	dev    []float64
	access Access
	once   sync.Once
}

func NewBuffer(q *Queue, host []float64, access Access) *Buffer {
	dev := make([]float64, len(host))
	copy(dev, host)
	return &Buffer{q: q, host: host, dev: dev, access: access}
}

// Len is the element count of the shared slice.
func (b *Buffer) Len() int { return len(b.host) }

func (b *Buffer) Access() Access { return b.access }

// Data is the backend-side memory. Only queued work may touch it, and only
// before Release.
func (b *Buffer) Data() []float64 { return b.dev }

// Release blocks on the queue barrier and writes results back to the host.
// Calling it more than once is safe.
func (b *Buffer) Release() {
	b.once.Do(func() {
		b.q.Wait()
		if b.access == ReadWrite {
			copy(b.host, b.dev)
		}
		b.dev = nil
	})
}
