package audio

import "sync"

// ByteQueue is the FIFO between a hardware callback and the scheduler.
// All operations return immediately.
type ByteQueue struct {
	mu   sync.Mutex
	buf  []byte
	head int
}

// NewByteQueue creates a queue with room for capacity bytes before it grows.
func NewByteQueue(capacity int) *ByteQueue {
	return &ByteQueue{buf: make([]byte, 0, capacity)}
}

// Write appends p to the queue.
func (q *ByteQueue) Write(p []byte) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head > 0 && len(q.buf)+len(p) > cap(q.buf) {
		// compact before growing
		n := copy(q.buf, q.buf[q.head:])
		q.buf = q.buf[:n]
		q.head = 0
	}
	q.buf = append(q.buf, p...)
	return len(p)
}

// Read moves up to len(p) bytes out of the queue.
func (q *ByteQueue) Read(p []byte) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := copy(p, q.buf[q.head:])
	q.head += n
	if q.head == len(q.buf) {
		q.buf = q.buf[:0]
		q.head = 0
	}
	return n
}

// Len returns the number of queued bytes.
func (q *ByteQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf) - q.head
}

// Clear drops everything queued and returns how many bytes were dropped.
func (q *ByteQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.buf) - q.head
	q.buf = q.buf[:0]
	q.head = 0
	return n
}
