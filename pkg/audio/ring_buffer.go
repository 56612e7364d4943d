// Package audio provides the PCM plumbing shared by the ringback
// generator, the voice room adapter and the local media manager:
// sample conversion, tone synthesis, resampling and a ring buffer used
// to pace playback against device callbacks.
package audio

import "sync"

// RingBuffer is a fixed-capacity circular buffer for PCM bytes.
// Writes overwrite the oldest data when full, so a stalled consumer
// drops old audio instead of blocking the producer.
type RingBuffer struct {
	mu       sync.Mutex
	data     []byte
	capacity int
	readPos  int
	size     int
}

// NewRingBuffer creates a buffer holding capacity bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{
		data:     make([]byte, capacity),
		capacity: capacity,
	}
}

// NewRingBufferForDuration sizes the buffer for durationMs of 16-bit
// mono PCM at sampleRate.
func NewRingBufferForDuration(sampleRate, durationMs int) *RingBuffer {
	return NewRingBuffer(FrameBytes(sampleRate, durationMs))
}

// Write appends data, overwriting the oldest bytes if the buffer is full.
func (rb *RingBuffer) Write(data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(data) == 0 {
		return
	}
	if len(data) >= rb.capacity {
		copy(rb.data, data[len(data)-rb.capacity:])
		rb.readPos = 0
		rb.size = rb.capacity
		return
	}

	writePos := (rb.readPos + rb.size) % rb.capacity
	n := copy(rb.data[writePos:], data)
	if n < len(data) {
		copy(rb.data, data[n:])
	}
	rb.size += len(data)
	if rb.size > rb.capacity {
		// Overwrote the oldest bytes; advance the read position past them.
		rb.readPos = (rb.readPos + rb.size - rb.capacity) % rb.capacity
		rb.size = rb.capacity
	}
}

// Read fills dst with buffered bytes and returns how many were copied.
// The remainder of dst is zeroed, so device callbacks can hand dst
// straight to the output device and get silence on underrun.
func (rb *RingBuffer) Read(dst []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(dst)
	if n > rb.size {
		n = rb.size
	}
	for i := 0; i < n; i++ {
		dst[i] = rb.data[(rb.readPos+i)%rb.capacity]
	}
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	rb.readPos = (rb.readPos + n) % rb.capacity
	rb.size -= n
	return n
}

// Len returns the number of buffered bytes.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size
}

// Capacity returns the total capacity in bytes.
func (rb *RingBuffer) Capacity() int {
	return rb.capacity
}

// Clear discards all buffered data.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.readPos = 0
	rb.size = 0
}
