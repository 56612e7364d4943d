package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBufferWriteRead(t *testing.T) {
	rb := NewRingBuffer(8)

	rb.Write([]byte{1, 2, 3, 4})
	assert.Equal(t, 4, rb.Len())

	dst := make([]byte, 4)
	n := rb.Read(dst)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{1, 2, 3, 4}, dst)
	assert.Equal(t, 0, rb.Len())
}

func TestRingBufferUnderrunZeroFills(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Write([]byte{9, 9})

	dst := []byte{7, 7, 7, 7}
	n := rb.Read(dst)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{9, 9, 0, 0}, dst)
}

func TestRingBufferOverwritesOldest(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Write([]byte{1, 2, 3, 4})
	rb.Write([]byte{5, 6})

	dst := make([]byte, 4)
	n := rb.Read(dst)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{3, 4, 5, 6}, dst)
}

func TestRingBufferOversizedWriteKeepsTail(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Write([]byte{1, 2, 3, 4, 5, 6})

	dst := make([]byte, 4)
	rb.Read(dst)
	assert.Equal(t, []byte{3, 4, 5, 6}, dst)
}

func TestRingBufferWrapAround(t *testing.T) {
	rb := NewRingBuffer(6)
	rb.Write([]byte{1, 2, 3, 4})
	dst := make([]byte, 2)
	rb.Read(dst)

	rb.Write([]byte{5, 6, 7, 8})
	out := make([]byte, 6)
	n := rb.Read(out)
	assert.Equal(t, 6, n)
	assert.Equal(t, []byte{3, 4, 5, 6, 7, 8}, out)
}

func TestRingBufferClear(t *testing.T) {
	rb := NewRingBufferForDuration(16000, 100)
	assert.Equal(t, 3200, rb.Capacity())

	rb.Write(make([]byte, 100))
	rb.Clear()
	assert.Equal(t, 0, rb.Len())
}
