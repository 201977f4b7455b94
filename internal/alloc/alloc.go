// Package alloc provides the allocator handles passed to modules and tasks.
package alloc

import "sync"

// Allocator hands out zeroed byte regions.
type Allocator interface {
	Alloc(size int) []byte
}

// Heap allocates from the Go heap. Memory is reclaimed by the GC.
type Heap struct{}

// Alloc returns a new zeroed region of size bytes.
func (Heap) Alloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	return make([]byte, size)
}

// DefaultChunkSize is the chunk size used by NewFrame when none is given.
const DefaultChunkSize = 64 * 1024

// Frame is a bump allocator whose allocations are released in bulk by Reset.
// Regions handed out before a Reset must not be used after it.
type Frame struct {
	mu        sync.Mutex
	chunkSize int
	chunks    [][]byte
	current   int
	offset    int
	allocated int
	resets    uint64
}

// NewFrame creates a frame allocator. chunkSize <= 0 selects DefaultChunkSize.
func NewFrame(chunkSize int) *Frame {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Frame{chunkSize: chunkSize}
}

// Alloc returns a zeroed region of size bytes from the current chunk,
// starting a new chunk when the current one is exhausted. Requests larger
// than the chunk size get a dedicated chunk.
func (f *Frame) Alloc(size int) []byte {
	if size <= 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.allocated += size

	if size > f.chunkSize {
		return make([]byte, size)
	}

	if len(f.chunks) == 0 || f.offset+size > len(f.chunks[f.current]) {
		f.nextChunk()
	}

	chunk := f.chunks[f.current]
	region := chunk[f.offset : f.offset+size : f.offset+size]
	clear(region)
	f.offset += size
	return region
}

func (f *Frame) nextChunk() {
	if len(f.chunks) > 0 && f.current+1 < len(f.chunks) {
		f.current++
	} else {
		f.chunks = append(f.chunks, make([]byte, f.chunkSize))
		f.current = len(f.chunks) - 1
	}
	f.offset = 0
}

// Reset releases every region handed out since the previous Reset. Chunks are
// kept for reuse.
func (f *Frame) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.current = 0
	f.offset = 0
	f.allocated = 0
	f.resets++
}

// Allocated returns the number of bytes handed out since the last Reset.
func (f *Frame) Allocated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allocated
}

// Resets returns how many times the frame has been reset.
func (f *Frame) Resets() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}
