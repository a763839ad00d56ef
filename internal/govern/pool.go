package govern

import (
	"sync"
)

// BufferKey identifies a pool bucket by buffer geometry and use.
type BufferKey struct {
	Width   int
	Height  int
	Variant string
}

// PixelBuffer is a reusable scratch buffer. Pix is sized for the key's
// geometry: four bytes per pixel for the "rgba" variant, one otherwise.
type PixelBuffer struct {
	Key BufferKey
	Pix []byte
}

func bytesPerPixel(variant string) int {
	if variant == "rgba" {
		return 4
	}
	return 1
}

// bufferPool holds released buffers grouped by key. The number of distinct
// keys is capped; when the cap is exceeded the oldest key bucket is dropped
// (FIFO by first release).
type bufferPool struct {
	mu      sync.Mutex
	maxKeys int
	free    map[BufferKey][]*PixelBuffer
	order   []BufferKey
}

func newBufferPool(maxKeys int) *bufferPool {
	if maxKeys <= 0 {
		maxKeys = 1
	}
	return &bufferPool{
		maxKeys: maxKeys,
		free:    make(map[BufferKey][]*PixelBuffer),
	}
}

func (p *bufferPool) acquire(key BufferKey) *PixelBuffer {
	p.mu.Lock()
	if bucket := p.free[key]; len(bucket) > 0 {
		buf := bucket[len(bucket)-1]
		p.free[key] = bucket[:len(bucket)-1]
		p.mu.Unlock()
		return buf
	}
	p.mu.Unlock()

	size := key.Width * key.Height * bytesPerPixel(key.Variant)
	if size < 0 {
		size = 0
	}
	return &PixelBuffer{Key: key, Pix: make([]byte, size)}
}

func (p *bufferPool) release(buf *PixelBuffer) {
	if buf == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, known := p.free[buf.Key]; !known {
		p.order = append(p.order, buf.Key)
	}
	p.free[buf.Key] = append(p.free[buf.Key], buf)

	for len(p.order) > p.maxKeys {
		oldest := p.order[0]
		p.order = p.order[1:]
		delete(p.free, oldest)
	}
}

func (p *bufferPool) keyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

func (p *bufferPool) drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = make(map[BufferKey][]*PixelBuffer)
	p.order = nil
}
