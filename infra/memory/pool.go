package memory

import "sync"

// Pool is a typed wrapper over sync.Pool.
type Pool[T any] struct {
	p *sync.Pool
}

func NewPool[T any](ctor func() *T) *Pool[T] {
	return &Pool[T]{
		p: &sync.Pool{
			New: func() any { return ctor() },
		},
	}
}

func (p *Pool[T]) Get() *T {
	return p.p.Get().(*T)
}

func (p *Pool[T]) Put(v *T) {
	p.p.Put(v)
}

// maxPooled keeps one oversized request from pinning a large buffer.
const maxPooled = 1 << 20

// BufferPool hands out byte slices of a requested length.
type BufferPool struct {
	pool *Pool[[]byte]
}

func NewBufferPool(initialCap int) *BufferPool {
	return &BufferPool{
		pool: NewPool(func() *[]byte {
			b := make([]byte, 0, initialCap)
			return &b
		}),
	}
}

// Get returns a buffer of length n. Its contents are undefined.
func (p *BufferPool) Get(n int) *[]byte {
	b := p.pool.Get()
	if cap(*b) < n {
		*b = make([]byte, n)
	}
	*b = (*b)[:n]
	return b
}

func (p *BufferPool) Put(b *[]byte) {
	if cap(*b) > maxPooled {
		return
	}
	*b = (*b)[:0]
	p.pool.Put(b)
}
