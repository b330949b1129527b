package treesitter

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// ErrPoolClosed is returned when acquiring from a closed pool.
var ErrPoolClosed = errors.New("treesitter parser pool is closed")

// pooledParser is one CGO parser owned by a pool.
type pooledParser struct {
	parser    *tree_sitter.Parser
	closeOnce sync.Once
	closeFn   func()
}

func newPooledParser() *pooledParser {
	p := tree_sitter.NewParser()
	return &pooledParser{parser: p, closeFn: p.Close}
}

func (pp *pooledParser) close() {
	if pp == nil {
		return
	}
	pp.closeOnce.Do(func() {
		if pp.closeFn != nil {
			pp.closeFn()
		}
	})
}

// Pool bounds the number of live tree-sitter parsers. Parsers are not safe
// for concurrent use, so each outline holds one for its duration.
type Pool struct {
	size    int
	idle    chan *pooledParser
	closeCh chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once

	// lifecycle orders holder registration against Close.
	lifecycle sync.RWMutex
	holders   sync.WaitGroup
}

// NewPool returns a pool of size parsers; size <= 0 means one per CPU.
func NewPool(size int) *Pool {
	return newPoolWithFactory(size, newPooledParser)
}

func newPoolWithFactory(size int, factory func() *pooledParser) *Pool {
	if size <= 0 {
		size = max(runtime.NumCPU(), 1)
	}
	p := &Pool{
		size:    size,
		idle:    make(chan *pooledParser, size),
		closeCh: make(chan struct{}),
	}
	for range size {
		p.idle <- factory()
	}
	return p
}

// Capacity returns the pool size.
func (p *Pool) Capacity() int {
	if p == nil {
		return 0
	}
	return p.size
}

// acquire blocks until a parser is free. It fails when ctx is done or the
// pool is closed.
func (p *Pool) acquire(ctx context.Context) (*pooledParser, error) {
	if p == nil {
		return nil, ErrPoolClosed
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.closed.Load() {
			return nil, ErrPoolClosed
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.closeCh:
			return nil, ErrPoolClosed
		case pp := <-p.idle:
			if pp == nil {
				continue
			}
			p.lifecycle.RLock()
			if p.closed.Load() {
				p.lifecycle.RUnlock()
				pp.close()
				return nil, ErrPoolClosed
			}
			p.holders.Add(1)
			p.lifecycle.RUnlock()
			return pp, nil
		}
	}
}

func (p *Pool) release(pp *pooledParser) {
	if p == nil || pp == nil {
		return
	}
	defer p.holders.Done()

	if p.closed.Load() {
		pp.close()
		return
	}
	select {
	case p.idle <- pp:
	case <-p.closeCh:
		pp.close()
	}
}

// Close stops new acquisitions, waits for holders to release, and frees
// every parser.
func (p *Pool) Close() error {
	if p == nil {
		return nil
	}
	p.closeOnce.Do(func() {
		p.lifecycle.Lock()
		p.closed.Store(true)
		close(p.closeCh)
		p.lifecycle.Unlock()

		p.holders.Wait()

		for {
			select {
			case pp := <-p.idle:
				pp.close()
			default:
				return
			}
		}
	})
	return nil
}
