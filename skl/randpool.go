package skl

import (
	"sync"

	"github.com/latticedb/skl/skl/fastrand"
)

// randPool hands out fastrand.Source values for height sampling. A single
// process-global generator would serialize every insert on one cache line;
// pooling per-goroutine sources instead means concurrent inserts almost
// never contend on the height draw.
var randPool = &sourcePool{
	pool: sync.Pool{New: func() any { return fastrand.New() }},
}

type sourcePool struct {
	pool sync.Pool
}

func (p *sourcePool) get() *fastrand.Source {
	return p.pool.Get().(*fastrand.Source)
}

func (p *sourcePool) put(s *fastrand.Source) {
	p.pool.Put(s)
}
