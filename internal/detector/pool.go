package detector

import (
	"errors"
	"sync"

	"github.com/roach88/metaop/internal/oplog"
	"github.com/roach88/metaop/internal/strategy"
)

// Source hands out detectors for batch processing.
type Source interface {
	// Acquire returns a Detector for exclusive use by the caller.
	Acquire() (*Detector, error)

	// Release gives a Detector back once the caller is done with it.
	Release(d *Detector)
}

// Factory builds a fresh Detector for every Acquire.
type Factory func() (*Detector, error)

// Acquire implements Source.
func (f Factory) Acquire() (*Detector, error) {
	return f()
}

// Release implements Source. Fresh detectors are simply dropped.
func (f Factory) Release(*Detector) {}

// Pool recycles detectors built from one configuration.
//
// Detectors are reset on Get so no cursor state leaks between operations.
//
// Thread-safety: Pool is safe for concurrent use; each Detector it hands
// out is not.
type Pool struct {
	pool sync.Pool
}

// NewPool validates cfgs by building one Detector and returns a pool of
// detectors sharing that configuration. Options that inject strategy
// instances (WithStrategy) are rejected since instances cannot be shared.
func NewPool(cfgs []strategy.Config, opts ...Option) (*Pool, error) {
	probe, err := New(cfgs, opts...)
	if err != nil {
		return nil, err
	}
	if len(probe.custom) > 0 {
		return nil, errors.New("detector pool: injected strategy instances cannot be shared; register a constructor instead")
	}

	p := &Pool{}
	p.pool.New = func() any {
		// Configuration was validated above, construction cannot fail.
		d, err := New(cfgs, opts...)
		if err != nil {
			panic(err)
		}
		return d
	}
	p.pool.Put(probe)
	return p, nil
}

// Get returns a reset Detector.
func (p *Pool) Get() *Detector {
	d := p.pool.Get().(*Detector)
	d.Reset()
	return d
}

// Put returns d to the pool.
func (p *Pool) Put(d *Detector) {
	if d != nil {
		p.pool.Put(d)
	}
}

// Run detects meta groups for op with a pooled Detector.
func (p *Pool) Run(op *oplog.Operation) (*Report, error) {
	d := p.Get()
	defer p.Put(d)
	return d.Run(op)
}

// Acquire implements Source.
func (p *Pool) Acquire() (*Detector, error) {
	return p.Get(), nil
}

// Release implements Source.
func (p *Pool) Release(d *Detector) {
	p.Put(d)
}
