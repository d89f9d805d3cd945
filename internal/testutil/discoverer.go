package testutil

import (
	"context"
	"sync"

	"github.com/roach88/pcmcirun/internal/discovery"
)

// ScriptedDiscoverer is a discovery.Discoverer that plays back a fixed
// response and records how it was called.
//
// Exactly one behaviour applies, checked in order: Panic, Hang, then
// Links/Err.
//
// Thread-safety: Discover may run on a worker goroutine while the test reads
// Calls or LastRequest.
type ScriptedDiscoverer struct {
	Links discovery.LinkDict
	Err   error

	// Panic, if non-nil, is raised inside Discover.
	Panic any

	// Hang blocks until ctx is done and returns ctx.Err().
	// If IgnoreCancel is also set, it blocks until Release is called instead.
	Hang         bool
	IgnoreCancel bool

	mu          sync.Mutex
	calls       int
	last        discovery.Request
	hadDeadline bool
	release     chan struct{}
	once        sync.Once
}

// Discover implements discovery.Discoverer.
func (d *ScriptedDiscoverer) Discover(ctx context.Context, req discovery.Request) (discovery.LinkDict, error) {
	d.mu.Lock()
	d.calls++
	d.last = req
	_, d.hadDeadline = ctx.Deadline()
	release := d.releaseChan()
	d.mu.Unlock()

	switch {
	case d.Panic != nil:
		panic(d.Panic)
	case d.Hang && d.IgnoreCancel:
		<-release
		return nil, d.Err
	case d.Hang:
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return d.Links, d.Err
}

// Release unblocks a discoverer that hangs ignoring cancellation.
func (d *ScriptedDiscoverer) Release() {
	d.mu.Lock()
	release := d.releaseChan()
	d.mu.Unlock()
	d.once.Do(func() { close(release) })
}

// releaseChan must be called with d.mu held.
func (d *ScriptedDiscoverer) releaseChan() chan struct{} {
	if d.release == nil {
		d.release = make(chan struct{})
	}
	return d.release
}

// Calls returns how many times Discover ran.
func (d *ScriptedDiscoverer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// LastRequest returns the most recent request and whether its context carried
// a deadline.
func (d *ScriptedDiscoverer) LastRequest() (discovery.Request, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.hadDeadline
}
