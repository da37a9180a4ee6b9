package engine

import (
	"context"
	"sync"
)

// Device grants scoped exclusive use of the accelerator.
//
// Optimization runs hold it for a whole iteration (batch render, backward
// pass and parameter update), so two runs sharing a Device interleave
// between iterations and never inside one.
type Device struct {
	name string
	sem  chan struct{}
}

// NewDevice creates an idle device.
func NewDevice(name string) *Device {
	return &Device{name: name, sem: make(chan struct{}, 1)}
}

// Name returns the device label used in logs.
func (d *Device) Name() string { return d.name }

// Acquire blocks until the device is free or ctx is done.
// The returned release func is idempotent.
func (d *Device) Acquire(ctx context.Context) (func(), error) {
	select {
	case d.sem <- struct{}{}:
		return sync.OnceFunc(func() { <-d.sem }), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Busy reports whether the device is currently held.
func (d *Device) Busy() bool {
	return len(d.sem) == 1
}
