package filter

import (
	"sync"

	"github.com/wuyize25/oidn/internal/device"
	"github.com/wuyize25/oidn/internal/tensor"
)

// tensorArena reuses device tensors across commits. The execution core
// does not pool allocations, so buffer reuse between pipeline rebuilds
// is the filter's job.
type tensorArena struct {
	dev  device.Device
	free map[arenaKey][]*device.Tensor
	held []*device.Tensor
	mu   sync.Mutex
}

// arenaKey identifies interchangeable buffers. Storage is part of the
// key so a recycled device buffer is never handed out for a host
// request of the same size.
type arenaKey struct {
	size    int
	storage device.Storage
}

func newTensorArena(dev device.Device) *tensorArena {
	return &tensorArena{
		dev:  dev,
		free: make(map[arenaKey][]*device.Tensor),
	}
}

// Get returns a tensor matching desc, reusing a previously released one
// of the same byte size and storage class when possible.
func (a *tensorArena) Get(desc tensor.Desc, storage device.Storage) (*device.Tensor, error) {
	a.mu.Lock()
	key := arenaKey{size: desc.ByteSize(), storage: storage}
	if list := a.free[key]; len(list) > 0 {
		t := list[len(list)-1]
		a.free[key] = list[:len(list)-1]
		a.mu.Unlock()
		view, err := device.NewTensorView(t.Buffer(), desc, 0)
		if err != nil {
			return nil, err
		}
		a.track(view)
		return view, nil
	}
	a.mu.Unlock()

	t, err := a.dev.NewTensor(desc, storage)
	if err != nil {
		return nil, err
	}
	a.track(t)
	return t, nil
}

func (a *tensorArena) track(t *device.Tensor) {
	a.mu.Lock()
	a.held = append(a.held, t)
	a.mu.Unlock()
}

// Recycle returns all held tensors to the free lists, keeping the
// underlying buffers alive for the next commit.
func (a *tensorArena) Recycle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, t := range a.held {
		key := arenaKey{size: t.Buffer().ByteSize(), storage: t.Buffer().Storage()}
		a.free[key] = append(a.free[key], t)
	}
	a.held = nil
}

// Release frees every buffer the arena has ever handed out.
func (a *tensorArena) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, t := range a.held {
		t.Release()
	}
	a.held = nil
	for _, list := range a.free {
		for _, t := range list {
			t.Release()
		}
	}
	a.free = make(map[arenaKey][]*device.Tensor)
}
