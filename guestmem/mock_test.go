package guestmem

import (
	"context"
	"encoding/binary"
	"fmt"
)

// fakeMemory is a flat byte slice implementing the View seam.
type fakeMemory struct {
	data []byte
}

var _ View = (*fakeMemory)(nil)

func newFakeMemory(size uint32) *fakeMemory {
	return &fakeMemory{data: make([]byte, size)}
}

func (m *fakeMemory) inBounds(offset, n uint32) bool {
	return uint64(offset)+uint64(n) <= uint64(len(m.data))
}

func (m *fakeMemory) Size() uint32 {
	return uint32(len(m.data))
}

func (m *fakeMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	if !m.inBounds(offset, byteCount) {
		return nil, false
	}
	return m.data[offset : offset+byteCount : offset+byteCount], true
}

func (m *fakeMemory) Write(offset uint32, v []byte) bool {
	if !m.inBounds(offset, uint32(len(v))) {
		return false
	}
	copy(m.data[offset:], v)
	return true
}

func (m *fakeMemory) ReadUint32Le(offset uint32) (uint32, bool) {
	if !m.inBounds(offset, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.data[offset:]), true
}

func (m *fakeMemory) WriteUint32Le(offset, v uint32) bool {
	if !m.inBounds(offset, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.data[offset:], v)
	return true
}

func (m *fakeMemory) ReadUint64Le(offset uint32) (uint64, bool) {
	if !m.inBounds(offset, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.data[offset:]), true
}

func (m *fakeMemory) WriteUint64Le(offset uint32, v uint64) bool {
	if !m.inBounds(offset, 8) {
		return false
	}
	binary.LittleEndian.PutUint64(m.data[offset:], v)
	return true
}

// fakeFunc adapts a Go closure to the Fn seam.
type fakeFunc struct {
	run func(stack []uint64) error
}

func (f *fakeFunc) CallWithStack(_ context.Context, stack []uint64) error {
	return f.run(stack)
}

var _ Fn = (*fakeFunc)(nil)

// guestHeap is a bump allocator with call accounting, standing in for the
// guest's exported malloc and free.
type guestHeap struct {
	next     uint32
	failing  bool
	allocs   map[uint32]uint32
	frees    map[uint32]int
	mallocs  int
	freeCall int
}

func newGuestHeap() *guestHeap {
	return &guestHeap{
		next:   8,
		allocs: make(map[uint32]uint32),
		frees:  make(map[uint32]int),
	}
}

func (h *guestHeap) mallocFn() Fn {
	return &fakeFunc{run: func(stack []uint64) error {
		h.mallocs++
		if h.failing {
			stack[0] = 0
			return nil
		}
		size := uint32(stack[0])
		ptr := h.next
		h.next += size
		h.allocs[ptr] = size
		stack[0] = uint64(ptr)
		return nil
	}}
}

func (h *guestHeap) freeFn() Fn {
	return &fakeFunc{run: func(stack []uint64) error {
		h.freeCall++
		ptr := uint32(stack[0])
		if _, ok := h.allocs[ptr]; !ok {
			return fmt.Errorf("free of unknown pointer %d", ptr)
		}
		h.frees[ptr]++
		return nil
	}}
}
