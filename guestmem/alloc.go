package guestmem

import (
	"context"

	"go.uber.org/zap"

	taglibwasm "github.com/CharlesWiltgen/taglib-wasm-sub003"
	"github.com/CharlesWiltgen/taglib-wasm-sub003/errors"
)

var _ taglibwasm.Allocator = (*Allocator)(nil)

// Fn is a callable guest export. wazero's api.Function satisfies it.
type Fn interface {
	CallWithStack(ctx context.Context, stack []uint64) error
}

// Allocator obtains guest-heap buffers through the guest's exported
// malloc and free. The call stack buffer is reused across calls, so an
// Allocator must not be shared between goroutines.
type Allocator struct {
	mem    *Memory
	malloc Fn
	free   Fn
	stack  []uint64
	log    *zap.Logger
}

// NewAllocator binds the guest's allocator exports.
func NewAllocator(mem *Memory, malloc, free Fn, log *zap.Logger) *Allocator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Allocator{
		mem:    mem,
		malloc: malloc,
		free:   free,
		stack:  make([]uint64, 1),
		log:    log,
	}
}

// Alloc requests size bytes from the guest heap and returns the raw guest
// address. Most callers want Buffer instead.
func (a *Allocator) Alloc(ctx context.Context, size uint32) (uint32, error) {
	if size == 0 {
		return 0, errors.InvalidInput(errors.PhaseMemory, "zero-size allocation")
	}
	a.stack[0] = uint64(size)
	if err := a.malloc.CallWithStack(ctx, a.stack); err != nil {
		return 0, errors.Wrap(errors.PhaseMemory, errors.KindAllocation, err, "guest malloc trapped")
	}
	ptr := uint32(a.stack[0])
	if ptr == 0 {
		return 0, errors.AllocationFailed(errors.PhaseMemory, size)
	}
	return ptr, nil
}

// Free returns a raw guest address to the guest heap.
func (a *Allocator) Free(ctx context.Context, ptr uint32) {
	a.stack[0] = uint64(ptr)
	if err := a.free.CallWithStack(ctx, a.stack); err != nil {
		// A trapping free leaves the instance unusable anyway; log and
		// let the owning module's disposal tear everything down.
		a.log.Warn("guest free trapped", zap.Uint32("ptr", ptr), zap.Error(err))
	}
}

// Buffer allocates size bytes and wraps them in a bounds-checked Alloc.
func (a *Allocator) Buffer(ctx context.Context, size uint32) (*Alloc, error) {
	ptr, err := a.Alloc(ctx, size)
	if err != nil {
		return nil, err
	}
	return &Alloc{owner: a, ptr: ptr, size: size}, nil
}

// Alloc is one live guest-heap allocation. All accessors are offset
// relative and bounds-checked against the allocation's own size, not
// against linear memory, so a stray offset cannot reach a neighboring
// allocation even when memory would tolerate it.
type Alloc struct {
	owner *Allocator
	ptr   uint32
	size  uint32
	freed bool
}

// Ptr returns the guest address of the allocation.
func (al *Alloc) Ptr() uint32 {
	return al.ptr
}

// Size returns the allocation size in bytes.
func (al *Alloc) Size() uint32 {
	return al.size
}

func (al *Alloc) check(offset, length uint32) error {
	if al.freed {
		return errors.InvalidInput(errors.PhaseMemory, "use of freed allocation")
	}
	if offset > al.size || length > al.size-offset {
		return errors.OutOfBounds(errors.PhaseMemory, []string{"alloc"}, offset, length, al.size)
	}
	return nil
}

// Write copies data into the allocation at offset.
func (al *Alloc) Write(offset uint32, data []byte) error {
	if err := al.check(offset, uint32(len(data))); err != nil {
		return err
	}
	return al.owner.mem.Write(al.ptr+offset, data)
}

// Read copies length bytes out of the allocation at offset.
func (al *Alloc) Read(offset, length uint32) ([]byte, error) {
	if err := al.check(offset, length); err != nil {
		return nil, err
	}
	return al.owner.mem.Read(al.ptr+offset, length)
}

// WriteString writes s at offset followed by a NUL terminator.
func (al *Alloc) WriteString(offset uint32, s string) error {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return al.Write(offset, buf)
}

// Uint32 reads a little-endian uint32 at offset.
func (al *Alloc) Uint32(offset uint32) (uint32, error) {
	if err := al.check(offset, 4); err != nil {
		return 0, err
	}
	return al.owner.mem.ReadU32(al.ptr + offset)
}

// PutUint32 writes a little-endian uint32 at offset.
func (al *Alloc) PutUint32(offset uint32, v uint32) error {
	if err := al.check(offset, 4); err != nil {
		return err
	}
	return al.owner.mem.WriteU32(al.ptr+offset, v)
}

// Free returns the allocation to the guest heap. Safe to call more than
// once; only the first call reaches the guest.
func (al *Alloc) Free(ctx context.Context) {
	if al.freed {
		return
	}
	al.freed = true
	al.owner.Free(ctx, al.ptr)
}

// Arena batches the allocations of one guest call so error paths release
// everything with a single deferred call.
type Arena struct {
	alloc  *Allocator
	allocs []*Alloc
}

// NewArena creates an arena over alloc.
func NewArena(alloc *Allocator) *Arena {
	return &Arena{alloc: alloc}
}

func (ar *Arena) track(al *Alloc, err error) (*Alloc, error) {
	if err != nil {
		return nil, err
	}
	ar.allocs = append(ar.allocs, al)
	return al, nil
}

// AllocBuffer allocates len(data) bytes and fills them with data.
func (ar *Arena) AllocBuffer(ctx context.Context, data []byte) (*Alloc, error) {
	al, err := ar.track(ar.alloc.Buffer(ctx, uint32(len(data))))
	if err != nil {
		return nil, err
	}
	if err := al.Write(0, data); err != nil {
		return nil, err
	}
	return al, nil
}

// AllocString allocates s as a NUL-terminated guest string.
func (ar *Arena) AllocString(ctx context.Context, s string) (*Alloc, error) {
	al, err := ar.track(ar.alloc.Buffer(ctx, uint32(len(s)+1)))
	if err != nil {
		return nil, err
	}
	if err := al.WriteString(0, s); err != nil {
		return nil, err
	}
	return al, nil
}

// AllocUint32 allocates a zeroed 4-byte out parameter.
func (ar *Arena) AllocUint32(ctx context.Context) (*Alloc, error) {
	al, err := ar.track(ar.alloc.Buffer(ctx, 4))
	if err != nil {
		return nil, err
	}
	if err := al.PutUint32(0, 0); err != nil {
		return nil, err
	}
	return al, nil
}

// Release frees every allocation in reverse order. Idempotent, and
// tolerant of allocations already freed individually.
func (ar *Arena) Release(ctx context.Context) {
	for i := len(ar.allocs) - 1; i >= 0; i-- {
		ar.allocs[i].Free(ctx)
	}
	ar.allocs = nil
}
