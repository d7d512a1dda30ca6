package taglibwasm

import "context"

// Memory represents the guest's WASM linear memory.
//
// Implementations must re-read from the underlying memory on every call:
// guest memory can grow between operations, which invalidates any buffer
// taken from it earlier. Caching a view across calls is a correctness bug,
// not an optimization.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU32(offset uint32, value uint32) error
	ReadU64(offset uint32) (uint64, error)
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer provides the current size of WASM linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator allocates memory inside the guest's linear memory, typically by
// calling allocator functions the guest exports. The guest heap is a
// separate heap: the host's garbage collector never reclaims these regions,
// so every Alloc must be paired with exactly one Free.
type Allocator interface {
	Alloc(ctx context.Context, size uint32) (uint32, error)
	Free(ctx context.Context, ptr uint32)
}
