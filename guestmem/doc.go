// Package guestmem manages data exchange with a guest's linear memory.
//
// Memory wraps a module's linear memory behind the View seam and copies
// on every read, so no caller holds a byte slice that guest-triggered
// memory growth could invalidate.
// Allocator drives the guest's own exported malloc and free, which is the
// only safe way to obtain guest-visible buffers: all returned pointers must
// come from the guest's heap, never from host arithmetic.
//
// Alloc is a single bounds-checked allocation; Arena batches several
// allocations for one guest call and releases them together, including on
// error paths.
package guestmem
