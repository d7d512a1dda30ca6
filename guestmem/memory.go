package guestmem

import (
	taglibwasm "github.com/CharlesWiltgen/taglib-wasm-sub003"
	"github.com/CharlesWiltgen/taglib-wasm-sub003/errors"
)

var (
	_ taglibwasm.Memory      = (*Memory)(nil)
	_ taglibwasm.MemorySizer = (*Memory)(nil)
)

// View is the slice of a runtime's linear-memory API this package needs.
// wazero's api.Memory satisfies it; tests substitute a flat byte slice.
type View interface {
	Size() uint32
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, data []byte) bool
	ReadUint32Le(offset uint32) (uint32, bool)
	WriteUint32Le(offset, v uint32) bool
	ReadUint64Le(offset uint32) (uint64, bool)
	WriteUint64Le(offset uint32, v uint64) bool
}

// Memory is a guarded view over a module's linear memory. The underlying
// View stays valid when the guest grows its heap, but byte slices read
// from it do not, so Read always copies.
type Memory struct {
	mem View
}

// NewMemory wraps a module's linear memory.
func NewMemory(mem View) *Memory {
	return &Memory{mem: mem}
}

// Size reports the current linear memory size in bytes.
func (m *Memory) Size() uint32 {
	return m.mem.Size()
}

// Read copies length bytes at offset out of guest memory.
func (m *Memory) Read(offset, length uint32) ([]byte, error) {
	buf, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseMemory, []string{"read"}, offset, length, m.mem.Size())
	}
	// The returned slice aliases guest memory; copy so callers hold a
	// view the guest cannot mutate or invalidate.
	out := make([]byte, length)
	copy(out, buf)
	return out, nil
}

// Write copies data into guest memory at offset.
func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseMemory, []string{"write"}, offset, uint32(len(data)), m.mem.Size())
	}
	return nil
}

// ReadU32 reads a little-endian uint32 at offset.
func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseMemory, []string{"read_u32"}, offset, 4, m.mem.Size())
	}
	return v, nil
}

// WriteU32 writes a little-endian uint32 at offset.
func (m *Memory) WriteU32(offset uint32, v uint32) error {
	if !m.mem.WriteUint32Le(offset, v) {
		return errors.OutOfBounds(errors.PhaseMemory, []string{"write_u32"}, offset, 4, m.mem.Size())
	}
	return nil
}

// ReadU64 reads a little-endian uint64 at offset.
func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseMemory, []string{"read_u64"}, offset, 8, m.mem.Size())
	}
	return v, nil
}

// WriteU64 writes a little-endian uint64 at offset.
func (m *Memory) WriteU64(offset uint32, v uint64) error {
	if !m.mem.WriteUint64Le(offset, v) {
		return errors.OutOfBounds(errors.PhaseMemory, []string{"write_u64"}, offset, 8, m.mem.Size())
	}
	return nil
}

// ReadCString reads bytes at offset up to the first NUL, bounded by max.
func (m *Memory) ReadCString(offset, max uint32) (string, error) {
	buf, ok := m.mem.Read(offset, max)
	if !ok {
		// The string may sit near the end of memory; fall back to
		// whatever remains.
		size := m.mem.Size()
		if offset >= size {
			return "", errors.OutOfBounds(errors.PhaseMemory, []string{"read_cstring"}, offset, max, size)
		}
		buf, ok = m.mem.Read(offset, size-offset)
		if !ok {
			return "", errors.OutOfBounds(errors.PhaseMemory, []string{"read_cstring"}, offset, max, size)
		}
	}
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), nil
		}
	}
	return string(buf), nil
}
