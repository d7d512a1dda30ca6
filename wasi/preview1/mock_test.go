package preview1

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/CharlesWiltgen/taglib-wasm-sub003/provider"
)

// fakeMemory is a flat byte slice standing in for guest linear memory.
// It implements the Memory seam the syscall handlers dispatch through,
// plus the extra read accessors the tests assert with.
type fakeMemory struct {
	data []byte
}

var _ Memory = (*fakeMemory)(nil)

func newFakeMemory(size uint32) *fakeMemory {
	return &fakeMemory{data: make([]byte, size)}
}

func (m *fakeMemory) ok(offset, n uint32) bool {
	return uint64(offset)+uint64(n) <= uint64(len(m.data))
}

func (m *fakeMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	if !m.ok(offset, byteCount) {
		return nil, false
	}
	return m.data[offset : offset+byteCount : offset+byteCount], true
}

func (m *fakeMemory) Write(offset uint32, v []byte) bool {
	if !m.ok(offset, uint32(len(v))) {
		return false
	}
	copy(m.data[offset:], v)
	return true
}

func (m *fakeMemory) ReadUint32Le(offset uint32) (uint32, bool) {
	if !m.ok(offset, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.data[offset:]), true
}

func (m *fakeMemory) WriteUint32Le(offset, v uint32) bool {
	if !m.ok(offset, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.data[offset:], v)
	return true
}

func (m *fakeMemory) WriteUint64Le(offset uint32, v uint64) bool {
	if !m.ok(offset, 8) {
		return false
	}
	binary.LittleEndian.PutUint64(m.data[offset:], v)
	return true
}

func (m *fakeMemory) ReadByte(offset uint32) (byte, bool) {
	if !m.ok(offset, 1) {
		return 0, false
	}
	return m.data[offset], true
}

func (m *fakeMemory) ReadUint64Le(offset uint32) (uint64, bool) {
	if !m.ok(offset, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.data[offset:]), true
}

// memFile is an in-memory provider handle with full cursor semantics.
type memFile struct {
	data   []byte
	pos    int64
	closed int
}

func (f *memFile) Read(p []byte) (int, error) {
	if f.pos >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	end := f.pos + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[f.pos:], p)
	f.pos = end
	return len(p), nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		base = int64(len(f.data))
	default:
		return 0, fmt.Errorf("bad whence %d", whence)
	}
	pos := base + offset
	if pos < 0 {
		return 0, fmt.Errorf("negative position %d", pos)
	}
	f.pos = pos
	return pos, nil
}

func (f *memFile) Truncate(size int64) error {
	if size < 0 {
		return fmt.Errorf("negative size %d", size)
	}
	if size <= int64(len(f.data)) {
		f.data = f.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, f.data)
		f.data = grown
	}
	return nil
}

func (f *memFile) Close() error {
	f.closed++
	return nil
}

// spyProvider records every Open so tests can assert the provider was, or
// was not, reached.
type spyProvider struct {
	files     map[string][]byte
	openCalls []string
	handles   map[string]*memFile
}

func newSpyProvider() *spyProvider {
	return &spyProvider{
		files:   make(map[string][]byte),
		handles: make(map[string]*memFile),
	}
}

func (p *spyProvider) Open(path string, opts provider.OpenOptions) (provider.Handle, error) {
	p.openCalls = append(p.openCalls, path)
	data, exists := p.files[path]
	if !exists && !opts.Create {
		return nil, fmt.Errorf("open %s: %w", path, fs.ErrNotExist)
	}
	if opts.Truncate {
		data = nil
	}
	h := &memFile{data: append([]byte(nil), data...)}
	p.handles[path] = h
	return h, nil
}

func (p *spyProvider) ReadFile(path string) ([]byte, error) {
	data, ok := p.files[path]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", path, fs.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

func (p *spyProvider) IsNotFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

var _ provider.Provider = (*spyProvider)(nil)

// brokenProvider fails every operation with an error its IsNotFound does
// not claim, standing in for permission and media failures.
type brokenProvider struct{}

func (brokenProvider) Open(string, provider.OpenOptions) (provider.Handle, error) {
	return nil, errors.New("permission denied")
}

func (brokenProvider) ReadFile(string) ([]byte, error) {
	return nil, errors.New("permission denied")
}

func (brokenProvider) IsNotFound(error) bool { return false }

// badReadHandle opens fine but fails every Read outright.
type badReadHandle struct{}

func (badReadHandle) Read([]byte) (int, error)       { return 0, errors.New("disk failure") }
func (badReadHandle) Write(p []byte) (int, error)    { return len(p), nil }
func (badReadHandle) Seek(int64, int) (int64, error) { return 0, nil }
func (badReadHandle) Truncate(int64) error           { return nil }
func (badReadHandle) Close() error                   { return nil }

type badReadProvider struct{}

func (badReadProvider) Open(string, provider.OpenOptions) (provider.Handle, error) {
	return badReadHandle{}, nil
}

func (badReadProvider) ReadFile(string) ([]byte, error) {
	return nil, errors.New("disk failure")
}

func (badReadProvider) IsNotFound(error) bool { return false }
