package preview1

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	tlerrors "github.com/CharlesWiltgen/taglib-wasm-sub003/errors"
	"github.com/CharlesWiltgen/taglib-wasm-sub003/provider"
)

var testRoot = filepath.FromSlash("/real/data")

func newTestHost(p provider.Provider) *Host {
	return NewHost(Config{
		Provider: p,
		Preopens: map[string]string{"/data": testRoot},
	})
}

// writeIovec lays out one iovec at iovPtr pointing at base/length.
func writeIovec(m *fakeMemory, iovPtr, base, length uint32) {
	m.WriteUint32Le(iovPtr, base)
	m.WriteUint32Le(iovPtr+4, length)
}

func openPath(t *testing.T, h *Host, m *fakeMemory, path string, oflags, rights uint64) (uint32, Errno) {
	t.Helper()
	const pathPtr, fdPtr = 1024, 2048
	if !m.Write(pathPtr, []byte(path)) {
		t.Fatal("write path")
	}
	stack := []uint64{3, 0, pathPtr, uint64(len(path)), oflags, rights, 0, 0, fdPtr}
	errno := h.pathOpen(context.Background(), m, stack)
	if errno != ESUCCESS {
		return 0, errno
	}
	fd, _ := m.ReadUint32Le(fdPtr)
	return fd, ESUCCESS
}

func TestPreopenRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newSpyProvider()
	h := newTestHost(p)
	m := newFakeMemory(65536)

	fd, errno := openPath(t, h, m, "song.txt", oflagCreat, rightFDWrite)
	if errno != ESUCCESS {
		t.Fatalf("path_open: %v", errno)
	}

	// fd_write b"hello"
	const iovPtr, dataPtr, nPtr = 512, 3000, 600
	if !m.Write(dataPtr, []byte("hello")) {
		t.Fatal("write payload")
	}
	writeIovec(m, iovPtr, dataPtr, 5)
	if errno := h.fdWrite(ctx, m, []uint64{uint64(fd), iovPtr, 1, nPtr}); errno != ESUCCESS {
		t.Fatalf("fd_write: %v", errno)
	}
	if n, _ := m.ReadUint32Le(nPtr); n != 5 {
		t.Errorf("nwritten = %d, want 5", n)
	}

	// fd_seek(0, SET)
	if errno := h.fdSeek(ctx, m, []uint64{uint64(fd), 0, 0, 608}); errno != ESUCCESS {
		t.Fatalf("fd_seek: %v", errno)
	}
	if pos, _ := m.ReadUint64Le(608); pos != 0 {
		t.Errorf("seek position = %d, want 0", pos)
	}

	// fd_read returns exactly b"hello"
	const readPtr = 4000
	writeIovec(m, iovPtr, readPtr, 5)
	if errno := h.fdRead(ctx, m, []uint64{uint64(fd), iovPtr, 1, nPtr}); errno != ESUCCESS {
		t.Fatalf("fd_read: %v", errno)
	}
	if n, _ := m.ReadUint32Le(nPtr); n != 5 {
		t.Errorf("nread = %d, want 5", n)
	}
	got, _ := m.Read(readPtr, 5)
	if !bytes.Equal(got, []byte("hello")) {
		t.Errorf("read back %q, want %q", got, "hello")
	}

	// exhausted file reads zero bytes
	if errno := h.fdRead(ctx, m, []uint64{uint64(fd), iovPtr, 1, nPtr}); errno != ESUCCESS {
		t.Fatalf("fd_read at EOF: %v", errno)
	}
	if n, _ := m.ReadUint32Le(nPtr); n != 0 {
		t.Errorf("nread at EOF = %d, want 0", n)
	}

	if errno := h.fdClose(ctx, m, []uint64{uint64(fd)}); errno != ESUCCESS {
		t.Fatalf("fd_close: %v", errno)
	}
}

func TestTraversalRejected(t *testing.T) {
	p := newSpyProvider()
	h := newTestHost(p)
	m := newFakeMemory(65536)

	_, errno := openPath(t, h, m, "../../etc/passwd", 0, 0)
	if errno != ENOTCAPABLE {
		t.Fatalf("path_open traversal = %v, want ENOTCAPABLE", errno)
	}
	if len(p.openCalls) != 0 {
		t.Errorf("traversal reached the provider: %v", p.openCalls)
	}
}

func TestFdWriteStdio(t *testing.T) {
	ctx := context.Background()
	var stdout, stderr bytes.Buffer
	h := NewHost(Config{
		Provider: newSpyProvider(),
		Stdout:   &stdout,
		Stderr:   &stderr,
	})
	m := newFakeMemory(65536)

	const iovPtr, dataPtr, nPtr = 512, 1000, 600
	m.Write(dataPtr, []byte("out\nerr\n"))
	writeIovec(m, iovPtr, dataPtr, 4)
	if errno := h.fdWrite(ctx, m, []uint64{1, iovPtr, 1, nPtr}); errno != ESUCCESS {
		t.Fatalf("fd_write stdout: %v", errno)
	}
	writeIovec(m, iovPtr, dataPtr+4, 4)
	if errno := h.fdWrite(ctx, m, []uint64{2, iovPtr, 1, nPtr}); errno != ESUCCESS {
		t.Fatalf("fd_write stderr: %v", errno)
	}
	if stdout.String() != "out\n" {
		t.Errorf("stdout = %q, want %q", stdout.String(), "out\n")
	}
	if stderr.String() != "err\n" {
		t.Errorf("stderr = %q, want %q", stderr.String(), "err\n")
	}
}

func TestFdWriteGatheredIovecs(t *testing.T) {
	ctx := context.Background()
	var stdout bytes.Buffer
	h := NewHost(Config{Provider: newSpyProvider(), Stdout: &stdout})
	m := newFakeMemory(65536)

	m.Write(1000, []byte("hel"))
	m.Write(2000, []byte("lo"))
	writeIovec(m, 512, 1000, 3)
	writeIovec(m, 520, 3000, 0) // zero-length entry is skipped
	writeIovec(m, 528, 2000, 2)
	if errno := h.fdWrite(ctx, m, []uint64{1, 512, 3, 600}); errno != ESUCCESS {
		t.Fatalf("fd_write: %v", errno)
	}
	if stdout.String() != "hello" {
		t.Errorf("gathered write = %q, want %q", stdout.String(), "hello")
	}
	if n, _ := m.ReadUint32Le(600); n != 5 {
		t.Errorf("nwritten = %d, want 5", n)
	}
}

func TestFdReadBadFD(t *testing.T) {
	ctx := context.Background()
	h := newTestHost(newSpyProvider())
	m := newFakeMemory(65536)

	for _, fd := range []uint64{0, 1, 2, 3, 99} {
		if errno := h.fdRead(ctx, m, []uint64{fd, 512, 1, 600}); errno != EBADF {
			t.Errorf("fd_read(%d) = %v, want EBADF", fd, errno)
		}
	}
}

func TestFdReadFaultingIovec(t *testing.T) {
	ctx := context.Background()
	p := newSpyProvider()
	p.files[filepath.Join(testRoot, "a.mp3")] = []byte("data")
	h := newTestHost(p)
	m := newFakeMemory(65536)

	fd, errno := openPath(t, h, m, "a.mp3", 0, 0)
	if errno != ESUCCESS {
		t.Fatalf("path_open: %v", errno)
	}
	// iovec leaving too little room before the end of memory
	writeIovec(m, 512, 65534, 64)
	if errno := h.fdRead(ctx, m, []uint64{uint64(fd), 512, 1, 600}); errno != EFAULT {
		t.Errorf("fd_read with bad iovec = %v, want EFAULT", errno)
	}
}

func TestFdReadHardErrorIsEIO(t *testing.T) {
	ctx := context.Background()
	h := newTestHost(badReadProvider{})
	m := newFakeMemory(65536)

	fd, errno := openPath(t, h, m, "a.mp3", 0, 0)
	if errno != ESUCCESS {
		t.Fatalf("path_open: %v", errno)
	}
	// A failing read must surface as EIO, never as a clean short read
	// the guest would mistake for end-of-file.
	writeIovec(m, 512, 4000, 16)
	if errno := h.fdRead(ctx, m, []uint64{uint64(fd), 512, 1, 600}); errno != EIO {
		t.Errorf("fd_read over failing handle = %v, want EIO", errno)
	}
}

func TestPrestat(t *testing.T) {
	ctx := context.Background()
	h := newTestHost(newSpyProvider())
	m := newFakeMemory(65536)

	if errno := h.fdPrestatGet(ctx, m, []uint64{3, 1024}); errno != ESUCCESS {
		t.Fatalf("fd_prestat_get: %v", errno)
	}
	if tag, _ := m.ReadUint32Le(1024); tag != 0 {
		t.Errorf("prestat tag = %d, want 0 (dir)", tag)
	}
	if nameLen, _ := m.ReadUint32Le(1028); nameLen != 5 {
		t.Errorf("prestat name length = %d, want 5", nameLen)
	}

	if errno := h.fdPrestatDirName(ctx, m, []uint64{3, 2048, 5}); errno != ESUCCESS {
		t.Fatalf("fd_prestat_dir_name: %v", errno)
	}
	name, _ := m.Read(2048, 5)
	if string(name) != "/data" {
		t.Errorf("prestat name = %q, want %q", name, "/data")
	}

	if errno := h.fdPrestatDirName(ctx, m, []uint64{3, 2048, 2}); errno != EINVAL {
		t.Errorf("short name buffer = %v, want EINVAL", errno)
	}
	if errno := h.fdPrestatGet(ctx, m, []uint64{0, 1024}); errno != EBADF {
		t.Errorf("fd_prestat_get(0) = %v, want EBADF", errno)
	}
	if errno := h.fdPrestatGet(ctx, m, []uint64{42, 1024}); errno != EBADF {
		t.Errorf("fd_prestat_get(42) = %v, want EBADF", errno)
	}
}

func TestFdstatFiletypes(t *testing.T) {
	ctx := context.Background()
	p := newSpyProvider()
	p.files[filepath.Join(testRoot, "a.mp3")] = []byte("data")
	h := newTestHost(p)
	m := newFakeMemory(65536)

	if errno := h.fdFdstatGet(ctx, m, []uint64{3, 1024}); errno != ESUCCESS {
		t.Fatalf("fd_fdstat_get(preopen): %v", errno)
	}
	if ft, _ := m.ReadByte(1024); ft != filetypeDirectory {
		t.Errorf("preopen filetype = %d, want %d", ft, filetypeDirectory)
	}

	fd, errno := openPath(t, h, m, "a.mp3", 0, 0)
	if errno != ESUCCESS {
		t.Fatal(errno)
	}
	if errno := h.fdFdstatGet(ctx, m, []uint64{uint64(fd), 1024}); errno != ESUCCESS {
		t.Fatalf("fd_fdstat_get(file): %v", errno)
	}
	if ft, _ := m.ReadByte(1024); ft != filetypeRegularFile {
		t.Errorf("file filetype = %d, want %d", ft, filetypeRegularFile)
	}
}

func TestFilestatSizeAndCursorPreserved(t *testing.T) {
	ctx := context.Background()
	p := newSpyProvider()
	real := filepath.Join(testRoot, "a.mp3")
	p.files[real] = []byte("0123456789")
	h := newTestHost(p)
	m := newFakeMemory(65536)

	fd, errno := openPath(t, h, m, "a.mp3", 0, 0)
	if errno != ESUCCESS {
		t.Fatal(errno)
	}
	// move the cursor first, stat must not disturb it
	if errno := h.fdSeek(ctx, m, []uint64{uint64(fd), 4, 0, 600}); errno != ESUCCESS {
		t.Fatal(errno)
	}
	if errno := h.fdFilestatGet(ctx, m, []uint64{uint64(fd), 1024}); errno != ESUCCESS {
		t.Fatalf("fd_filestat_get: %v", errno)
	}
	if size, _ := m.ReadUint64Le(1024 + 32); size != 10 {
		t.Errorf("filestat size = %d, want 10", size)
	}
	if ft, _ := m.ReadByte(1024 + 16); ft != filetypeRegularFile {
		t.Errorf("filestat filetype = %d, want %d", ft, filetypeRegularFile)
	}
	if pos := p.handles[real].pos; pos != 4 {
		t.Errorf("cursor moved to %d by stat, want 4", pos)
	}
}

func TestPathFilestatGet(t *testing.T) {
	ctx := context.Background()
	p := newSpyProvider()
	p.files[filepath.Join(testRoot, "a.mp3")] = []byte("abc")
	h := newTestHost(p)
	m := newFakeMemory(65536)

	m.Write(1024, []byte("a.mp3"))
	if errno := h.pathFilestatGet(ctx, m, []uint64{3, 0, 1024, 5, 2048}); errno != ESUCCESS {
		t.Fatalf("path_filestat_get: %v", errno)
	}
	if size, _ := m.ReadUint64Le(2048 + 32); size != 3 {
		t.Errorf("size = %d, want 3", size)
	}

	m.Write(1024, []byte("nope!"))
	if errno := h.pathFilestatGet(ctx, m, []uint64{3, 0, 1024, 5, 2048}); errno != ENOENT {
		t.Errorf("missing file = %v, want ENOENT", errno)
	}
}

func TestPathFilestatGetProviderFailure(t *testing.T) {
	ctx := context.Background()
	h := newTestHost(brokenProvider{})
	m := newFakeMemory(65536)

	m.Write(1024, []byte("a.mp3"))
	if errno := h.pathFilestatGet(ctx, m, []uint64{3, 0, 1024, 5, 2048}); errno != EINVAL {
		t.Errorf("provider failure = %v, want EINVAL", errno)
	}
}

func TestFilestatSetSize(t *testing.T) {
	ctx := context.Background()
	p := newSpyProvider()
	real := filepath.Join(testRoot, "a.mp3")
	p.files[real] = []byte("0123456789")
	h := newTestHost(p)
	m := newFakeMemory(65536)

	fd, errno := openPath(t, h, m, "a.mp3", 0, rightFDWrite)
	if errno != ESUCCESS {
		t.Fatal(errno)
	}
	if errno := h.fdFilestatSetSize(ctx, m, []uint64{uint64(fd), 4}); errno != ESUCCESS {
		t.Fatalf("fd_filestat_set_size: %v", errno)
	}
	if got := len(p.handles[real].data); got != 4 {
		t.Errorf("size after truncate = %d, want 4", got)
	}
}

func TestArgsAndEnvironEmpty(t *testing.T) {
	ctx := context.Background()
	h := newTestHost(newSpyProvider())
	m := newFakeMemory(65536)

	for name, fn := range map[string]syscall{
		"args_sizes_get":    h.argsSizesGet,
		"environ_sizes_get": h.environSizesGet,
	} {
		if errno := fn(ctx, m, []uint64{1024, 1028}); errno != ESUCCESS {
			t.Fatalf("%s: %v", name, errno)
		}
		count, _ := m.ReadUint32Le(1024)
		size, _ := m.ReadUint32Le(1028)
		if count != 0 || size != 0 {
			t.Errorf("%s = (%d, %d), want (0, 0)", name, count, size)
		}
	}
}

func TestClockTimeGet(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	h := NewHost(Config{
		Provider: newSpyProvider(),
		Now:      func() time.Time { return now },
	})
	m := newFakeMemory(65536)

	if errno := h.clockTimeGet(ctx, m, []uint64{0, 0, 1024}); errno != ESUCCESS {
		t.Fatalf("clock_time_get: %v", errno)
	}
	got, _ := m.ReadUint64Le(1024)
	if got != uint64(now.UnixNano()) {
		t.Errorf("time = %d, want %d", got, now.UnixNano())
	}
}

func TestProcExitPanicsWithGuestExit(t *testing.T) {
	h := newTestHost(newSpyProvider())
	m := newFakeMemory(65536)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("proc_exit did not panic")
		}
		exit, ok := r.(*tlerrors.GuestExit)
		if !ok {
			t.Fatalf("panic value is %T, want *errors.GuestExit", r)
		}
		if exit.Code != 3 {
			t.Errorf("exit code = %d, want 3", exit.Code)
		}
	}()
	h.procExit(context.Background(), m, []uint64{3})
}

func TestSeekInvalidWhence(t *testing.T) {
	ctx := context.Background()
	p := newSpyProvider()
	p.files[filepath.Join(testRoot, "a.mp3")] = []byte("abc")
	h := newTestHost(p)
	m := newFakeMemory(65536)

	fd, errno := openPath(t, h, m, "a.mp3", 0, 0)
	if errno != ESUCCESS {
		t.Fatal(errno)
	}
	if errno := h.fdSeek(ctx, m, []uint64{uint64(fd), 0, 7, 600}); errno != EINVAL {
		t.Errorf("bad whence = %v, want EINVAL", errno)
	}
}

func TestFdTell(t *testing.T) {
	ctx := context.Background()
	p := newSpyProvider()
	p.files[filepath.Join(testRoot, "a.mp3")] = []byte("0123456789")
	h := newTestHost(p)
	m := newFakeMemory(65536)

	fd, errno := openPath(t, h, m, "a.mp3", 0, 0)
	if errno != ESUCCESS {
		t.Fatal(errno)
	}
	if errno := h.fdSeek(ctx, m, []uint64{uint64(fd), 6, 0, 600}); errno != ESUCCESS {
		t.Fatal(errno)
	}
	if errno := h.fdTell(ctx, m, []uint64{uint64(fd), 700}); errno != ESUCCESS {
		t.Fatalf("fd_tell: %v", errno)
	}
	if pos, _ := m.ReadUint64Le(700); pos != 6 {
		t.Errorf("fd_tell = %d, want 6", pos)
	}
}
