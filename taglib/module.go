package taglib

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/CharlesWiltgen/taglib-wasm-sub003/errors"
	"github.com/CharlesWiltgen/taglib-wasm-sub003/guestmem"
	"github.com/CharlesWiltgen/taglib-wasm-sub003/provider"
	"github.com/CharlesWiltgen/taglib-wasm-sub003/wasi/preview1"
	"github.com/CharlesWiltgen/taglib-wasm-sub003/wire"
)

// Guest export names.
const (
	exportReadTags      = "tl_read_tags"
	exportReadTagsEx    = "tl_read_tags_ex"
	exportWriteTags     = "tl_write_tags"
	exportMalloc        = "tl_malloc"
	exportFree          = "tl_free"
	exportVersion       = "tl_version"
	exportAPIVersion    = "tl_api_version"
	exportLastError     = "tl_get_last_error"
	exportLastErrorCode = "tl_get_last_error_code"
	exportClearError    = "tl_clear_error"
	exportInitialize    = "_initialize"
)

// Guest error messages are NUL-terminated; this caps how far the host
// will scan for the terminator.
const maxErrorMessage = 4096

// Module is one loaded guest instance together with the runtime, WASI
// host, and allocator serving it. Public methods serialize on an internal
// mutex; see the package documentation for the concurrency model.
type Module struct {
	mu     sync.Mutex
	closed bool

	runtime wazero.Runtime
	guest   api.Module
	wasi    api.Closer
	host    *preview1.Host

	mem   *guestmem.Memory
	alloc *guestmem.Allocator

	readTags      api.Function
	readTagsEx    api.Function
	writeTags     api.Function
	version       api.Function
	apiVersion    api.Function
	lastError     api.Function
	lastErrorCode api.Function
	clearError    api.Function

	log *zap.Logger
}

// Load obtains the guest binary per cfg, instantiates it against a fresh
// runtime with the WASI host wired in, and resolves its exports. The
// caller owns the returned Module and must Close it.
func Load(ctx context.Context, cfg Config) (*Module, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	binary, err := fetchBinary(ctx, cfg)
	if err != nil {
		return nil, err
	}
	fs := cfg.Provider
	if fs == nil {
		fs = provider.NewOS()
	}

	r := wazero.NewRuntime(ctx)
	ok := false
	defer func() {
		if !ok {
			r.Close(ctx)
		}
	}()

	host := preview1.NewHost(preview1.Config{
		Provider: fs,
		Preopens: cfg.Preopens,
		Stdout:   cfg.Stdout,
		Stderr:   cfg.Stderr,
		Logger:   log,
	})
	wasiCloser, err := preview1.Instantiate(ctx, r, host)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	compiled, err := r.CompileModule(ctx, binary)
	if err != nil {
		return nil, errors.Load("compile guest module", err)
	}
	// The guest is a reactor, not a command: suppress _start and run
	// _initialize by hand below.
	guest, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().
		WithName("taglib").
		WithStartFunctions())
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	if guest.Memory() == nil {
		return nil, errors.MissingExport("memory")
	}
	required := func(name string) (api.Function, error) {
		fn := guest.ExportedFunction(name)
		if fn == nil {
			return nil, errors.MissingExport(name)
		}
		return fn, nil
	}
	malloc, err := required(exportMalloc)
	if err != nil {
		return nil, err
	}
	free, err := required(exportFree)
	if err != nil {
		return nil, err
	}
	readTags, err := required(exportReadTags)
	if err != nil {
		return nil, err
	}
	writeTags, err := required(exportWriteTags)
	if err != nil {
		return nil, err
	}

	if init := guest.ExportedFunction(exportInitialize); init != nil {
		if _, err := init.Call(ctx); err != nil {
			return nil, errors.Instantiation(err)
		}
	}

	mem := guestmem.NewMemory(guest.Memory())
	m := &Module{
		runtime:       r,
		guest:         guest,
		wasi:          wasiCloser,
		host:          host,
		mem:           mem,
		alloc:         guestmem.NewAllocator(mem, malloc, free, log),
		readTags:      readTags,
		readTagsEx:    guest.ExportedFunction(exportReadTagsEx),
		writeTags:     writeTags,
		version:       guest.ExportedFunction(exportVersion),
		apiVersion:    guest.ExportedFunction(exportAPIVersion),
		lastError:     guest.ExportedFunction(exportLastError),
		lastErrorCode: guest.ExportedFunction(exportLastErrorCode),
		clearError:    guest.ExportedFunction(exportClearError),
		log:           log,
	}
	ok = true
	return m, nil
}

func fetchBinary(ctx context.Context, cfg Config) ([]byte, error) {
	switch {
	case len(cfg.Binary) > 0:
		return cfg.Binary, nil
	case cfg.Path != "":
		b, err := os.ReadFile(cfg.Path)
		if err != nil {
			return nil, errors.Load(fmt.Sprintf("read guest module from %s", cfg.Path), err)
		}
		return b, nil
	case cfg.URL != "":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
		if err != nil {
			return nil, errors.Load("build guest module request", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, errors.Load(fmt.Sprintf("fetch guest module from %s", cfg.URL), err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, errors.Load(fmt.Sprintf("fetch guest module from %s: status %d", cfg.URL, resp.StatusCode), nil)
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Load(fmt.Sprintf("read guest module body from %s", cfg.URL), err)
		}
		return b, nil
	default:
		return nil, errors.InvalidInput(errors.PhaseLoad, "no guest binary source configured")
	}
}

// call invokes fn with args and returns the first result slot. Guest
// traps become typed errors; a proc_exit unwind surfaces as GuestExit.
func (m *Module) call(ctx context.Context, op string, fn api.Function, args ...uint64) (uint64, error) {
	n := len(args)
	if n == 0 {
		n = 1
	}
	stack := make([]uint64, n)
	copy(stack, args)
	if err := fn.CallWithStack(ctx, stack); err != nil {
		var exit *errors.GuestExit
		if stderrors.As(err, &exit) {
			return 0, exit
		}
		return 0, errors.Wrap(errors.PhaseCall, errors.KindGuestFault, err, op+" trapped")
	}
	return stack[0], nil
}

// ReadTags parses data and returns its tag record, with the guest
// sniffing the container format.
func (m *Module) ReadTags(ctx context.Context, data []byte) (*wire.Tag, error) {
	return m.ReadTagsWithFormat(ctx, data, FormatAuto)
}

// ReadTagsWithFormat parses data with an explicit container format hint.
// The hint needs guest support; without it the guest falls back to
// sniffing.
func (m *Module) ReadTagsWithFormat(ctx context.Context, data []byte, format Format) (*wire.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.InvalidInput(errors.PhaseCall, "empty audio buffer")
	}
	return m.readTagsLocked(ctx, "", data, format)
}

// ReadTagsFromFile has the guest open path itself through the WASI layer,
// so path must sit under a configured preopen.
func (m *Module) ReadTagsFromFile(ctx context.Context, path string) (*wire.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, errors.InvalidInput(errors.PhaseCall, "empty path")
	}
	return m.readTagsLocked(ctx, path, nil, FormatAuto)
}

func (m *Module) readTagsLocked(ctx context.Context, path string, data []byte, format Format) (*wire.Tag, error) {
	arena := guestmem.NewArena(m.alloc)
	defer arena.Release(ctx)

	var pathPtr, bufPtr, bufLen uint32
	if path != "" {
		al, err := arena.AllocString(ctx, path)
		if err != nil {
			return nil, err
		}
		pathPtr = al.Ptr()
	}
	if len(data) > 0 {
		al, err := arena.AllocBuffer(ctx, data)
		if err != nil {
			return nil, err
		}
		bufPtr = al.Ptr()
		bufLen = al.Size()
	}
	outSize, err := arena.AllocUint32(ctx)
	if err != nil {
		return nil, err
	}

	var ret uint64
	op := exportReadTags
	if format != FormatAuto && m.readTagsEx != nil {
		op = exportReadTagsEx
		ret, err = m.call(ctx, op, m.readTagsEx,
			uint64(pathPtr), uint64(bufPtr), uint64(bufLen), uint64(outSize.Ptr()), uint64(format))
	} else {
		if format != FormatAuto {
			m.log.Debug("guest lacks format hint entry point, sniffing instead",
				zap.Stringer("format", format))
		}
		ret, err = m.call(ctx, op, m.readTags,
			uint64(pathPtr), uint64(bufPtr), uint64(bufLen), uint64(outSize.Ptr()))
	}
	if err != nil {
		return nil, err
	}
	resultPtr := uint32(ret)
	if resultPtr == 0 {
		return nil, m.guestErrorLocked(ctx, op)
	}
	defer m.alloc.Free(ctx, resultPtr)

	size, err := outSize.Uint32(0)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, errors.InvalidData(errors.PhaseCall, nil, "guest returned empty tag record")
	}
	raw, err := m.mem.Read(resultPtr, size)
	if err != nil {
		return nil, err
	}
	return wire.Decode(raw)
}

// WriteTags merges tag into data and returns the re-serialized buffer.
func (m *Module) WriteTags(ctx context.Context, data []byte, tag *wire.Tag) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.InvalidInput(errors.PhaseCall, "empty audio buffer")
	}
	return m.writeTagsLocked(ctx, "", data, tag)
}

// WriteTagsToFile merges tag into the file at path in place, with the
// guest doing the file I/O through the WASI layer.
func (m *Module) WriteTagsToFile(ctx context.Context, path string, tag *wire.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureOpen(); err != nil {
		return err
	}
	if path == "" {
		return errors.InvalidInput(errors.PhaseCall, "empty path")
	}
	_, err := m.writeTagsLocked(ctx, path, nil, tag)
	return err
}

func (m *Module) writeTagsLocked(ctx context.Context, path string, data []byte, tag *wire.Tag) ([]byte, error) {
	if tag == nil {
		return nil, errors.InvalidInput(errors.PhaseCall, "nil tag record")
	}
	encoded, err := wire.Encode(tag)
	if err != nil {
		return nil, err
	}

	arena := guestmem.NewArena(m.alloc)
	defer arena.Release(ctx)

	var pathPtr, bufPtr, bufLen uint32
	if path != "" {
		al, err := arena.AllocString(ctx, path)
		if err != nil {
			return nil, err
		}
		pathPtr = al.Ptr()
	}
	if len(data) > 0 {
		al, err := arena.AllocBuffer(ctx, data)
		if err != nil {
			return nil, err
		}
		bufPtr = al.Ptr()
		bufLen = al.Size()
	}
	tags, err := arena.AllocBuffer(ctx, encoded)
	if err != nil {
		return nil, err
	}
	outBuf, err := arena.AllocUint32(ctx)
	if err != nil {
		return nil, err
	}
	outSize, err := arena.AllocUint32(ctx)
	if err != nil {
		return nil, err
	}

	ret, err := m.call(ctx, exportWriteTags, m.writeTags,
		uint64(pathPtr), uint64(bufPtr), uint64(bufLen),
		uint64(tags.Ptr()), uint64(tags.Size()),
		uint64(outBuf.Ptr()), uint64(outSize.Ptr()))
	if err != nil {
		return nil, err
	}
	if code := ResultCode(int32(uint32(ret))); code != CodeSuccess {
		ge := m.guestErrorLocked(ctx, exportWriteTags)
		ge.Code = int32(code)
		return nil, ge
	}

	resultPtr, err := outBuf.Uint32(0)
	if err != nil {
		return nil, err
	}
	size, err := outSize.Uint32(0)
	if err != nil {
		return nil, err
	}
	// The in-place file path leaves the out parameters empty.
	if resultPtr == 0 || size == 0 {
		return nil, nil
	}
	defer m.alloc.Free(ctx, resultPtr)
	return m.mem.Read(resultPtr, size)
}

// guestErrorLocked reads the guest's last-error pair after a failed entry
// point. Guests without the accessors yield a bare code-zero report.
func (m *Module) guestErrorLocked(ctx context.Context, op string) *errors.GuestError {
	ge := &errors.GuestError{Op: op}
	if m.lastErrorCode != nil {
		if v, err := m.call(ctx, exportLastErrorCode, m.lastErrorCode); err == nil {
			ge.Code = int32(uint32(v))
		}
	}
	if m.lastError != nil {
		if v, err := m.call(ctx, exportLastError, m.lastError); err == nil {
			if ptr := uint32(v); ptr != 0 {
				if msg, err := m.mem.ReadCString(ptr, maxErrorMessage); err == nil {
					ge.Message = msg
				}
			}
		}
	}
	return ge
}

// Version reports the guest's version string.
func (m *Module) Version(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureOpen(); err != nil {
		return "", err
	}
	if m.version == nil {
		return "", errors.MissingExport(exportVersion)
	}
	v, err := m.call(ctx, exportVersion, m.version)
	if err != nil {
		return "", err
	}
	ptr := uint32(v)
	if ptr == 0 {
		return "", nil
	}
	// Static guest string, not freed by the host.
	return m.mem.ReadCString(ptr, maxErrorMessage)
}

// APIVersion reports the guest's numeric ABI revision.
func (m *Module) APIVersion(ctx context.Context) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureOpen(); err != nil {
		return 0, err
	}
	if m.apiVersion == nil {
		return 0, errors.MissingExport(exportAPIVersion)
	}
	v, err := m.call(ctx, exportAPIVersion, m.apiVersion)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// LastError reads the guest's current error code and message without
// clearing them.
func (m *Module) LastError(ctx context.Context) (int32, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ""
	}
	ge := m.guestErrorLocked(ctx, "last_error")
	return ge.Code, ge.Message
}

// ClearError resets the guest's last-error state, when the guest supports
// it.
func (m *Module) ClearError(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureOpen(); err != nil {
		return err
	}
	if m.clearError == nil {
		return nil
	}
	_, err := m.call(ctx, exportClearError, m.clearError)
	return err
}

func (m *Module) ensureOpen() error {
	if m.closed {
		return errors.InvalidInput(errors.PhaseCall, "module is closed")
	}
	return nil
}

// Close tears down the guest instance, the WASI host, and every file
// handle the guest left open. Safe to call more than once.
func (m *Module) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.host.Close()
	if err := m.runtime.Close(ctx); err != nil {
		return errors.Wrap(errors.PhaseCall, errors.KindIO, err, "close runtime")
	}
	return nil
}
