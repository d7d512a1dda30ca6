// Package preview1 implements the subset of wasi_snapshot_preview1 the
// taglib guest needs for buffered file I/O.
//
// The package has three parts: numeric WASI error codes, a file-descriptor
// table that doubles as the capability resolver for preopened directories,
// and the syscall host that wazero registers as the guest's
// wasi_snapshot_preview1 import module.
//
// Syscall handlers never return Go errors to the guest. Every handler
// produces a numeric Errno; the single exception is proc_exit, which cannot
// be expressed as a return code and instead unwinds with errors.GuestExit.
//
// The host is stateless call-response; all per-descriptor state lives in
// the Table. Neither is safe for concurrent use, matching the
// single-threaded execution model of a WebAssembly instance.
package preview1
