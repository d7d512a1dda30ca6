// Package taglib loads a taglib WebAssembly guest and exposes its tag
// reading and writing operations as a Go API.
//
// Load obtains the guest binary (from bytes, a file, or a URL), stands up
// a private wazero runtime with the WASI syscall host wired to the
// configured filesystem provider, instantiates the guest, and resolves its
// exports. The returned Module owns the whole stack and releases it on
// Close.
//
// A Module serializes its guest calls internally; callers may share one
// Module across goroutines, but calls do not overlap and throughput is
// that of a single instance.
package taglib
