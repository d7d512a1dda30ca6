// Package provider defines the filesystem seam between the WASI host and
// the operating system.
//
// The provider has no knowledge of WASI. It receives only paths that the
// capability resolver has already validated, performs synchronous I/O, and
// classifies its own failures so the syscall layer can map them to WASI
// error codes without inspecting OS-specific error types.
package provider
