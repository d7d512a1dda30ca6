// Package errors provides structured error types for the taglib-wasm host.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes rich context: operation path, offending
// value, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMemory, errors.KindOutOfBounds).
//		Path("readTags", "outSize").
//		Detail("offset %d past end of allocation", off).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.AllocationFailed(errors.PhaseMemory, size)
//	err := errors.MissingExport("tl_malloc")
//
// These errors are host-side only. WASI syscall handlers never produce them;
// syscalls report failure through numeric preview1 error codes, because the
// guest's generated bindings expect numeric returns.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
