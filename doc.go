// Package taglibwasm provides a sandboxed WASI host for the taglib-wasm
// guest module: a WebAssembly build of TagLib that reads and writes audio
// metadata.
//
// The host never parses audio itself. It instantiates the guest with a
// capability-restricted implementation of wasi_snapshot_preview1, stages
// buffers in the guest's linear memory, and exchanges tag records across
// the call boundary as MessagePack.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	taglibwasm/          Root package with core Memory and Allocator interfaces
//	├── taglib/          High-level API for loading the guest and reading/writing tags
//	├── wasi/preview1/   wasi_snapshot_preview1 syscall host and file-descriptor table
//	├── provider/        Filesystem provider seam between the WASI host and the OS
//	├── guestmem/        Guest linear-memory staging: tracked allocations and arenas
//	├── wire/            MessagePack codec for tag, picture and rating records
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Load the guest binary and read tags from a buffer:
//
//	mod, err := taglib.Load(ctx, taglib.Config{Path: "taglib.wasm"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mod.Close(ctx)
//
//	tag, err := mod.ReadTags(ctx, audioBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(tag.Title, tag.Artist)
//
// To let the guest open files itself, grant it a preopen directory:
//
//	mod, err := taglib.Load(ctx, taglib.Config{
//	    Path:     "taglib.wasm",
//	    Preopens: map[string]string{"/music": "/home/me/Music"},
//	})
//
// The guest can then only reach paths under /home/me/Music, addressed as
// /music/... . Path traversal out of a preopen is rejected with ENOTCAPABLE
// before any OS call is made.
//
// # Concurrency
//
// One guest instance is single-threaded. A Module serializes its calls on
// an internal mutex, so concurrent callers block each other; load one
// Module per goroutine for parallelism.
package taglibwasm
