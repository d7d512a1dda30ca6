package provider

import "io"

// OpenOptions selects the access mode for Provider.Open.
type OpenOptions struct {
	Read     bool
	Write    bool
	Create   bool
	Truncate bool
}

// Handle is an open file. Read, Write and Seek operate on a single shared
// file position with POSIX lseek semantics: SEEK_CUR and SEEK_END accept
// negative offsets, and Seek returns the new absolute position.
//
// Read reports end-of-file with io.EOF, which callers must treat as a
// distinct signal from a zero-length read.
type Handle interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
	Truncate(size int64) error
}

// Provider performs synchronous file I/O for the WASI host. Implementations
// must never silently succeed on a failed OS call.
type Provider interface {
	// Open opens path with the given options. The path has already passed
	// capability validation; the provider does not re-check it.
	Open(path string, opts OpenOptions) (Handle, error)

	// ReadFile reads the whole file at path. Used for the non-seeking
	// convenience path.
	ReadFile(path string) ([]byte, error)

	// IsNotFound reports whether err, returned from this provider, means
	// the file did not exist. The syscall layer uses this to map failures
	// to ENOENT without knowing the provider's error types.
	IsNotFound(err error) bool
}
