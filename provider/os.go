package provider

import (
	"errors"
	"io/fs"
	"os"
)

// OS is the Provider backed by the host operating system.
type OS struct{}

// NewOS returns a Provider that performs real OS file I/O.
func NewOS() *OS {
	return &OS{}
}

// Open opens path via os.OpenFile. The returned *os.File tracks a single
// shared cursor for Read, Write and Seek, which is exactly the POSIX
// lseek+read/write behavior the syscall layer requires.
func (*OS) Open(path string, opts OpenOptions) (Handle, error) {
	flag := 0
	switch {
	case opts.Read && opts.Write:
		flag = os.O_RDWR
	case opts.Write:
		flag = os.O_WRONLY
	default:
		flag = os.O_RDONLY
	}
	if opts.Create {
		flag |= os.O_CREATE
	}
	if opts.Truncate {
		flag |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (*OS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (*OS) IsNotFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

var _ Provider = (*OS)(nil)
var _ Handle = (*os.File)(nil)
