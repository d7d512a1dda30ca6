package preview1

import "fmt"

// Errno is a WASI preview1 error code as returned to the guest.
type Errno uint32

// Error codes from the wasi_snapshot_preview1 witx definition. Only the
// values the host actually produces are declared; everything else would be
// dead weight here since handlers map host conditions onto this set.
const (
	ESUCCESS    Errno = 0
	EBADF       Errno = 8
	EFAULT      Errno = 21
	EINVAL      Errno = 28
	EIO         Errno = 29
	ENOENT      Errno = 44
	ENOSYS      Errno = 52
	ENOTCAPABLE Errno = 76
)

func (e Errno) String() string {
	switch e {
	case ESUCCESS:
		return "ESUCCESS"
	case EBADF:
		return "EBADF"
	case EFAULT:
		return "EFAULT"
	case EINVAL:
		return "EINVAL"
	case EIO:
		return "EIO"
	case ENOENT:
		return "ENOENT"
	case ENOSYS:
		return "ENOSYS"
	case ENOTCAPABLE:
		return "ENOTCAPABLE"
	default:
		return fmt.Sprintf("errno(%d)", uint32(e))
	}
}
