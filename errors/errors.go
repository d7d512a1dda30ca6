package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// As and Is re-export the standard library matchers so callers need only
// one errors import.
func As(err error, target any) bool { return stderrors.As(err, target) }

func Is(err, target error) bool { return stderrors.Is(err, target) }

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad        Phase = "load"        // fetching or compiling the guest binary
	PhaseInstantiate Phase = "instantiate" // wiring imports, instantiating the guest
	PhaseMemory      Phase = "memory"      // guest linear-memory staging
	PhaseCodec       Phase = "codec"       // wire record encode/decode
	PhaseWASI        Phase = "wasi"        // WASI host construction
	PhaseCall        Phase = "call"        // invoking a guest export
)

// Kind categorizes the error
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindInvalidInput  Kind = "invalid_input"
	KindAllocation    Kind = "allocation"
	KindOutOfBounds   Kind = "out_of_bounds"
	KindMissingExport Kind = "missing_export"
	KindInvalidData   Kind = "invalid_data"
	KindGuestFault    Kind = "guest_fault"
	KindIO            Kind = "io"
)

// Error is the structured error type used throughout the host
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the operation path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Load creates a guest-binary loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindIO,
		Detail: detail,
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindGuestFault,
		Detail: "instantiate guest module",
		Cause:  cause,
	}
}

// MissingExport creates an error for a required guest export that is absent
func MissingExport(name string) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindMissingExport,
		Detail: fmt.Sprintf("guest does not export %q", name),
	}
}

// AllocationFailed creates a guest allocation failure error
func AllocationFailed(phase Phase, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("guest allocator returned null for %d bytes", size),
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, offset, length, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("access [%d:%d) exceeds allocation of %d bytes", offset, offset+length, size),
		Value:  offset,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// GuestExit is raised when the guest calls proc_exit. A WebAssembly instance
// cannot be terminated cooperatively, so the syscall layer panics with this
// value and the loader converts it into an error returned from the call.
type GuestExit struct {
	Code uint32
}

func (e *GuestExit) Error() string {
	return fmt.Sprintf("guest terminated via proc_exit(%d)", e.Code)
}

// Is reports whether target matches this error type
func (e *GuestExit) Is(target error) bool {
	_, ok := target.(*GuestExit)
	return ok
}

// GuestError carries the guest's own error report, read back through its
// last-error accessors after a guest export signals failure.
type GuestError struct {
	Op      string
	Code    int32
	Message string
}

func (e *GuestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: guest error %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: guest error %d: %s", e.Op, e.Code, e.Message)
}
