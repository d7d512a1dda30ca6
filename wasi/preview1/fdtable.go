package preview1

import (
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/CharlesWiltgen/taglib-wasm-sub003/provider"
)

// Reserved descriptor numbers. Stdin is accepted but never readable;
// stdout and stderr are writable sinks owned by the Host, not the table.
const (
	fdStdin  uint32 = 0
	fdStdout uint32 = 1
	fdStderr uint32 = 2

	firstPreopenFD uint32 = 3
)

type entryKind int

const (
	kindPreopen entryKind = iota
	kindFile
)

// fdEntry is a discriminated table slot. Preopens carry the directory
// grant (virtual name plus real root); files carry the open handle.
type fdEntry struct {
	kind entryKind

	// preopen
	virtualDir string
	realDir    string

	// open file
	handle provider.Handle
	path   string
}

// Table owns every descriptor the guest can name. Descriptor numbers are
// handed out monotonically and never reused, so a stale fd held by the
// guest after fd_close can only ever produce EBADF, never alias a newer
// file.
type Table struct {
	entries map[uint32]*fdEntry
	nextFD  uint32

	fs  provider.Provider
	log *zap.Logger
}

// NewTable builds a table with one preopen per entry in preopens, keyed by
// the virtual directory name the guest sees. Preopens are assigned fds
// from 3 upward in sorted-key order so a given configuration always
// produces the same numbering.
func NewTable(fs provider.Provider, preopens map[string]string, log *zap.Logger) *Table {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Table{
		entries: make(map[uint32]*fdEntry, len(preopens)),
		nextFD:  firstPreopenFD,
		fs:      fs,
		log:     log,
	}
	names := make([]string, 0, len(preopens))
	for name := range preopens {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t.entries[t.nextFD] = &fdEntry{
			kind:       kindPreopen,
			virtualDir: name,
			realDir:    preopens[name],
		}
		t.log.Debug("registered preopen",
			zap.Uint32("fd", t.nextFD),
			zap.String("virtual", name),
			zap.String("real", preopens[name]))
		t.nextFD++
	}
	return t
}

func (t *Table) get(fd uint32) (*fdEntry, bool) {
	e, ok := t.entries[fd]
	return e, ok
}

// preopen returns the entry for fd only if it is a directory grant.
func (t *Table) preopen(fd uint32) (*fdEntry, bool) {
	e, ok := t.entries[fd]
	if !ok || e.kind != kindPreopen {
		return nil, false
	}
	return e, true
}

// file returns the entry for fd only if it is an open file.
func (t *Table) file(fd uint32) (*fdEntry, bool) {
	e, ok := t.entries[fd]
	if !ok || e.kind != kindFile {
		return nil, false
	}
	return e, true
}

// resolve maps a guest-relative path under the preopen dirFD to a real
// provider path. The guest never learns real paths; everything it names
// is contained under the preopen's root. Rejections are deliberate and
// distinguishable: a bad dirfd is EBADF, an escape attempt is
// ENOTCAPABLE, malformed input is EINVAL, and only a well-formed
// contained path proceeds to the provider at all.
func (t *Table) resolve(dirFD uint32, raw []byte) (string, Errno) {
	pre, ok := t.preopen(dirFD)
	if !ok {
		return "", EBADF
	}
	if !utf8.Valid(raw) {
		return "", EINVAL
	}
	p := string(raw)
	if p == "" {
		return "", EINVAL
	}
	// Guests built against wasi-libc produce forward slashes, but tag
	// paths can arrive verbatim from user input on Windows hosts.
	if p[0] == '/' || p[0] == '\\' {
		return "", ENOTCAPABLE
	}
	segs := strings.FieldsFunc(p, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		switch s {
		case ".":
			continue
		case "..":
			return "", ENOTCAPABLE
		}
		// A leading drive reference ("C:", "C:song.mp3") would re-anchor
		// the joined path on Windows hosts. A colon deeper in the path is
		// an ordinary name byte and stays legal.
		if len(parts) == 0 && len(s) >= 2 && s[1] == ':' && isASCIILetter(s[0]) {
			return "", ENOTCAPABLE
		}
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return "", EINVAL
	}
	return filepath.Join(append([]string{pre.realDir}, parts...)...), ESUCCESS
}

func isASCIILetter(b byte) bool {
	c := b | 0x20
	return c >= 'a' && c <= 'z'
}

// open resolves path under dirFD and opens it through the provider,
// returning the new descriptor. Provider "not found" maps to ENOENT and
// any other provider failure to EINVAL, so the guest can tell a missing
// file apart from both a capability rejection and a malformed request.
func (t *Table) open(dirFD uint32, raw []byte, opts provider.OpenOptions) (uint32, Errno) {
	real, errno := t.resolve(dirFD, raw)
	if errno != ESUCCESS {
		return 0, errno
	}
	h, err := t.fs.Open(real, opts)
	if err != nil {
		if t.fs.IsNotFound(err) {
			return 0, ENOENT
		}
		t.log.Debug("provider open failed", zap.String("path", real), zap.Error(err))
		return 0, EINVAL
	}
	fd := t.nextFD
	t.nextFD++
	t.entries[fd] = &fdEntry{kind: kindFile, handle: h, path: real}
	return fd, ESUCCESS
}

// closeFD removes fd from the table. The provider handle is released
// exactly once; a second close of the same number is EBADF because the
// entry is already gone.
func (t *Table) closeFD(fd uint32) Errno {
	e, ok := t.entries[fd]
	if !ok {
		return EBADF
	}
	delete(t.entries, fd)
	if e.kind == kindFile && e.handle != nil {
		if err := e.handle.Close(); err != nil {
			t.log.Debug("handle close failed", zap.String("path", e.path), zap.Error(err))
			return EIO
		}
	}
	return ESUCCESS
}

// closeAll releases every remaining open handle. Used at module disposal;
// errors are logged rather than surfaced since nothing can act on them.
func (t *Table) closeAll() {
	for fd, e := range t.entries {
		if e.kind == kindFile && e.handle != nil {
			if err := e.handle.Close(); err != nil {
				t.log.Debug("handle close failed", zap.String("path", e.path), zap.Error(err))
			}
		}
		delete(t.entries, fd)
	}
}
