// Package testguest synthesizes a minimal taglib guest module in memory,
// so loader and end-to-end tests run without a compiled C++ guest binary.
//
// The synthesized guest implements the real export surface: a bump
// allocator, tag entry points answering with a canned record, and the
// version and last-error accessors. It performs no parsing; tl_read_tags
// returns the record it was built with regardless of input.
package testguest

// Guest memory layout. The record and version string live in data
// segments below heapBase; the bump allocator hands out addresses from
// heapBase up and never reclaims.
const (
	recordPtr  = 16
	versionPtr = 1024
	heapBase   = 4096
)

// APIVersion is what the synthesized guest's tl_api_version reports.
const APIVersion = 3

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func sleb(v int32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// Instruction encodings used in the synthesized bodies.
func localGet(i uint32) []byte  { return append([]byte{0x20}, uleb(i)...) }
func localSet(i uint32) []byte  { return append([]byte{0x21}, uleb(i)...) }
func globalGet(i uint32) []byte { return append([]byte{0x23}, uleb(i)...) }
func globalSet(i uint32) []byte { return append([]byte{0x24}, uleb(i)...) }
func i32Const(v int32) []byte   { return append([]byte{0x41}, sleb(v)...) }

var (
	opI32Add   = []byte{0x6a}
	opI32Store = []byte{0x36, 0x02, 0x00} // align=4, offset=0
	opEnd      = []byte{0x0b}
)

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func section(id byte, payload []byte) []byte {
	return cat([]byte{id}, uleb(uint32(len(payload))), payload)
}

// funcType is a wasm function signature: n i32 params, one optional i32
// result. The guest ABI never needs anything wider.
func funcType(params int, hasResult bool) []byte {
	out := []byte{0x60}
	out = append(out, uleb(uint32(params))...)
	for i := 0; i < params; i++ {
		out = append(out, 0x7f)
	}
	if hasResult {
		out = append(out, 0x01, 0x7f)
	} else {
		out = append(out, 0x00)
	}
	return out
}

// body assembles a code-section entry: i32 locals followed by code, which
// must end with the end opcode.
func body(locals int, code []byte) []byte {
	var b []byte
	if locals == 0 {
		b = append(b, 0x00)
	} else {
		b = cat(b, uleb(1), uleb(uint32(locals)), []byte{0x7f})
	}
	b = append(b, code...)
	return cat(uleb(uint32(len(b))), b)
}

func export(name string, kind byte, idx uint32) []byte {
	return cat(uleb(uint32(len(name))), []byte(name), []byte{kind}, uleb(idx))
}

func dataSegment(offset int32, bytes []byte) []byte {
	return cat([]byte{0x00}, i32Const(offset), opEnd, uleb(uint32(len(bytes))), bytes)
}

// Build assembles the guest binary. record is the encoded tag payload
// tl_read_tags returns; version is the string tl_version points at.
func Build(record []byte, version string) []byte {
	// Type indices, one per distinct signature.
	const (
		tUnary   = 0 // (i32) -> i32         tl_malloc
		tConsume = 1 // (i32) -> ()          tl_free
		tRead    = 2 // (i32 x4) -> i32      tl_read_tags
		tWrite   = 3 // (i32 x7) -> i32      tl_write_tags
		tNullary = 4 // () -> i32            accessors
	)
	typeSec := cat(uleb(5),
		funcType(1, true),
		funcType(1, false),
		funcType(4, true),
		funcType(7, true),
		funcType(0, true))

	// Function order fixes both export indices and code order.
	names := []string{
		"tl_malloc", "tl_free", "tl_read_tags", "tl_write_tags",
		"tl_version", "tl_api_version", "tl_get_last_error", "tl_get_last_error_code",
	}
	types := []byte{tUnary, tConsume, tRead, tWrite, tNullary, tNullary, tNullary, tNullary}
	funcSec := uleb(uint32(len(types)))
	for _, t := range types {
		funcSec = append(funcSec, uleb(uint32(t))...)
	}

	memSec := cat(uleb(1), []byte{0x00}, uleb(1)) // one memory, min 1 page

	// Heap pointer for the bump allocator.
	globalSec := cat(uleb(1), []byte{0x7f, 0x01}, i32Const(heapBase), opEnd)

	exportSec := uleb(uint32(len(names)) + 1)
	exportSec = append(exportSec, export("memory", 0x02, 0)...)
	for i, n := range names {
		exportSec = append(exportSec, export(n, 0x00, uint32(i))...)
	}

	// tl_malloc: return the heap pointer, then advance it by size.
	malloc := cat(
		globalGet(0), localSet(1),
		globalGet(0), localGet(0), opI32Add, globalSet(0),
		localGet(1), opEnd)

	free := cat(opEnd)

	// tl_read_tags(path, buf, len, outSize): *outSize = len(record),
	// return the record's address.
	readTags := cat(
		localGet(3), i32Const(int32(len(record))), opI32Store,
		i32Const(recordPtr), opEnd)

	// tl_write_tags(..., outBuf, outSize): zero both out params, succeed.
	writeTags := cat(
		localGet(5), i32Const(0), opI32Store,
		localGet(6), i32Const(0), opI32Store,
		i32Const(0), opEnd)

	versionFn := cat(i32Const(versionPtr), opEnd)
	apiVersionFn := cat(i32Const(APIVersion), opEnd)
	lastErrorFn := cat(i32Const(0), opEnd)
	lastErrorCodeFn := cat(i32Const(0), opEnd)

	codeSec := cat(uleb(8),
		body(1, malloc),
		body(0, free),
		body(0, readTags),
		body(0, writeTags),
		body(0, versionFn),
		body(0, apiVersionFn),
		body(0, lastErrorFn),
		body(0, lastErrorCodeFn))

	dataSec := cat(uleb(2),
		dataSegment(recordPtr, record),
		dataSegment(versionPtr, append([]byte(version), 0)))

	return cat(
		[]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00},
		section(0x01, typeSec),
		section(0x03, funcSec),
		section(0x05, memSec),
		section(0x06, globalSec),
		section(0x07, exportSec),
		section(0x0a, codeSec),
		section(0x0b, dataSec))
}
