package preview1

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// ModuleName is the import module guests compiled for preview1 expect.
const ModuleName = "wasi_snapshot_preview1"

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// Instantiate registers the host's syscalls as the wasi_snapshot_preview1
// module on r. Every preview1 export is present so instantiation never
// fails on a missing import; syscalls outside the supported set return
// ENOSYS at call time instead.
func Instantiate(ctx context.Context, r wazero.Runtime, h *Host) (api.Closer, error) {
	b := r.NewHostModuleBuilder(ModuleName)

	export(b, "args_get", h.argsGet, i32, i32)
	export(b, "args_sizes_get", h.argsSizesGet, i32, i32)
	export(b, "environ_get", h.environGet, i32, i32)
	export(b, "environ_sizes_get", h.environSizesGet, i32, i32)
	export(b, "clock_time_get", h.clockTimeGet, i32, i64, i32)
	export(b, "fd_close", h.fdClose, i32)
	export(b, "fd_fdstat_get", h.fdFdstatGet, i32, i32)
	export(b, "fd_filestat_get", h.fdFilestatGet, i32, i32)
	export(b, "fd_filestat_set_size", h.fdFilestatSetSize, i32, i64)
	export(b, "fd_prestat_get", h.fdPrestatGet, i32, i32)
	export(b, "fd_prestat_dir_name", h.fdPrestatDirName, i32, i32, i32)
	export(b, "fd_read", h.fdRead, i32, i32, i32, i32)
	export(b, "fd_seek", h.fdSeek, i32, i64, i32, i32)
	export(b, "fd_tell", h.fdTell, i32, i32)
	export(b, "fd_write", h.fdWrite, i32, i32, i32, i32)
	export(b, "path_filestat_get", h.pathFilestatGet, i32, i32, i32, i32, i32)
	export(b, "path_open", h.pathOpen, i32, i32, i32, i32, i32, i64, i64, i32, i32)
	export(b, "random_get", h.randomGet, i32, i32)
	export(b, "sched_yield", h.schedYield)

	// proc_exit has no result; it unwinds instead of returning.
	b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			h.procExit(ctx, mod.Memory(), stack)
		}), []api.ValueType{i32}, nil).
		Export("proc_exit")

	stub(b, "clock_res_get", i32, i32)
	stub(b, "fd_advise", i32, i64, i64, i32)
	stub(b, "fd_allocate", i32, i64, i64)
	stub(b, "fd_datasync", i32)
	stub(b, "fd_fdstat_set_flags", i32, i32)
	stub(b, "fd_fdstat_set_rights", i32, i64, i64)
	stub(b, "fd_filestat_set_times", i32, i64, i64, i32)
	stub(b, "fd_pread", i32, i32, i32, i64, i32)
	stub(b, "fd_pwrite", i32, i32, i32, i64, i32)
	stub(b, "fd_readdir", i32, i32, i32, i64, i32)
	stub(b, "fd_renumber", i32, i32)
	stub(b, "fd_sync", i32)
	stub(b, "path_create_directory", i32, i32, i32)
	stub(b, "path_filestat_set_times", i32, i32, i32, i32, i64, i64, i32)
	stub(b, "path_link", i32, i32, i32, i32, i32, i32, i32)
	stub(b, "path_readlink", i32, i32, i32, i32, i32, i32)
	stub(b, "path_remove_directory", i32, i32, i32)
	stub(b, "path_rename", i32, i32, i32, i32, i32, i32)
	stub(b, "path_symlink", i32, i32, i32, i32, i32)
	stub(b, "path_unlink_file", i32, i32, i32)
	stub(b, "poll_oneoff", i32, i32, i32, i32)
	stub(b, "proc_raise", i32)
	stub(b, "sock_accept", i32, i32, i32)
	stub(b, "sock_recv", i32, i32, i32, i32, i32, i32)
	stub(b, "sock_send", i32, i32, i32, i32, i32)
	stub(b, "sock_shutdown", i32, i32)

	return b.Instantiate(ctx)
}

func export(b wazero.HostModuleBuilder, name string, fn syscall, params ...api.ValueType) {
	b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			stack[0] = uint64(fn(ctx, mod.Memory(), stack))
		}), params, []api.ValueType{i32}).
		Export(name)
}

func stub(b wazero.HostModuleBuilder, name string, params ...api.ValueType) {
	b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = uint64(ENOSYS)
		}), params, []api.ValueType{i32}).
		Export(name)
}
