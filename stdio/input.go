package stdio

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"execd/execctx"

	cerrors "execd/execerrors"
)

// resolveInput resolves the configured std_input variant to an open fd, per
// the first half of §4.2's resolution table.
func resolveInput(ctx *execctx.Context, params *execctx.Parameters) (*os.File, error) {
	if params.StdinOverrideFD >= 0 {
		return dupFD(params.StdinOverrideFD)
	}

	switch ctx.IO.StdInput {
	case execctx.IONull:
		return openNull(os.O_RDONLY)

	case execctx.IOTTY, execctx.IOTTYForce, execctx.IOTTYFail:
		f, err := acquireTTY(ctx.IO.TTYPath, ctx.IO.StdInput)
		if err != nil {
			return nil, err
		}
		if err := setControllingTerminal(f); err != nil {
			// Non-fatal: stdin TTY acquisition succeeds even if we can't
			// steal the controlling terminal.
			_ = err
		}
		if err := applyTTYSize(f, ctx.IO.TTYRows, ctx.IO.TTYCols); err != nil {
			f.Close()
			return nil, err
		}
		return f, nil

	case execctx.IOSocket:
		if len(params.SocketFDs) == 0 {
			return nil, cerrors.New(cerrors.ErrResource, "resolve stdin", "no activation socket fd available")
		}
		return dupFD(params.SocketFDs[0].FD)

	case execctx.IONamedFD:
		return resolveNamedFD(params, ctx.IO.StdioFDNames[0])

	case execctx.IOData:
		return materializeStdinData(ctx.IO.StdinData)

	case execctx.IOFile:
		return openStdioFile(ctx.IO.StdioFilePaths[0], os.O_RDONLY, false, false)

	default:
		return openNull(os.O_RDONLY)
	}
}

func openNull(flag int) (*os.File, error) {
	f, err := os.OpenFile(os.DevNull, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/null: %w", err)
	}
	return f, nil
}

func dupFD(fd int) (*os.File, error) {
	newFD, err := unix.Dup(fd)
	if err != nil {
		return nil, fmt.Errorf("dup fd %d: %w", fd, err)
	}
	return os.NewFile(uintptr(newFD), "duped-fd"), nil
}

func resolveNamedFD(params *execctx.Parameters, name string) (*os.File, error) {
	for _, entry := range params.SocketFDs {
		if entry.Name == name {
			return dupFD(entry.FD)
		}
	}
	for _, entry := range params.StorageFDs {
		if entry.Name == name {
			return dupFD(entry.FD)
		}
	}
	return nil, cerrors.New(cerrors.ErrResource, "resolve named fd", "no fd named "+name)
}

// materializeStdinData deposits the inline stdin-data blob into a sealed,
// read-only memfd whose size equals len(data), per §6's "stdin data path".
func materializeStdinData(data []byte) (*os.File, error) {
	fd, err := unix.MemfdCreate("stdin-data", unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	f := os.NewFile(uintptr(fd), "stdin-data")

	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("write stdin data: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek stdin data: %w", err)
	}

	seals := unix.F_SEAL_SHRINK | unix.F_SEAL_GROW | unix.F_SEAL_WRITE | unix.F_SEAL_SEAL
	if _, err := unix.FcntlInt(f.Fd(), unix.F_ADD_SEALS, seals); err != nil {
		f.Close()
		return nil, fmt.Errorf("seal stdin memfd: %w", err)
	}

	return f, nil
}
