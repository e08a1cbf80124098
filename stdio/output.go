package stdio

import (
	"fmt"
	"net"
	"os"
	"syscall"

	"execd/execctx"

	cerrors "execd/execerrors"
)

// resolveOutput resolves std_output/std_error, mirroring the second half of
// §4.2's resolution table. isStdout selects which override fd and path to
// consult; for stderr's "inherit" case, stdoutFile (already resolved) is
// consulted so it can be shared directly.
func resolveOutput(ctx *execctx.Context, params *execctx.Parameters, variant execctx.StdioVariant, isStdout bool, stdoutFile *os.File) (*os.File, *JournalStream, error) {
	overrideFD := params.StdoutOverrideFD
	path := ctx.IO.StdioFilePaths[1]
	fdName := ctx.IO.StdioFDNames[1]
	if !isStdout {
		overrideFD = params.StderrOverrideFD
		path = ctx.IO.StdioFilePaths[2]
		fdName = ctx.IO.StdioFDNames[2]
	}

	if overrideFD >= 0 {
		f, err := dupFD(overrideFD)
		return f, nil, err
	}

	switch variant {
	case execctx.IOInherit:
		if !isStdout {
			// stderr inherit: share stdout's fd directly when possible.
			if stdoutFile != nil {
				f, err := dupFD(int(stdoutFile.Fd()))
				return f, nil, err
			}
			f, err := openNull(os.O_WRONLY)
			return f, nil, err
		}
		// stdout inherit: mirror stdin if it's a tty, else inherit pid 1's
		// fd unless we are pid 1 (then open /dev/null).
		if ctx.IO.StdInput == execctx.IOTTY || ctx.IO.StdInput == execctx.IOTTYForce || ctx.IO.StdInput == execctx.IOTTYFail {
			f, err := acquireTTY(ctx.IO.TTYPath, ctx.IO.StdInput)
			return f, nil, err
		}
		if os.Getpid() == 1 {
			f, err := openNull(os.O_WRONLY)
			return f, nil, err
		}
		f, err := dupFD(1)
		return f, nil, err

	case execctx.IONull:
		f, err := openNull(os.O_WRONLY)
		return f, nil, err

	case execctx.IOTTY, execctx.IOTTYForce, execctx.IOTTYFail:
		f, err := acquireTTY(ctx.IO.TTYPath, variant)
		if err != nil {
			return nil, nil, err
		}
		if err := applyTTYSize(f, ctx.IO.TTYRows, ctx.IO.TTYCols); err != nil {
			f.Close()
			return nil, nil, err
		}
		return f, nil, nil

	case execctx.IOSocket:
		if len(params.SocketFDs) == 0 {
			return nil, nil, cerrors.New(cerrors.ErrResource, "resolve output", "no activation socket fd available")
		}
		f, err := dupFD(params.SocketFDs[0].FD)
		return f, nil, err

	case execctx.IONamedFD:
		f, err := resolveNamedFD(params, fdName)
		return f, nil, err

	case execctx.IOFile, execctx.IOFileAppend, execctx.IOFileTruncate:
		flag := os.O_WRONLY | os.O_CREATE
		switch variant {
		case execctx.IOFileAppend:
			flag |= os.O_APPEND
		case execctx.IOFileTruncate:
			flag |= os.O_TRUNC
		}
		f, err := openStdioFile(path, flag, true, isStdout)
		return f, nil, err

	case execctx.IOKmsg, execctx.IOJournal, execctx.IOKmsgConsole, execctx.IOJournalConsole:
		f, js, err := openJournalStream(ctx, variant)
		if err != nil {
			// Fall back to /dev/null and warn, per §4.2.
			null, nullErr := openNull(os.O_WRONLY)
			if nullErr != nil {
				return nil, nil, nullErr
			}
			return null, nil, nil
		}
		return f, js, nil

	default:
		f, err := openNull(os.O_WRONLY)
		return f, nil, err
	}
}

func openStdioFile(path string, flag int, allowSocketConnect bool, isStdout bool) (*os.File, error) {
	f, err := os.OpenFile(path, flag, 0644)
	if err == nil {
		return f, nil
	}
	if !allowSocketConnect || !isENXIO(err) {
		return nil, fmt.Errorf("open stdio file %s: %w", path, err)
	}

	// ENXIO on a regular open of a path that names an AF_UNIX stream socket:
	// connect instead, and half-shutdown according to direction.
	conn, dialErr := net.Dial("unix", path)
	if dialErr != nil {
		return nil, fmt.Errorf("connect stdio socket %s: %w", path, dialErr)
	}
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("%s is not a unix socket connection", path)
	}
	if flag&os.O_RDWR == 0 {
		// Write-only direction: shut down the read half.
		unixConn.CloseRead()
	}
	sockFile, fileErr := unixConn.File()
	if fileErr != nil {
		conn.Close()
		return nil, fmt.Errorf("get socket file %s: %w", path, fileErr)
	}
	return sockFile, nil
}

func isENXIO(err error) bool {
	perr, ok := err.(*os.PathError)
	if !ok {
		return false
	}
	errno, ok := perr.Err.(syscall.Errno)
	return ok && errno == syscall.ENXIO
}
