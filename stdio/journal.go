package stdio

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"syscall"

	"execd/execctx"

	cerrors "execd/execerrors"
)

const journalSocketPath = "/run/systemd/journal/stdout"

// openJournalStream opens an AF_UNIX stream to the journal stdout socket,
// half-shuts-down the read direction, and writes the wire-level 7-line
// header described in §6: identifier, unit id (conditional), syslog
// priority, level-prefix bool, false, is-kmsg, is-terminal.
func openJournalStream(ctx *execctx.Context, variant execctx.StdioVariant) (*os.File, *JournalStream, error) {
	conn, err := net.Dial("unix", journalSocketPath)
	if err != nil {
		return nil, nil, cerrors.Wrap(err, cerrors.ErrResource, "dial journal socket")
	}
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, nil, cerrors.New(cerrors.ErrResource, "dial journal socket", "not a unix connection")
	}
	unixConn.CloseRead()

	isKmsg := variant == execctx.IOKmsg || variant == execctx.IOKmsgConsole
	isTerminal := variant == execctx.IOKmsgConsole || variant == execctx.IOJournalConsole

	header := buildJournalHeader(ctx.IO.SyslogIdentifier, "", ctx.IO.SyslogPriority, true, isKmsg, isTerminal)
	if _, err := conn.Write([]byte(header)); err != nil {
		conn.Close()
		return nil, nil, cerrors.Wrap(err, cerrors.ErrResource, "write journal header")
	}

	f, err := unixConn.File()
	if err != nil {
		conn.Close()
		return nil, nil, cerrors.Wrap(err, cerrors.ErrResource, "get journal socket file")
	}

	var stat syscall.Stat_t
	if err := syscall.Fstat(int(f.Fd()), &stat); err != nil {
		f.Close()
		return nil, nil, cerrors.Wrap(err, cerrors.ErrResource, "fstat journal socket")
	}

	return f, &JournalStream{Dev: uint64(stat.Dev), Ino: stat.Ino}, nil
}

// buildJournalHeader renders the exact 7-line, \n-terminated ASCII header.
func buildJournalHeader(identifier, unitID string, priority int, levelPrefix, isKmsg, isTerminal bool) string {
	return fmt.Sprintf("%s\n%s\n%d\n%s\n0\n%s\n%s\n",
		identifier,
		unitID,
		priority,
		boolDigit(levelPrefix),
		boolDigit(isKmsg),
		boolDigit(isTerminal),
	)
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Env renders the JOURNAL_STREAM environment value as "dev:ino".
func (j *JournalStream) Env() string {
	return strconv.FormatUint(j.Dev, 10) + ":" + strconv.FormatUint(j.Ino, 10)
}
