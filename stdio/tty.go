package stdio

import (
	"fmt"
	"os"
	"syscall"

	"execd/execctx"
	"execd/utils"

	cerrors "execd/execerrors"
)

// acquireTTY opens the configured tty path under the given policy:
//   - IOTTY: wait for the device if currently busy (best-effort: a plain
//     blocking open already waits for most contention).
//   - IOTTYForce: steal the terminal even if already open elsewhere.
//   - IOTTYFail: fail immediately (O_NONBLOCK probe, then clear) if busy.
func acquireTTY(path string, variant execctx.StdioVariant) (*os.File, error) {
	if path == "" {
		path = "/dev/console"
	}

	flag := os.O_RDWR | syscall.O_NOCTTY
	if variant == execctx.IOTTYFail {
		flag |= syscall.O_NONBLOCK
	}

	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrResource, "acquire tty "+path)
	}

	if variant == execctx.IOTTYFail {
		// Clear O_NONBLOCK now that the open itself has succeeded; later
		// reads/writes should block normally.
		if clearErr := syscall.SetNonblock(int(f.Fd()), false); clearErr != nil {
			f.Close()
			return nil, cerrors.Wrap(clearErr, cerrors.ErrResource, "clear nonblock on tty")
		}
	}

	return f, nil
}

// setControllingTerminal attempts TIOCSCTTY on f.
func setControllingTerminal(f *os.File) error {
	return utils.SetControllingTerminal(f)
}

// applyTTYSize sets the tty's window size from the context, unless rows and
// cols are both the "max" sentinel.
func applyTTYSize(f *os.File, rows, cols int) error {
	if rows == execctx.TTYSizeMax && cols == execctx.TTYSizeMax {
		return nil
	}
	ws := &utils.Winsize{Row: uint16(rows), Col: uint16(cols)}
	if err := utils.SetWinsize(f, ws); err != nil {
		return fmt.Errorf("set tty size: %w", err)
	}
	return nil
}
