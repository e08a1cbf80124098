// Package stdio implements component C2 of the execution-context assembly
// pipeline: resolving the configured std_input/std_output/std_error
// variants to concrete, canonically-numbered file descriptors.
package stdio

import (
	"fmt"
	"os"

	"execd/execctx"

	cerrors "execd/execerrors"
)

// JournalStream carries the (dev, ino) pair of a successfully opened
// journal/kmsg stream, advertised to the payload as JOURNAL_STREAM.
type JournalStream struct {
	Dev uint64
	Ino uint64
}

// Result holds the three resolved stdio fds plus any journal-stream
// metadata to surface via the environment.
type Result struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	JournalStream *JournalStream
}

// Resolve implements the resolution table of §4.2 for all three stdio
// streams, then re-homes each to exactly descriptor numbers 0/1/2.
func Resolve(ctx *execctx.Context, params *execctx.Parameters) (*Result, error) {
	res := &Result{}

	stdin, err := resolveInput(ctx, params)
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrResource, "resolve stdin")
	}
	res.Stdin = stdin

	stdout, jsOut, err := resolveOutput(ctx, params, ctx.IO.StdOutput, true, nil)
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrResource, "resolve stdout")
	}
	res.Stdout = stdout

	stderr, jsErr, err := resolveOutput(ctx, params, ctx.IO.StdError, false, stdout)
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrResource, "resolve stderr")
	}
	res.Stderr = stderr

	// Prefer stderr's journal-stream pair if both set, per §4.2.
	if jsErr != nil {
		res.JournalStream = jsErr
	} else if jsOut != nil {
		res.JournalStream = jsOut
	}

	if err := rehome(res.Stdin, 0); err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrResource, "rehome stdin")
	}
	if err := rehome(res.Stdout, 1); err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrResource, "rehome stdout")
	}
	if err := rehome(res.Stderr, 2); err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrResource, "rehome stderr")
	}

	return res, nil
}

// rehome moves f to exactly descriptor fd, closing the original iff it had
// to move (the move-or-dup primitive of §4.2).
func rehome(f *os.File, fd uintptr) error {
	if f == nil {
		return fmt.Errorf("nil file for descriptor %d", fd)
	}
	if f.Fd() == fd {
		return nil
	}
	if err := dup2(int(f.Fd()), int(fd)); err != nil {
		return err
	}
	return f.Close()
}
