package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"execd/execctx"
)

// ConfirmResult is the outcome of the interactive confirm-spawn prompt.
type ConfirmResult int

const (
	// ConfirmExecute proceeds with the real pipeline.
	ConfirmExecute ConfirmResult = iota
	// ConfirmFakeFailure short-circuits to a sentinel failure.
	ConfirmFakeFailure
	// ConfirmFakeSuccess short-circuits to ExitSuccess without executing.
	ConfirmFakeSuccess
	// ConfirmCancel aborts with ExitConfirm.
	ConfirmCancel
)

// confirmMenu renders the one-key prompt and parses a single answer.
// Unrecognised letters re-prompt, matching help/info/dump/jobs.
func confirmMenu(tty io.ReadWriter, cmdline, unitID string) (ConfirmResult, error) {
	reader := bufio.NewReader(tty)
	for {
		fmt.Fprintf(tty, "Press 'y' to execute, 'n' to skip, 'f' to fail, 's' to succeed, 'h' for help: %s\r\n", cmdline)

		line, err := reader.ReadString('\n')
		if err != nil {
			return ConfirmCancel, err
		}
		answer := strings.TrimSpace(line)
		if answer == "" {
			continue
		}

		switch answer[0] {
		case 'y':
			return ConfirmExecute, nil
		case 'n':
			// The 'n' letter is historically reserved but aliases to 'f'
			// with a diagnostic, per the documented compatibility alias.
			fmt.Fprintf(tty, "'n' is not a valid confirmation option, assuming 'f'\r\n")
			return ConfirmFakeFailure, nil
		case 'f':
			return ConfirmFakeFailure, nil
		case 's':
			return ConfirmFakeSuccess, nil
		case 'c':
			return ConfirmExecute, nil // continue-all: caller stops prompting henceforth
		case 'h':
			fmt.Fprintf(tty, "y = yes, execute; n/f = fail; s = succeed without executing;\r\nh = help; i = info about the unit; D = dump context; j = list jobs; c = continue without further confirmation\r\n")
			continue
		case 'i':
			fmt.Fprintf(tty, "unit: %s\r\ncommand: %s\r\n", unitID, cmdline)
			continue
		case 'D':
			fmt.Fprintf(tty, "(context dump not available in this terminal session)\r\n")
			continue
		case 'j':
			fmt.Fprintf(tty, "(job listing not available in this terminal session)\r\n")
			continue
		default:
			fmt.Fprintf(tty, "%q is not a valid confirmation option\r\n", answer)
			continue
		}
	}
}

// ConfirmSpawn implements §4.9's interactive confirm-spawn gate. It is a
// no-op (ConfirmExecute) unless the invocation both requested confirmation
// and a confirm-spawn tty path is configured.
func ConfirmSpawn(params *execctx.Parameters, cmdline string) (ConfirmResult, error) {
	if params.ConfirmSpawnTTYPath == "" {
		return ConfirmExecute, nil
	}

	tty, err := os.OpenFile(params.ConfirmSpawnTTYPath, os.O_RDWR, 0)
	if err != nil {
		return ConfirmCancel, fmt.Errorf("acquire confirmation tty: %w", err)
	}
	defer tty.Close()

	return confirmMenu(tty, cmdline, params.UnitID)
}
