package spawn

import (
	"fmt"

	"execd/execctx"
)

// ResolveNamedFDs validates, before forking, that every named-fd reference
// configured for stdio (IONamedFD) actually names an entry in the passed
// fd arrays. Failing fast here turns a missing name into a pre-fork error
// instead of an EXIT_STDIN/STDOUT/STDERR step failure deep in the child.
func ResolveNamedFDs(ctx *execctx.Context, params *execctx.Parameters) error {
	variants := [3]execctx.StdioVariant{ctx.IO.StdInput, ctx.IO.StdOutput, ctx.IO.StdError}
	for i, v := range variants {
		if v != execctx.IONamedFD {
			continue
		}
		name := ctx.IO.StdioFDNames[i]
		if name == "" {
			return fmt.Errorf("stdio fd %d: named-fd variant configured without a name", i)
		}
		if !hasNamedFD(params, name) {
			return fmt.Errorf("stdio fd %d: no passed fd named %q", i, name)
		}
	}
	return nil
}

func hasNamedFD(params *execctx.Parameters, name string) bool {
	for _, e := range params.SocketFDs {
		if e.Name == name {
			return true
		}
	}
	for _, e := range params.StorageFDs {
		if e.Name == name {
			return true
		}
	}
	return false
}
