package spawn

import (
	"testing"

	"execd/execctx"
)

func TestResolveNamedFDs_NoNamedVariantsIsNoop(t *testing.T) {
	ctx := &execctx.Context{}
	params := &execctx.Parameters{}
	if err := ResolveNamedFDs(ctx, params); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestResolveNamedFDs_MissingNameErrors(t *testing.T) {
	ctx := &execctx.Context{}
	ctx.IO.StdInput = execctx.IONamedFD
	ctx.IO.StdioFDNames[0] = "listen"
	params := &execctx.Parameters{}
	if err := ResolveNamedFDs(ctx, params); err == nil {
		t.Error("expected an error when the named fd is not present")
	}
}

func TestResolveNamedFDs_PresentNameSucceeds(t *testing.T) {
	ctx := &execctx.Context{}
	ctx.IO.StdOutput = execctx.IONamedFD
	ctx.IO.StdioFDNames[1] = "logging"
	params := &execctx.Parameters{
		StorageFDs: []execctx.FdEntry{{FD: 9, Name: "logging"}},
	}
	if err := ResolveNamedFDs(ctx, params); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestResolveNamedFDs_EmptyNameErrors(t *testing.T) {
	ctx := &execctx.Context{}
	ctx.IO.StdError = execctx.IONamedFD
	params := &execctx.Parameters{}
	if err := ResolveNamedFDs(ctx, params); err == nil {
		t.Error("expected an error for a named-fd variant with no configured name")
	}
}
