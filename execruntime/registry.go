// Package execruntime implements component C6 of the execution-context
// assembly pipeline: a refcounted registry of cross-invocation state keyed
// by unit id, holding private /tmp trees and netns/ipcns sharing sockets.
package execruntime

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"execd/execctx"
	cerrors "execd/execerrors"
	"execd/logging"
)

// EmptySentinel marks a tmp-dir path that must never be removed.
const EmptySentinel = "empty"

// Entry is one unit's ExecRuntime state.
type Entry struct {
	UnitID       string
	TmpDir       string
	VarTmpDir    string
	NetNSSocks   *SocketPair
	IPCNSSocks   *SocketPair

	mu       sync.Mutex
	refcount int
}

// SocketPair holds both ends of a datagram socket used to hand a namespace
// fd between sibling invocations via the peek-replace protocol.
type SocketPair struct {
	mu    sync.Mutex
	ends  [2]int
}

// Registry is the in-process unit-id-keyed ExecRuntime table. All mutation
// happens on the manager's single thread, so the mutex here only guards
// against defensive misuse, not real concurrency (§8 invariants).
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Acquire implements acquire(id, context, create) of §4.6: returns the
// existing entry with an incremented refcount if present; otherwise, if
// create is true and the context requests any runtime-backed feature,
// builds a fresh entry.
func (r *Registry) Acquire(id string, ctx *execctx.Context, create bool) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		e.mu.Lock()
		e.refcount++
		e.mu.Unlock()
		return e, nil
	}

	if !create || !needsRuntime(ctx) {
		return nil, nil
	}

	e, err := buildEntry(id)
	if err != nil {
		return nil, cerrors.WrapWithUnit(err, cerrors.ErrResource, "acquire exec-runtime", id)
	}
	e.refcount = 1
	r.entries[id] = e
	return e, nil
}

// needsRuntime mirrors §4.6's "any of {private-tmp, private-network,
// private-ipc, explicit netns path}" condition.
func needsRuntime(ctx *execctx.Context) bool {
	return NeedsRuntime(ctx)
}

// NeedsRuntime reports whether a context's filesystem view would cause
// Acquire(create=true) to build a fresh Entry, exported for CLI diagnostics.
func NeedsRuntime(ctx *execctx.Context) bool {
	fs := ctx.Filesystem
	return fs.PrivateTmp || fs.PrivateNetwork || fs.PrivateIPC || fs.NamespacePath != ""
}

func buildEntry(id string) (*Entry, error) {
	e := &Entry{UnitID: id}

	tmpDir, err := allocTmpTree("tmp")
	if err != nil {
		return nil, err
	}
	varTmpDir, err := allocTmpTree("var-tmp")
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, err
	}
	e.TmpDir = tmpDir
	e.VarTmpDir = varTmpDir

	netns, err := newSocketPair()
	if err != nil {
		os.RemoveAll(tmpDir)
		os.RemoveAll(varTmpDir)
		return nil, err
	}
	e.NetNSSocks = netns

	ipcns, err := newSocketPair()
	if err != nil {
		netns.Close()
		os.RemoveAll(tmpDir)
		os.RemoveAll(varTmpDir)
		return nil, err
	}
	e.IPCNSSocks = ipcns

	return e, nil
}

// allocTmpTree allocates a fresh private tmp tree with a sticky-mode
// tmp/ subdirectory, per §4.6 and example S2.
func allocTmpTree(prefix string) (string, error) {
	root, err := os.MkdirTemp("", "execd-"+prefix+"-")
	if err != nil {
		return "", fmt.Errorf("create %s tree: %w", prefix, err)
	}
	if err := os.Mkdir(filepath.Join(root, "tmp"), 01777); err != nil {
		os.RemoveAll(root)
		return "", fmt.Errorf("create %s/tmp: %w", prefix, err)
	}
	if err := os.Chmod(filepath.Join(root, "tmp"), 01777); err != nil {
		os.RemoveAll(root)
		return "", err
	}
	return root, nil
}

func newSocketPair() (*SocketPair, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socketpair: %w", err)
	}
	return &SocketPair{ends: [2]int{fds[0], fds[1]}}, nil
}

// Release implements unref: on last unref, if destroy is set, closes both
// socket ends unconditionally and spawns a detached goroutine to remove
// the tmp trees (unless they are the "empty" sentinel).
func (r *Registry) Release(id string, destroy bool) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	e.mu.Lock()
	e.refcount--
	last := e.refcount <= 0
	e.mu.Unlock()
	if last {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !last {
		return
	}

	if e.NetNSSocks != nil {
		e.NetNSSocks.Close()
	}
	if e.IPCNSSocks != nil {
		e.IPCNSSocks.Close()
	}

	if destroy {
		removeTmp := func(path string) {
			if path == "" || path == EmptySentinel {
				return
			}
			go func() {
				if err := os.RemoveAll(path); err != nil {
					logging.Error(fmt.Sprintf("exec-runtime tmp removal failed for %s: %v", path, err))
				}
			}()
		}
		removeTmp(e.TmpDir)
		removeTmp(e.VarTmpDir)
	}
}

// Close releases the socket-pair fds held by sp.
func (sp *SocketPair) Close() error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	var firstErr error
	for i, fd := range sp.ends {
		if fd < 0 {
			continue
		}
		if err := unix.Close(fd); err != nil && firstErr == nil {
			firstErr = err
		}
		sp.ends[i] = -1
	}
	return firstErr
}
