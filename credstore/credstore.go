// Package credstore implements component C5 of the execution-context
// assembly pipeline: loading, decrypting, and publishing per-service
// credentials on a confined filesystem location.
package credstore

import (
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"execd/execctx"

	cerrors "execd/execerrors"
)

// Size caps from §4.5 (implementation constants).
const (
	CredentialSizeMax          = 1 << 20    // 1 MiB per plaintext credential
	CredentialEncryptedSizeMax = 1 << 21    // 2 MiB per encrypted credential (base64 + header overhead)
	CredentialsTotalSizeMax    = 64 << 20   // 64 MiB total per unit
)

// searchPaths is consulted in order for relative load-credential names.
var searchPaths = []string{
	"/etc/credstore",
	"/run/credstore",
	"/usr/lib/credstore",
}

var encryptedSearchPaths = []string{
	"/etc/credstore.encrypted",
	"/run/credstore.encrypted",
	"/usr/lib/credstore.encrypted",
}

// Decryptor abstracts the credential-decryption collaborator (§7's
// transient TPM PCR_CHANGED retry case lives behind this interface; the
// default backend is AES-GCM, see decrypt.go).
type Decryptor interface {
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Store materialises a unit's credentials into a directory and enforces
// the size caps and write protocol of §4.5.
type Store struct {
	UnitID           string
	ReceivedCredsDir string
	Decryptor        Decryptor
	ServiceUID       int
}

// Acquire runs the acquisition loop (load-credentials then set-credentials)
// and returns the resolved set, or a fatal error if the total size cap is
// exceeded (no partial store is exposed to the caller in that case).
func (s *Store) Acquire(ctx *execctx.Context) ([]execctx.Credential, error) {
	var creds []execctx.Credential
	seen := make(map[string]bool)
	var total int

	for _, spec := range ctx.LoadCredentials {
		found, err := s.loadOne(spec)
		if err != nil {
			hasFallback := hasSetCredential(ctx, spec.ID)
			if hasFallback {
				continue // missing inherited credential is non-fatal with a fallback
			}
			return nil, cerrors.WrapWithDetail(err, cerrors.ErrCredential, "load credential", spec.ID)
		}
		for _, c := range found {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			total += c.Size()
			creds = append(creds, c)
		}
	}

	for _, spec := range ctx.SetCredentials {
		if seen[spec.ID] {
			continue
		}
		data := spec.Data
		if spec.Encrypted {
			decoded, err := base64.StdEncoding.DecodeString(string(spec.Data))
			if err != nil {
				return nil, cerrors.WrapWithDetail(err, cerrors.ErrCredential, "decode set-credential", spec.ID)
			}
			if len(decoded) > CredentialEncryptedSizeMax {
				return nil, cerrors.New(cerrors.ErrCredential, "set-credential size",
					fmt.Sprintf("%s exceeds CREDENTIAL_ENCRYPTED_SIZE_MAX", spec.ID))
			}
			if s.Decryptor == nil {
				return nil, cerrors.New(cerrors.ErrCredential, "set-credential decrypt",
					spec.ID+": encrypted credential requested but no decryptor configured")
			}
			plain, err := s.Decryptor.Decrypt(decoded)
			if err != nil {
				return nil, cerrors.WrapWithDetail(err, cerrors.ErrCredential, "decrypt set-credential", spec.ID)
			}
			data = plain
		}
		if len(data) > CredentialSizeMax {
			return nil, cerrors.New(cerrors.ErrCredential, "set-credential size",
				fmt.Sprintf("%s exceeds CREDENTIAL_SIZE_MAX", spec.ID))
		}
		seen[spec.ID] = true
		total += len(data)
		creds = append(creds, execctx.Credential{ID: spec.ID, Bytes: data})
	}

	if total > CredentialsTotalSizeMax {
		return nil, cerrors.New(cerrors.ErrCredential, "total credential size",
			"credential set exceeds CREDENTIALS_TOTAL_SIZE_MAX, discarding workspace")
	}

	sort.Slice(creds, func(i, j int) bool { return creds[i].ID < creds[j].ID })
	return creds, nil
}

func hasSetCredential(ctx *execctx.Context, id string) bool {
	for _, c := range ctx.SetCredentials {
		if c.ID == id {
			return true
		}
	}
	return false
}

// loadOne resolves one load-credential spec per §4.5 step 1's three path
// shapes (directory recursion, regular-file/socket read, relative search
// path).
func (s *Store) loadOne(spec execctx.CredentialSpec) ([]execctx.Credential, error) {
	path := spec.Path
	if path == "" {
		path = spec.ID
	}

	if filepath.IsAbs(path) {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return s.loadDirectory(path, spec.Encrypted)
		}
		return s.loadFileOrSocket(spec.ID, path, spec.Encrypted)
	}

	return s.loadFromSearchPath(spec, path)
}

// loadDirectory recurses sorted, skipping dot-prefixed entries, deriving
// child credential ids by path-to-underscore substitution.
func (s *Store) loadDirectory(dir string, encrypted bool) ([]execctx.Credential, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read credential directory %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []execctx.Credential
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		full := filepath.Join(dir, e.Name())
		if e.IsDir() {
			nested, err := s.loadDirectory(full, encrypted)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
			continue
		}
		id := strings.ReplaceAll(strings.TrimPrefix(full, dir+string(filepath.Separator)), string(filepath.Separator), "_")
		creds, err := s.loadFileOrSocket(id, full, encrypted)
		if err != nil {
			return nil, err
		}
		out = append(out, creds...)
	}
	return out, nil
}

func (s *Store) loadFileOrSocket(id, path string, encrypted bool) ([]execctx.Credential, error) {
	data, err := readCredentialSource(path)
	if err != nil {
		return nil, fmt.Errorf("read credential %s: %w", path, err)
	}
	if encrypted {
		if len(data) > CredentialEncryptedSizeMax {
			return nil, fmt.Errorf("%s exceeds CREDENTIAL_ENCRYPTED_SIZE_MAX", id)
		}
		if s.Decryptor == nil {
			return nil, fmt.Errorf("%s: encrypted but no decryptor configured", id)
		}
		plain, err := s.Decryptor.Decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", id, err)
		}
		data = plain
	}
	if len(data) > CredentialSizeMax {
		return nil, fmt.Errorf("%s exceeds CREDENTIAL_SIZE_MAX", id)
	}
	return []execctx.Credential{{ID: id, Bytes: data}}, nil
}

func (s *Store) loadFromSearchPath(spec execctx.CredentialSpec, name string) ([]execctx.Credential, error) {
	if s.ReceivedCredsDir != "" {
		p := filepath.Join(s.ReceivedCredsDir, name)
		if _, err := os.Stat(p); err == nil {
			return s.loadFileOrSocket(spec.ID, p, spec.Encrypted)
		}
	}

	paths := searchPaths
	if spec.Encrypted {
		paths = encryptedSearchPaths
	}
	for _, dir := range paths {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return s.loadFileOrSocket(spec.ID, p, spec.Encrypted)
		}
	}
	return nil, fmt.Errorf("credential %s not found on search path", name)
}

// readCredentialSource reads a load-credential source that may be either a
// plain file or an AF_UNIX socket serving the credential on connect (the
// one-shot credential-request protocol). Socket clients bind to a unique
// abstract address before connecting, matching the random-suffix bindname
// convention so concurrent loads from the same unit never collide.
func readCredentialSource(path string) ([]byte, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return os.ReadFile(path)
	}

	localAddr := &net.UnixAddr{Name: "@execd-cred-" + uuid.NewString(), Net: "unix"}
	dialer := net.Dialer{
		LocalAddr: localAddr,
		Timeout:   5 * time.Second,
	}
	conn, err := dialer.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("connect credential socket %s: %w", path, err)
	}
	defer conn.Close()

	return io.ReadAll(conn)
}
