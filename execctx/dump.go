package execctx

import (
	"encoding/json"
	"fmt"
	"io"
)

// Dump writes a human-readable diagnostic rendering of the context to w,
// one "key: value" line per top-level field group. This is the C11
// diagnostic-dump operation; it is deliberately not the same shape as the
// JSON load/save format, which is meant to round-trip exactly.
func (c *Context) Dump(w io.Writer) error {
	lines := []struct {
		name string
		val  any
	}{
		{"User", c.User},
		{"Group", c.Group},
		{"SupplementaryGroups", c.SupplementaryGroups},
		{"DynamicUser", c.DynamicUser},
		{"PAMService", c.PAMService},
		{"RootDirectory", c.Filesystem.RootDirectory},
		{"PrivateTmp", c.Filesystem.PrivateTmp},
		{"PrivateNetwork", c.Filesystem.PrivateNetwork},
		{"PrivateIPC", c.Filesystem.PrivateIPC},
		{"PrivateUsers", c.Filesystem.PrivateUsers},
		{"CapabilityBoundingSet", c.Privileges.CapabilityBoundingSet},
		{"NoNewPrivileges", c.Privileges.NoNewPrivileges},
		{"StdInput", c.IO.StdInput},
		{"StdOutput", c.IO.StdOutput},
		{"StdError", c.IO.StdError},
		{"SetCredentials", credentialIDs(c.SetCredentials)},
		{"LoadCredentials", credentialIDs(c.LoadCredentials)},
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%s: %v\n", l.name, l.val); err != nil {
			return err
		}
	}
	return nil
}

func credentialIDs(specs []CredentialSpec) []string {
	ids := make([]string, len(specs))
	for i, s := range specs {
		ids[i] = s.ID
	}
	return ids
}

// DumpJSON writes the full context as indented JSON, suitable for
// inspection tooling (the `execd credentials`/`execd runtime` CLI
// subcommands reuse this for --debug output).
func (c *Context) DumpJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
