package cmd

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"execd/execctx"
)

// hostSecretPath mirrors systemd's /var/lib/systemd/credential.secret: a
// host-wide key used to derive the AES-GCM key for encrypted credentials
// when no TPM-backed sealing is configured (see credstore.AESGCMDecryptor
// and DESIGN.md's note on why a TPM decryptor has no component to serve).
const hostSecretPath = "/var/lib/execd/credential.secret"

// loadOrCreateHostSecret reads the host credential secret, generating and
// persisting a fresh 32-byte secret on first use.
func loadOrCreateHostSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read host secret %s: %w", path, err)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate host secret: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create host secret directory: %w", err)
	}
	if err := os.WriteFile(path, secret, 0600); err != nil {
		return nil, fmt.Errorf("write host secret %s: %w", path, err)
	}
	return secret, nil
}

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Inspect the credential specs an ExecContext would load",
	Args:  cobra.NoArgs,
}

var credentialsListCmd = &cobra.Command{
	Use:   "list <context-file>",
	Short: "List the load- and set-credential specs in an ExecContext YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialsList,
}

func init() {
	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.AddCommand(credentialsListCmd)
}

func runCredentialsList(cmd *cobra.Command, args []string) error {
	ctx, err := execctx.LoadYAML(args[0])
	if err != nil {
		return fmt.Errorf("load context: %w", err)
	}

	for _, spec := range ctx.SetCredentials {
		fmt.Printf("set\t%s\tencrypted=%v\n", spec.ID, spec.Encrypted)
	}
	for _, spec := range ctx.LoadCredentials {
		fmt.Printf("load\t%s\tencrypted=%v\n", spec.ID, spec.Encrypted)
	}
	return nil
}
