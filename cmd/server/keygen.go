package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-oidc-provider/token/keys"
)

var (
	keygenOut  string
	keygenBits int
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an RSA signing key for SIGNING_KEY_FILE",
	Args:  cobra.NoArgs,
	// No configuration is needed to generate a key.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, _ []string) error {
		return writeSigningKey(cmd.OutOrStdout(), keygenOut, keygenBits)
	},
}

func init() {
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "signing-key.pem", "File the PKCS#8 private key is written to")
	keygenCmd.Flags().IntVar(&keygenBits, "bits", 2048, "RSA modulus size")
}

// writeSigningKey stores a new private key at path and prints its kid and
// public key.
func writeSigningKey(out io.Writer, path string, bits int) error {
	kp, err := keys.GenerateRSAKeyPair(bits)
	if err != nil {
		return errors.Wrap(err, "[keygen]")
	}
	private, err := kp.ExportPrivateKeyPEM()
	if err != nil {
		return errors.Wrap(err, "[keygen]")
	}
	public, err := kp.ExportPublicKeyPEM()
	if err != nil {
		return errors.Wrap(err, "[keygen]")
	}
	if err := os.WriteFile(path, []byte(private), 0o600); err != nil {
		return errors.Wrapf(err, "[keygen] writing %s", path)
	}
	fmt.Fprintf(out, "kid: %s\nprivate key: %s\n%s", kp.KeyID, path, public)
	return nil
}
