package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hakanai/hakanai/internal/auth"
	"github.com/hakanai/hakanai/internal/client"
	"github.com/hakanai/hakanai/pkg/hakanaicrypto"
)

var (
	receiveOutFile    string
	receivePassphrase string
)

var receiveCmd = &cobra.Command{
	Use:   "receive <url>",
	Short: "Retrieve and decrypt a shared secret",
	Long: `Parses a share URL, fetches the ciphertext (consuming the
secret server-side), and decrypts it locally.

Examples:
  hakanai receive https://hakanai.example/s/abc123#key:hash
  hakanai receive --out report.pdf https://hakanai.example/s/abc123#key:hash`,
	Args: cobra.ExactArgs(1),
	RunE: runReceive,
}

func init() {
	rootCmd.AddCommand(receiveCmd)

	receiveCmd.Flags().StringVar(&receiveOutFile, "out", "", "write plaintext to this file instead of stdout")
	receiveCmd.Flags().StringVar(&receivePassphrase, "passphrase", "", "passphrase required by the sender")
}

func runReceive(cmd *cobra.Command, args []string) error {
	share, err := hakanaicrypto.ParseShareURL(args[0])
	if err != nil {
		return newCLIError(exitUsage, "parse share URL: %v", err)
	}

	var passphraseHash string
	if receivePassphrase != "" {
		passphraseHash = auth.HashToken(receivePassphrase)
	}

	c := client.New(GetServerURL(), GetAuthToken())
	ciphertext, err := c.Retrieve(context.Background(), share.SecretID, passphraseHash)
	if err != nil {
		return mapClientError(err)
	}

	data, filename, err := hakanaicrypto.DecryptPayload(ciphertext, share.Key, share.Hash)
	if err != nil {
		return newCLIError(exitDecryptionFailure, "decrypt: %v", err)
	}

	out := receiveOutFile
	if out == "" && filename != nil {
		out = *filename
	}

	if out == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			return newCLIError(exitNetworkOrServer, "write stdout: %v", err)
		}
		return nil
	}

	if err := os.WriteFile(out, data, 0o600); err != nil {
		return newCLIError(exitUsage, "write file: %v", err)
	}

	green := color.New(color.FgGreen, color.Bold)
	green.Fprintf(os.Stderr, "Wrote %s\n", out)
	fmt.Fprintln(os.Stderr)
	return nil
}
