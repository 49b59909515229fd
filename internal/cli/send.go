package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hakanai/hakanai/internal/auth"
	"github.com/hakanai/hakanai/internal/client"
	"github.com/hakanai/hakanai/internal/wire"
	"github.com/hakanai/hakanai/pkg/hakanaicrypto"
)

var (
	sendFile           string
	sendExpiresIn      time.Duration
	sendPassphrase     string
	sendAllowIPs       []string
	sendAllowCountries []string
	sendAllowASNs      []int64
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Encrypt and share a secret",
	Long: `Encrypts stdin (or --file) locally and uploads only the
ciphertext. Prints the share URL; the decryption key never leaves
this process except inside the URL fragment.

Examples:
  echo "hunter2" | hakanai send
  hakanai send --file report.pdf --expires-in 1h
  hakanai send --passphrase swordfish`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVar(&sendFile, "file", "", "read the secret from this file instead of stdin")
	sendCmd.Flags().DurationVar(&sendExpiresIn, "expires-in", 0, "time until the secret expires (default: server default)")
	sendCmd.Flags().StringVar(&sendPassphrase, "passphrase", "", "require this passphrase on retrieval")
	sendCmd.Flags().StringSliceVar(&sendAllowIPs, "allow-ip", nil, "restrict retrieval to these CIDRs")
	sendCmd.Flags().StringSliceVar(&sendAllowCountries, "allow-country", nil, "restrict retrieval to these ISO country codes")
	sendCmd.Flags().Int64SliceVar(&sendAllowASNs, "allow-asn", nil, "restrict retrieval to these ASNs")
}

func runSend(cmd *cobra.Command, args []string) error {
	data, filename, err := readSendInput()
	if err != nil {
		return newCLIError(exitUsage, "%v", err)
	}

	var filenamePtr *string
	if filename != "" {
		filenamePtr = &filename
	}

	ciphertext, keyB64, hashB64, err := hakanaicrypto.EncryptPayload(data, filenamePtr)
	if err != nil {
		return newCLIError(exitUsage, "encrypt: %v", err)
	}
	key, err := base64.RawURLEncoding.DecodeString(keyB64)
	if err != nil {
		return newCLIError(exitUsage, "decode key: %v", err)
	}
	hash, err := base64.RawURLEncoding.DecodeString(hashB64)
	if err != nil {
		return newCLIError(exitUsage, "decode hash: %v", err)
	}

	restrictions := buildRestrictions()

	c := client.New(GetServerURL(), GetAuthToken())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	bar := newUploadProgress(int64(len(ciphertext)))
	id, err := c.Create(ctx, client.CreateParams{
		Ciphertext:   ciphertext,
		ExpiresIn:    sendExpiresIn,
		Restrictions: restrictions,
		OnProgress: func(sent int64) {
			_ = bar.Set64(sent)
		},
	})
	if err != nil {
		return mapClientError(err)
	}
	bar.Finish()

	shareURL := hakanaicrypto.BuildShareURL(GetServerURL(), id, key, hash)

	green := color.New(color.FgGreen, color.Bold)
	fmt.Println()
	green.Println("Secret shared.")
	fmt.Println(shareURL)
	return nil
}

func readSendInput() (data []byte, filename string, err error) {
	if sendFile != "" {
		data, err = os.ReadFile(sendFile)
		if err != nil {
			return nil, "", fmt.Errorf("read file: %w", err)
		}
		return data, sendFile, nil
	}

	data, err = io.ReadAll(os.Stdin)
	if err != nil {
		return nil, "", fmt.Errorf("read stdin: %w", err)
	}
	return data, "", nil
}

func buildRestrictions() *wire.Restrictions {
	if sendPassphrase == "" && len(sendAllowIPs) == 0 && len(sendAllowCountries) == 0 && len(sendAllowASNs) == 0 {
		return nil
	}

	r := &wire.Restrictions{
		AllowedIPs:       sendAllowIPs,
		AllowedCountries: normalizeCountries(sendAllowCountries),
		AllowedASNs:      sendAllowASNs,
	}
	if sendPassphrase != "" {
		r.PassphraseHash = auth.HashToken(sendPassphrase)
	}
	return r
}

func normalizeCountries(countries []string) []string {
	out := make([]string, len(countries))
	for i, c := range countries {
		out[i] = strings.ToUpper(c)
	}
	return out
}

func mapClientError(err error) error {
	ce, ok := err.(*client.Error)
	if !ok {
		return newCLIError(exitNetworkOrServer, "%v", err)
	}
	switch ce.Code {
	case wire.ErrSecretNotFound, wire.ErrSecretAlreadyAccessed:
		return newCLIError(exitNotFoundOrGone, "%s", ce.Message)
	case wire.ErrInvalidRestrictions, wire.ErrAuthenticationRequired, wire.ErrInvalidToken, wire.ErrPayloadTooLarge:
		return newCLIError(exitUsage, "%s", ce.Message)
	default:
		return newCLIError(exitNetworkOrServer, "%s", ce.Message)
	}
}
