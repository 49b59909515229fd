package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hakanai/hakanai/internal/wire"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage authenticated-upload bearer tokens (admin)",
}

var tokenCreateSizeLimit int64

var tokenCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue a new bearer token",
	RunE:  runTokenCreate,
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke <token-hash>",
	Short: "Revoke a bearer token by its hash",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenRevoke,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenCreateCmd)
	tokenCmd.AddCommand(tokenRevokeCmd)

	tokenCreateCmd.Flags().Int64Var(&tokenCreateSizeLimit, "size-limit", 0, "upload size limit in bytes for this token (0 = server default)")
}

// runTokenCreate and runTokenRevoke talk to the admin endpoints
// directly rather than through internal/client, which only models the
// anonymous/authenticated upload surface (C2); the admin surface is a
// distinct, narrower concern with its own auth requirement.
func runTokenCreate(cmd *cobra.Command, args []string) error {
	body, _ := json.Marshal(wire.CreateTokenRequest{UploadSizeLimit: tokenCreateSizeLimit})

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, GetServerURL()+"/api/v1/tokens", strings.NewReader(string(body)))
	if err != nil {
		return newCLIError(exitUsage, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(wire.HeaderAuthorization, wire.AuthorizationBearerPfx+GetAuthToken())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return newCLIError(exitNetworkOrServer, "%v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newCLIError(exitNetworkOrServer, "server returned %s", resp.Status)
	}

	var out wire.CreateTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return newCLIError(exitNetworkOrServer, "decode response: %v", err)
	}

	fmt.Println(out.Token)
	return nil
}

func runTokenRevoke(cmd *cobra.Command, args []string) error {
	hash := args[0]

	req, err := http.NewRequestWithContext(context.Background(), http.MethodDelete, GetServerURL()+"/api/v1/tokens/"+hash, nil)
	if err != nil {
		return newCLIError(exitUsage, "build request: %v", err)
	}
	req.Header.Set(wire.HeaderAuthorization, wire.AuthorizationBearerPfx+GetAuthToken())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return newCLIError(exitNetworkOrServer, "%v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return newCLIError(exitNetworkOrServer, "server returned %s", resp.Status)
	}

	fmt.Println("revoked")
	return nil
}
