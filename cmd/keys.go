// cmd/keys.go
package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/urza/Yap/internal/realtime"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage session signing keys",
	Long:  `Commands for managing the secret that signs WebSocket session tokens.`,
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a session secret",
	Long:  `Generates a random secret suitable for YAP_SESSION_SECRET.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := generateSecret()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "YAP_SESSION_SECRET=%s\n", secret)
		return nil
	},
}

var keysTokenCmd = &cobra.Command{
	Use:   "token <session-id>",
	Short: "Issue a session token",
	Long:  `Issues a token that resumes the given session, signed with YAP_SESSION_SECRET.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := os.Getenv("YAP_SESSION_SECRET")
		if secret == "" {
			return fmt.Errorf("YAP_SESSION_SECRET is not set")
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")
		tokens, err := realtime.NewTokens(secret, ttl)
		if err != nil {
			return err
		}
		token, err := tokens.Issue(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysGenerateCmd)
	keysCmd.AddCommand(keysTokenCmd)
	keysTokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime (0 for no expiry)")
}
