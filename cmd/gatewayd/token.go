package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/auth"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/gateway"
)

var tokenFlags struct {
	subject string
	kind    string
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Work with bearer tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue bearer tokens for a principal",
	Long: `Sign tokens with auth.token_secret. The principal is not looked up;
the gateway checks it when the token is presented.

Examples:
  # Access and refresh pair
  gatewayd token issue --subject user-abc-123

  # Access token only
  gatewayd token issue --subject user-abc-123 --kind access`,
	Args: cobra.NoArgs,
	RunE: issueToken,
}

var hashCost int

var hashCmd = &cobra.Command{
	Use:   "hash [secret]",
	Short: "Print the bcrypt digest of a secret",
	Long: `Hash a secret the way API key digests are stored. The secret is read
from the first argument or, when absent, from the first line of stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: hashSecret,
}

func init() {
	rootCmd.AddCommand(tokenCmd, hashCmd)
	tokenCmd.AddCommand(tokenIssueCmd)

	tokenIssueCmd.Flags().StringVar(&tokenFlags.subject, "subject", "", "principal id (required)")
	tokenIssueCmd.Flags().StringVar(&tokenFlags.kind, "kind", "pair", "pair, access or refresh")
	_ = tokenIssueCmd.MarkFlagRequired("subject")

	hashCmd.Flags().IntVar(&hashCost, "cost", bcrypt.DefaultCost+2, "bcrypt cost")
}

// authSection is the part of the configuration token commands need.
type authSection struct {
	Auth gateway.AuthConfig `env:"AUTH" yaml:"auth" json:"auth"`
}

func issueToken(cmd *cobra.Command, _ []string) error {
	var sec authSection
	if err := loadConfig(&sec); err != nil {
		return err
	}
	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		Secret:     sec.Auth.TokenSecret,
		Issuer:     sec.Auth.Issuer,
		AccessTTL:  sec.Auth.AccessTokenTTL,
		RefreshTTL: sec.Auth.RefreshTokenTTL,
	}, nil)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	switch strings.ToLower(tokenFlags.kind) {
	case "pair":
		pair, err := codec.IssuePair(tokenFlags.subject)
		if err != nil {
			return err
		}
		return enc.Encode(pair)
	case string(auth.TokenAccess), string(auth.TokenRefresh):
		token, err := codec.Issue(tokenFlags.subject, auth.TokenKind(strings.ToLower(tokenFlags.kind)))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	default:
		return fmt.Errorf("unknown token kind %q (want pair, access or refresh)", tokenFlags.kind)
	}
}

func hashSecret(cmd *cobra.Command, args []string) error {
	var secret string
	if len(args) == 1 {
		secret = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("read secret: %w", err)
		}
		secret = strings.TrimRight(line, "\r\n")
	}
	if secret == "" {
		return fmt.Errorf("secret is empty")
	}

	hasher, err := auth.NewBcryptHasher(hashCost)
	if err != nil {
		return err
	}
	digest, err := hasher.Hash(secret)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), digest)
	return err
}
