package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/auth"
)

var keysFlags struct {
	principal   string
	permissions []string
	rateLimit   int64
	expiresIn   time.Duration
	hashCost    int
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
	Long: `Create and revoke API keys in the credential database.

Key secrets are shown once, at creation. Only a bcrypt digest is stored.`,
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key",
	Long: `Create an API key for a principal and print its secret.

Examples:
  # Read-only key
  gatewayd keys create --principal user-abc-123 --permission seasonality:read

  # Key with its own per-window ceiling that expires in 30 days
  gatewayd keys create --principal user-abc-123 --rate-limit 50 --expires-in 720h`,
	Args: cobra.NoArgs,
	RunE: createKey,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <key-id>",
	Short: "Revoke an API key",
	Long: `Deactivate an API key in the credential database. Running gateways
stop accepting it once their cached copy expires (auth.api_key_cache_ttl).

To revoke on a running gateway at once, call DELETE /admin/keys/<key-id>
with an admin credential; that instance also evicts its cached copy.`,
	Args: cobra.ExactArgs(1),
	RunE: revokeKey,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysCreateCmd, keysRevokeCmd)

	keysCreateCmd.Flags().StringVar(&keysFlags.principal, "principal", "", "owning principal id (required)")
	keysCreateCmd.Flags().StringSliceVar(&keysFlags.permissions, "permission", nil, "resource:action grant, repeatable")
	keysCreateCmd.Flags().Int64Var(&keysFlags.rateLimit, "rate-limit", 0, "per-window ceiling replacing the tier's (0 keeps the tier's)")
	keysCreateCmd.Flags().DurationVar(&keysFlags.expiresIn, "expires-in", 0, "lifetime of the key (0 never expires)")
	keysCreateCmd.Flags().IntVar(&keysFlags.hashCost, "hash-cost", 0, "bcrypt cost (defaults to auth.hash_cost)")
	_ = keysCreateCmd.MarkFlagRequired("principal")
}

// createdKey is printed by keys create.
type createdKey struct {
	ID          string     `json:"id"`
	Secret      string     `json:"secret"`
	PrincipalID string     `json:"principal_id"`
	Permissions []string   `json:"permissions"`
	RateLimit   int64      `json:"rate_limit,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func createKey(cmd *cobra.Command, _ []string) error {
	cost := keysFlags.hashCost
	if cost == 0 {
		var sec struct {
			Auth struct {
				HashCost int `env:"HASH_COST" envDefault:"12" yaml:"hash_cost" json:"hash_cost"`
			} `env:"AUTH" yaml:"auth" json:"auth"`
		}
		if err := loadConfig(&sec); err != nil {
			return err
		}
		cost = sec.Auth.HashCost
	}
	hasher, err := auth.NewBcryptHasher(cost)
	if err != nil {
		return err
	}

	spec := auth.NewAPIKey{
		PrincipalID: keysFlags.principal,
		Permissions: keysFlags.permissions,
		RateLimit:   keysFlags.rateLimit,
	}
	if keysFlags.expiresIn > 0 {
		at := time.Now().UTC().Add(keysFlags.expiresIn)
		spec.ExpiresAt = &at
	}
	raw, rec, err := auth.GenerateAPIKey(hasher, spec)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.CreateAPIKey(ctx, rec); err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(createdKey{
		ID:          rec.ID,
		Secret:      raw,
		PrincipalID: rec.PrincipalID,
		Permissions: rec.Permissions,
		RateLimit:   rec.RateLimit,
		ExpiresAt:   rec.ExpiresAt,
	})
}

func revokeKey(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.RevokeAPIKey(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
	return nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the credential tables",
	Long:  `Apply the credential schema. Safe to run repeatedly.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := commandContext(cmd)
		store, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
