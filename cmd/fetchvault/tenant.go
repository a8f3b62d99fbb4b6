package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/artpar/fetchvault/adapters/hasher"
	"github.com/artpar/fetchvault/adapters/idgen"
	"github.com/artpar/fetchvault/adapters/sqlite"
	"github.com/artpar/fetchvault/config"
	"github.com/artpar/fetchvault/domain/plan"
	"github.com/artpar/fetchvault/ports"
	"github.com/spf13/cobra"
)

var (
	tenantName     string
	tenantTier     string
	tenantCallback string
	tenantSecret   string
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants",
}

var tenantAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a tenant and print its API key",
	Long: `Create a tenant in the configured SQLite database.

The generated API key is printed once and never stored in plaintext.

Examples:
  fetchvault tenant add --name acme --tier pro
  fetchvault tenant add --name acme --callback https://acme.example/hooks`,
	RunE: runTenantAdd,
}

var tenantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenants",
	RunE:  runTenantList,
}

func init() {
	rootCmd.AddCommand(tenantCmd)
	tenantCmd.AddCommand(tenantAddCmd)
	tenantCmd.AddCommand(tenantListCmd)

	tenantAddCmd.Flags().StringVar(&tenantName, "name", "", "tenant name (required)")
	tenantAddCmd.Flags().StringVar(&tenantTier, "tier", "free", "plan tier: free, pro, archivist, enterprise")
	tenantAddCmd.Flags().StringVar(&tenantCallback, "callback", "", "default webhook callback URL")
	tenantAddCmd.Flags().StringVar(&tenantSecret, "webhook-secret", "", "webhook signing secret (generated if empty)")
	tenantAddCmd.MarkFlagRequired("name")
}

func openTenantStore() (*sqlite.TenantStore, *sqlite.DB, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.Driver != "sqlite" {
		return nil, nil, fmt.Errorf("tenant management requires database.driver=sqlite")
	}
	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	return sqlite.NewTenantStore(db), db, nil
}

func runTenantAdd(cmd *cobra.Command, args []string) error {
	tier, ok := plan.Parse(tenantTier)
	if !ok {
		return fmt.Errorf("unknown tier %q", tenantTier)
	}

	store, db, err := openTenantStore()
	if err != nil {
		return err
	}
	defer db.Close()

	secret, err := randomToken(24)
	if err != nil {
		return err
	}
	keyHash, err := hasher.NewBcrypt(0).Hash(secret)
	if err != nil {
		return fmt.Errorf("hash API key: %w", err)
	}

	webhookSecret := tenantSecret
	if webhookSecret == "" && tenantCallback != "" {
		webhookSecret, err = randomToken(24)
		if err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	t := ports.Tenant{
		ID:            idgen.UUID{}.New(),
		Name:          tenantName,
		APIKeyHash:    keyHash,
		Tier:          tier,
		CallbackURL:   tenantCallback,
		WebhookSecret: webhookSecret,
		Status:        "active",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := store.Create(context.Background(), t); err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}

	fmt.Printf("Tenant created: %s (%s)\n", t.Name, t.ID)
	fmt.Printf("  API key: %s.%s\n", t.ID, secret)
	if webhookSecret != "" {
		fmt.Printf("  Webhook secret: %s\n", webhookSecret)
	}
	fmt.Println("Store the API key now; it cannot be recovered later.")
	return nil
}

func runTenantList(cmd *cobra.Command, args []string) error {
	store, db, err := openTenantStore()
	if err != nil {
		return err
	}
	defer db.Close()

	tenants, err := store.List(context.Background())
	if err != nil {
		return err
	}
	for _, t := range tenants {
		fmt.Printf("%s  %-20s %-10s %s\n", t.ID, t.Name, t.Tier, t.Status)
	}
	fmt.Printf("%d tenant(s)\n", len(tenants))
	return nil
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
