package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mediavault/link-engine/internal/middleware"
	"github.com/mediavault/link-engine/internal/services"
	"github.com/mediavault/link-engine/internal/storage"
)

func genkeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genkey",
		Short: "Mint a database-backed API key for an endpoint",
		RunE:  runGenkey,
	}
	cmd.Flags().String("endpoint", "", "endpoint name (required)")
	cmd.MarkFlagRequired("endpoint")
	return cmd
}

func runGenkey(cmd *cobra.Command, args []string) error {
	endpoint, _ := cmd.Flags().GetString("endpoint")
	cfg := loadConfig()

	db, err := storage.New(cfg.Database.DatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	keyService := services.NewKeyService(storage.NewEndpointKeyStore(db))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	plaintext, key, err := keyService.CreateKey(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("failed to create key: %w", err)
	}

	fmt.Printf("Created key %s for endpoint %q\n", key.ID, endpoint)
	fmt.Printf("API key (shown once): %s\n", plaintext)
	return nil
}

func adminTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Mint an admin JWT for the operational endpoints",
		RunE:  runAdminToken,
	}
	cmd.Flags().String("subject", "operator", "token subject")
	return cmd
}

func runAdminToken(cmd *cobra.Command, args []string) error {
	subject, _ := cmd.Flags().GetString("subject")
	cfg := loadConfig()

	if cfg.Auth.AdminJWTSecret == "" {
		return fmt.Errorf("auth.admin_jwt_secret is not configured")
	}

	token, err := middleware.GenerateToken(subject, "admin", middleware.JWTConfig{
		Secret:     cfg.Auth.AdminJWTSecret,
		Expiration: time.Duration(cfg.Auth.AdminJWTHours) * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	fmt.Println(token)
	return nil
}
