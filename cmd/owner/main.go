// Command owner provisions a farmer account and prints a bearer token for it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"agrinix/internal/bootstrap"
	"agrinix/internal/domain"
	"agrinix/internal/infra"
	"agrinix/internal/middleware"
)

func main() {
	var (
		idFlag    string
		emailFlag string
		nameFlag  string
		ttlFlag   time.Duration
	)
	flag.StringVar(&idFlag, "id", "", "owner ID (generated when empty)")
	flag.StringVar(&emailFlag, "email", "", "owner email")
	flag.StringVar(&nameFlag, "name", "", "display name")
	flag.DurationVar(&ttlFlag, "ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	email := strings.TrimSpace(strings.ToLower(emailFlag))
	if email == "" {
		exitWithError(errors.New("-email is required"))
	}
	if ttlFlag <= 0 {
		exitWithError(errors.New("-ttl must be positive"))
	}
	ownerID := strings.TrimSpace(idFlag)
	if ownerID == "" {
		ownerID = uuid.NewString()
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	if cfg.JWTSecret == "" {
		exitWithError(errors.New("JWT_SECRET is required"))
	}
	logger := infra.NewLogger("cli", cfg.LogLevel).With().Str("cmd", "owner").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		exitWithError(fmt.Errorf("failed to open store: %w", err))
	}
	defer store.Close()

	owner := domain.Owner{ID: ownerID, Email: email, Name: strings.TrimSpace(nameFlag)}
	if err := store.Records.UpsertOwner(ctx, owner); err != nil {
		exitWithError(fmt.Errorf("failed to save owner: %w", err))
	}

	now := time.Now()
	token, err := middleware.SignJWT(cfg.JWTSecret, middleware.TokenClaims{
		Sub:   ownerID,
		Email: email,
		Iat:   now.Unix(),
		Exp:   now.Add(ttlFlag).Unix(),
	})
	if err != nil {
		exitWithError(fmt.Errorf("failed to sign token: %w", err))
	}

	fmt.Printf("Owner %s (%s) ready\n", ownerID, email)
	fmt.Printf("token=%s\n", token)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
