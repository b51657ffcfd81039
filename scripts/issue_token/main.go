package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/noah-isme/inbox-rules-api/internal/service"
	"github.com/noah-isme/inbox-rules-api/pkg/config"
)

func main() {
	var (
		userID string
		email  string
		ttl    time.Duration
	)

	flag.StringVar(&userID, "user", "", "User ID to embed in the token")
	flag.StringVar(&email, "email", "", "Optional email claim")
	flag.DurationVar(&ttl, "ttl", 0, "Token lifetime, defaults to JWT_EXPIRATION")
	flag.Parse()

	if userID == "" {
		log.Fatal("-user is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if ttl <= 0 {
		ttl = cfg.JWT.Expiration
	}

	auth := service.NewAuthService(nil, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: ttl,
		Issuer:            cfg.JWT.Issuer,
	})
	token, expiresAt, err := auth.GenerateToken(userID, email)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}
	fmt.Println(token)
	log.Printf("expires at %s", expiresAt.Format(time.RFC3339))
}
