package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/examsim-backend/internal/config"
	"github.com/stemsi/examsim-backend/internal/service"
)

// issue-token signs a bearer token for local development and load tests.
func main() {
	var (
		subject string
		name    string
		ttl     time.Duration
	)
	flag.StringVar(&subject, "sub", "", "Owner id to issue the token for (required)")
	flag.StringVar(&name, "name", "", "Display name carried in the token")
	flag.DurationVar(&ttl, "ttl", 0, "Token lifetime, defaults to JWT_EXPIRY_HOURS")
	flag.Parse()

	if subject == "" {
		fmt.Fprintln(os.Stderr, "Error: -sub is required")
		flag.PrintDefaults()
		os.Exit(2)
	}

	authService := service.NewAuthService(config.Load())
	token, err := authService.GenerateToken(subject, name, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
